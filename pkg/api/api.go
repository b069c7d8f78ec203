// Package api is the HTTP edge: it authenticates the caller, consults the
// authorization policy and forwards allowed requests to the user and
// social graph services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"apnaspace/pkg/authz"
	"apnaspace/pkg/graph"
	"apnaspace/pkg/metrics"
	"apnaspace/pkg/model"
	"apnaspace/pkg/services"
	"apnaspace/pkg/storage"
	"apnaspace/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/dgrijalva/jwt-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type server struct {
	weaver.Implements[weaver.Main]
	weaver.WithConfig[serverOptions]
	userService 		weaver.Ref[services.UserService]
	socialGraphService 	weaver.Ref[services.SocialGraphService]
	policy      		*authz.Policy
	lis         		weaver.Listener `weaver:"api"`
}

type serverOptions struct {
	JWTSecret string `toml:"jwt_secret"`
	Region    string `toml:"region"`
}

func Serve(ctx context.Context, s *server) error {
	s.policy = authz.NewPolicy()

	if s.Config().Region == "" {
		region, err := utils.Region()
		if err != nil {
			s.Logger(ctx).Error(err.Error())
			return err
		}
		s.Config().Region = region
	}

	mux := http.NewServeMux()
	mux.Handle("/api/user/login", instrument("login", s.loginHandler, http.MethodPost))
	mux.Handle("/api/user/register", instrument("register", s.registerHandler, http.MethodPost))
	mux.Handle("/api/user", instrument("user", s.userHandler, http.MethodGet, http.MethodPut, http.MethodDelete))
	mux.Handle("/api/user/follow", instrument("follow", s.followHandler, http.MethodPost))
	mux.Handle("/api/user/unfollow", instrument("unfollow", s.unfollowHandler, http.MethodPost))
	mux.Handle("/api/user/is-following", instrument("is-following", s.isFollowingHandler, http.MethodGet))
	mux.Handle("/api/user/followers", instrument("followers", s.followersHandler, http.MethodGet))
	mux.Handle("/api/user/following", instrument("following", s.followingHandler, http.MethodGet))
	mux.Handle("/api/user/follow-counts", instrument("follow-counts", s.followCountsHandler, http.MethodGet))
	var handler http.Handler = mux
	s.Logger(ctx).Info("user api available", "addr", s.lis)
	return http.Serve(s.lis, handler)
}

func instrument(label string, fn func(http.ResponseWriter, *http.Request), methods ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, method := range methods {
		allowed[method] = struct{}{}
	}
	handler := func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Method]; len(allowed) > 0 && !ok {
			msg := fmt.Sprintf("method %q not allowed", r.Method)
			http.Error(w, msg, http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
	return weaver.InstrumentHandlerFunc(label, handler)
}

// actor parses the bearer token into the request's AuthContext. A missing
// header yields a nil actor, which the policy turns into Unauthenticated.
func (s *server) actor(r *http.Request) (*model.AuthContext, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	claims := &services.Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.Config().JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}
	return &model.AuthContext{UserID: claims.UserID, Role: claims.Role}, nil
}

// authorize runs the policy for the request's actor against targetID with
// the action derived from the request method.
func (s *server) authorize(r *http.Request, targetID string) error {
	actor, err := s.actor(r)
	if err != nil {
		return authz.ErrUnauthenticated
	}
	if err := s.policy.Authorize(actor, targetID, authz.ActionFromMethod(r.Method)); err != nil {
		var denied *authz.DeniedError
		if errors.As(err, &denied) {
			metrics.AuthDenied.Get(metrics.RegionLabel{Region: s.Config().Region}).Add(1)
		}
		return err
	}
	return nil
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	var denied *authz.DeniedError
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, authz.ErrBadTarget), errors.Is(err, graph.ErrEmptyID), errors.Is(err, graph.ErrSelfUnfollow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &denied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		// storage failed to commit; the caller owns any retry
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}
}

func newReqID() int64 {
	rand := rand.New(rand.NewSource(time.Now().UnixNano()))
	return rand.Int63()
}

func (s *server) loginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := newReqID()
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}
	token, err := s.userService.Get().Login(ctx, reqID, username, password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	s.writeJSON(w, map[string]string{"token": token})
}

func (s *server) registerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := newReqID()
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}
	userID, err := s.userService.Get().RegisterUser(ctx, reqID,
		r.FormValue("first_name"), r.FormValue("last_name"), username, password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, map[string]string{"user_id": userID})
}

func (s *server) userHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := newReqID()
	targetID := r.FormValue("user_id")
	if err := s.authorize(r, targetID); err != nil {
		s.writeError(w, err)
		return
	}

	trace.SpanFromContext(ctx).AddEvent("user resource request",
		trace.WithAttributes(
			attribute.String("target_id", targetID),
			attribute.String("method", r.Method),
		))

	switch r.Method {
	case http.MethodGet:
		user, err := s.userService.Get().GetUser(ctx, reqID, targetID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, user.Summary())
	case http.MethodPut:
		var update model.ProfileUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.userService.Get().UpdateProfile(ctx, reqID, targetID, update); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]bool{"success": true})
	case http.MethodDelete:
		if err := s.userService.Get().DeleteUser(ctx, reqID, targetID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, map[string]bool{"success": true})
	}
}

// followHandler adds the edge user_id -> target_id. The authorization
// target is user_id: the resource being written is that user's following
// list.
func (s *server) followHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeMutationHandler(w, r, s.socialGraphService.Get().Follow)
}

func (s *server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeMutationHandler(w, r, s.socialGraphService.Get().Unfollow)
}

func (s *server) edgeMutationHandler(w http.ResponseWriter, r *http.Request, op func(context.Context, int64, string, string) error) {
	ctx := r.Context()
	reqID := newReqID()
	followerID := r.FormValue("user_id")
	followeeID := r.FormValue("target_id")
	if err := s.authorize(r, followerID); err != nil {
		s.writeError(w, err)
		return
	}
	if err := op(ctx, reqID, followerID, followeeID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]bool{"success": true})
}

func (s *server) isFollowingHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := newReqID()
	followerID := r.FormValue("user_id")
	followeeID := r.FormValue("target_id")
	if err := s.authorize(r, followerID); err != nil {
		s.writeError(w, err)
		return
	}
	following, err := s.socialGraphService.Get().IsFollowing(ctx, reqID, followerID, followeeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]bool{"is_following": following})
}

func (s *server) followersHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeListingHandler(w, r, s.socialGraphService.Get().GetFollowers)
}

func (s *server) followingHandler(w http.ResponseWriter, r *http.Request) {
	s.edgeListingHandler(w, r, s.socialGraphService.Get().GetFollowing)
}

func (s *server) edgeListingHandler(w http.ResponseWriter, r *http.Request, list func(context.Context, int64, string) ([]model.UserSummary, error)) {
	ctx := r.Context()
	reqID := newReqID()
	userID := r.FormValue("user_id")
	if err := s.authorize(r, userID); err != nil {
		s.writeError(w, err)
		return
	}
	summaries, err := list(ctx, reqID, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, summaries)
}

func (s *server) followCountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := newReqID()
	userID := r.FormValue("user_id")
	if err := s.authorize(r, userID); err != nil {
		s.writeError(w, err)
		return
	}
	counts, err := s.socialGraphService.Get().FollowCounts(ctx, reqID, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, counts)
}
