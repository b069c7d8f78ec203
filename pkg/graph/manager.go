// Package graph maintains the directed follow graph. Each edge A->B is
// stored twice, in B's followers and A's following, and the two copies
// are only ever written inside one storage transaction so readers never
// observe a half-applied edge.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"apnaspace/pkg/model"
	"apnaspace/pkg/storage"
)

var (
	ErrEmptyID 			= errors.New("empty user id")
	ErrSelfUnfollow 	= errors.New("cannot unfollow yourself")
)

// Manager holds no mutable state of its own; correctness under concurrent
// calls comes entirely from the store's transaction semantics.
type Manager struct {
	store  storage.Store
	logger *slog.Logger
}

func NewManager(store storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Follow adds followerID to followeeID's followers and followeeID to
// followerID's following in one transaction. Re-following an existing
// edge is a no-op that still commits. Following yourself is deliberately
// not special-cased, matching the asymmetry with Unfollow.
func (m *Manager) Follow(ctx context.Context, followerID string, followeeID string) error {
	if followerID == "" || followeeID == "" {
		return ErrEmptyID
	}
	err := m.store.Transact(ctx, func(ctx context.Context, tx storage.SetWriter) error {
		if err := tx.AddToSet(ctx, followeeID, storage.FieldFollowers, followerID); err != nil {
			return err
		}
		return tx.AddToSet(ctx, followerID, storage.FieldFollowing, followeeID)
	})
	if err != nil {
		m.logger.Error("follow transaction aborted", "follower_id", followerID, "followee_id", followeeID, "msg", err.Error())
		return err
	}
	return nil
}

// Unfollow removes the edge in one transaction. Removing a non-existent
// edge between existing users is a no-op that still commits. Unlike
// Follow, unfollowing yourself short-circuits before any storage call.
func (m *Manager) Unfollow(ctx context.Context, followerID string, followeeID string) error {
	if followerID == "" || followeeID == "" {
		return ErrEmptyID
	}
	if followerID == followeeID {
		return ErrSelfUnfollow
	}
	err := m.store.Transact(ctx, func(ctx context.Context, tx storage.SetWriter) error {
		if err := tx.PullFromSet(ctx, followeeID, storage.FieldFollowers, followerID); err != nil {
			return err
		}
		return tx.PullFromSet(ctx, followerID, storage.FieldFollowing, followeeID)
	})
	if err != nil {
		m.logger.Error("unfollow transaction aborted", "follower_id", followerID, "followee_id", followeeID, "msg", err.Error())
		return err
	}
	return nil
}

// IsFollowing reports whether followerID follows followeeID. A missing
// followee reads as false rather than an error.
func (m *Manager) IsFollowing(ctx context.Context, followerID string, followeeID string) (bool, error) {
	if followerID == "" || followeeID == "" {
		return false, ErrEmptyID
	}
	followee, err := m.store.GetUser(ctx, followeeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, id := range followee.Followers {
		if id == followerID {
			return true, nil
		}
	}
	return false, nil
}

// Followers projects the followers set to user summaries, preserving the
// stored set order. A missing user yields an empty list.
func (m *Manager) Followers(ctx context.Context, userID string) ([]model.UserSummary, error) {
	return m.listEdges(ctx, userID, storage.FieldFollowers)
}

// Following is the symmetric projection over the following set.
func (m *Manager) Following(ctx context.Context, userID string) ([]model.UserSummary, error) {
	return m.listEdges(ctx, userID, storage.FieldFollowing)
}

func (m *Manager) listEdges(ctx context.Context, userID string, field string) ([]model.UserSummary, error) {
	if userID == "" {
		return nil, ErrEmptyID
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []model.UserSummary{}, nil
		}
		return nil, err
	}
	ids := user.Followers
	if field == storage.FieldFollowing {
		ids = user.Following
	}
	return m.Summaries(ctx, ids)
}

// Summaries resolves ids to summaries, keeping the order of ids. Ids that
// no longer resolve to a user are skipped.
func (m *Manager) Summaries(ctx context.Context, ids []string) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}
	users, err := m.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.UserID] = u
	}
	summaries := make([]model.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			summaries = append(summaries, u.Summary())
		}
	}
	return summaries, nil
}

// Counts returns the two set cardinalities. Unlike the listings, a
// missing user is an error: {0,0} for a nonexistent identity would be
// indistinguishable from a real empty profile.
func (m *Manager) Counts(ctx context.Context, userID string) (model.FollowCounts, error) {
	if userID == "" {
		return model.FollowCounts{}, ErrEmptyID
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return model.FollowCounts{}, fmt.Errorf("reading follow counts: %w", err)
	}
	return model.FollowCounts{
		FollowerCount:  len(user.Followers),
		FollowingCount: len(user.Following),
	}, nil
}
