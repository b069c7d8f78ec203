package authz

import (
	"errors"
	"fmt"
	"net/http"

	"apnaspace/pkg/model"
)

type ActionKind int

const (
	ACTION_READ ActionKind = iota 	// 0
	ACTION_UPDATE 					// 1
	ACTION_DELETE 					// 2
	ACTION_OTHER 					// 3
)

// ActionFromMethod maps an HTTP verb to the action kind the policy
// decides over. Anything that is not a read, update or delete collapses
// to ACTION_OTHER.
func ActionFromMethod(method string) ActionKind {
	switch method {
	case http.MethodGet, http.MethodHead:
		return ACTION_READ
	case http.MethodPut, http.MethodPatch:
		return ACTION_UPDATE
	case http.MethodDelete:
		return ACTION_DELETE
	default:
		return ACTION_OTHER
	}
}

var (
	ErrUnauthenticated = errors.New("no authenticated actor")
	ErrBadTarget       = errors.New("missing or malformed target user id")
)

// DeniedError is returned when the actor is authenticated and the target
// is well formed but the policy rejects the action.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

// Policy decides whether an actor may perform an action on a target user
// resource. It holds no state and is safe for concurrent use.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

// Authorize returns nil when the action is allowed. Admins may act on any
// user except deleting their own account; plain users may only act on
// themselves. The decision is a pure function of (isSelf, isAdmin, action).
func (p *Policy) Authorize(actor *model.AuthContext, targetID string, action ActionKind) error {
	if actor == nil || actor.UserID == "" {
		return ErrUnauthenticated
	}
	if targetID == "" {
		return ErrBadTarget
	}
	isSelf := actor.UserID == targetID
	if actor.Role == model.ROLE_ADMIN {
		if isSelf && action == ACTION_DELETE {
			return &DeniedError{Reason: "admins cannot delete their own account"}
		}
		return nil
	}
	if isSelf {
		return nil
	}
	return &DeniedError{Reason: "not permitted on another user"}
}
