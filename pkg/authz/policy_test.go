package authz

import (
	"errors"
	"net/http"
	"testing"

	"apnaspace/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeMatrix(t *testing.T) {
	plainUser := &model.AuthContext{UserID: "u1", Role: model.ROLE_USER}
	admin := &model.AuthContext{UserID: "a1", Role: model.ROLE_ADMIN}

	tests := []struct {
		name     string
		actor    *model.AuthContext
		targetID string
		action   ActionKind
		wantErr  error
		denied   bool
	}{
		{name: "user updates self", actor: plainUser, targetID: "u1", action: ACTION_UPDATE},
		{name: "user reads self", actor: plainUser, targetID: "u1", action: ACTION_READ},
		{name: "user deletes self", actor: plainUser, targetID: "u1", action: ACTION_DELETE},
		{name: "user reads other", actor: plainUser, targetID: "u2", action: ACTION_READ, denied: true},
		{name: "user updates other", actor: plainUser, targetID: "u2", action: ACTION_UPDATE, denied: true},
		{name: "user deletes other", actor: plainUser, targetID: "u2", action: ACTION_DELETE, denied: true},
		{name: "admin reads other", actor: admin, targetID: "u2", action: ACTION_READ},
		{name: "admin updates other", actor: admin, targetID: "u2", action: ACTION_UPDATE},
		{name: "admin deletes other", actor: admin, targetID: "u2", action: ACTION_DELETE},
		{name: "admin updates self", actor: admin, targetID: "a1", action: ACTION_UPDATE},
		{name: "admin deletes self", actor: admin, targetID: "a1", action: ACTION_DELETE, denied: true},
		{name: "no actor", actor: nil, targetID: "u2", action: ACTION_READ, wantErr: ErrUnauthenticated},
		{name: "empty actor id", actor: &model.AuthContext{}, targetID: "u2", action: ACTION_READ, wantErr: ErrUnauthenticated},
		{name: "empty target", actor: plainUser, targetID: "", action: ACTION_READ, wantErr: ErrBadTarget},
	}

	policy := NewPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Authorize(tt.actor, tt.targetID, tt.action)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.denied {
				var denied *DeniedError
				require.Error(t, err)
				assert.True(t, errors.As(err, &denied))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAdminSelfDeleteReason(t *testing.T) {
	admin := &model.AuthContext{UserID: "a1", Role: model.ROLE_ADMIN}
	err := NewPolicy().Authorize(admin, "a1", ACTION_DELETE)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Contains(t, denied.Reason, "delete")
}

func TestActionFromMethod(t *testing.T) {
	assert.Equal(t, ACTION_READ, ActionFromMethod(http.MethodGet))
	assert.Equal(t, ACTION_UPDATE, ActionFromMethod(http.MethodPut))
	assert.Equal(t, ACTION_UPDATE, ActionFromMethod(http.MethodPatch))
	assert.Equal(t, ACTION_DELETE, ActionFromMethod(http.MethodDelete))
	assert.Equal(t, ACTION_OTHER, ActionFromMethod(http.MethodPost))
}
