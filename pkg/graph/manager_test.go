package graph

import (
	"context"
	"testing"

	"apnaspace/pkg/model"
	"apnaspace/pkg/storage"
	"apnaspace/pkg/storage/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *storetest.MemStore {
	return storetest.NewMemStore(
		model.User{UserID: "alice", Username: "alice", FirstName: "Alice", LastName: "A", Avatar: "alice.png"},
		model.User{UserID: "bob", Username: "bob", FirstName: "Bob", LastName: "B", Avatar: "bob.png"},
		model.User{UserID: "carol", Username: "carol"},
	)
}

func TestFollowDualConsistency(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	require.NoError(t, m.Follow(ctx, "alice", "bob"))

	bob, ok := store.User("bob")
	require.True(t, ok)
	assert.Contains(t, bob.Followers, "alice")
	alice, ok := store.User("alice")
	require.True(t, ok)
	assert.Contains(t, alice.Following, "bob")

	following, err := m.IsFollowing(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, following)

	followers, err := m.Followers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].UserID)
	assert.Equal(t, "Alice A", followers[0].DisplayName)
	assert.Equal(t, "alice.png", followers[0].Avatar)

	followees, err := m.Following(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, followees, 1)
	assert.Equal(t, "bob", followees[0].UserID)
}

func TestFollowIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	require.NoError(t, m.Follow(ctx, "alice", "bob"))
	require.NoError(t, m.Follow(ctx, "alice", "bob"))

	counts, err := m.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.FollowerCount)
	counts, err = m.Counts(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.FollowingCount)
}

func TestUnfollowNeverFollowedIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	require.NoError(t, m.Unfollow(ctx, "alice", "bob"))

	counts, err := m.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.FollowerCount)
	assert.Equal(t, 0, counts.FollowingCount)
}

func TestFollowThenUnfollow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	require.NoError(t, m.Follow(ctx, "alice", "bob"))
	require.NoError(t, m.Follow(ctx, "carol", "bob"))

	counts, err := m.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, counts.FollowerCount)

	require.NoError(t, m.Unfollow(ctx, "alice", "bob"))

	counts, err = m.Counts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.FollowerCount)

	following, err := m.IsFollowing(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, following)
	following, err = m.IsFollowing(ctx, "carol", "bob")
	require.NoError(t, err)
	assert.True(t, following)
}

func TestFollowAtomicRollback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	// first set write succeeds, second one faults mid-transaction
	store.FailAfterWrites = 1
	err := m.Follow(ctx, "alice", "bob")
	require.ErrorIs(t, err, storetest.ErrInjected)

	// neither side of the edge may be visible after the abort
	bob, _ := store.User("bob")
	assert.Empty(t, bob.Followers)
	alice, _ := store.User("alice")
	assert.Empty(t, alice.Following)
}

func TestUnfollowAtomicRollback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)
	require.NoError(t, m.Follow(ctx, "alice", "bob"))

	store.FailAfterWrites = store.SetCount + 1
	err := m.Unfollow(ctx, "alice", "bob")
	require.ErrorIs(t, err, storetest.ErrInjected)

	bob, _ := store.User("bob")
	assert.Contains(t, bob.Followers, "alice")
	alice, _ := store.User("alice")
	assert.Contains(t, alice.Following, "bob")
}

func TestFollowCanceledContextRollsBack(t *testing.T) {
	store := newTestStore()
	m := NewManager(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Follow(ctx, "alice", "bob")
	require.Error(t, err)

	bob, _ := store.User("bob")
	assert.Empty(t, bob.Followers)
	alice, _ := store.User("alice")
	assert.Empty(t, alice.Following)
}

func TestUnfollowSelfShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	err := m.Unfollow(ctx, "alice", "alice")
	require.ErrorIs(t, err, ErrSelfUnfollow)
	assert.Zero(t, store.TxCount)
	assert.Zero(t, store.SetCount)
}

// Follow has no self guard: a self-follow lands in both sets of the same
// document. Pinned here so a future guard is an explicit decision.
func TestFollowSelfIsStored(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	require.NoError(t, m.Follow(ctx, "alice", "alice"))
	alice, _ := store.User("alice")
	assert.Contains(t, alice.Followers, "alice")
	assert.Contains(t, alice.Following, "alice")
}

func TestFollowMissingTargetAborts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	m := NewManager(store, nil)

	err := m.Follow(ctx, "alice", "ghost")
	require.Error(t, err)

	alice, _ := store.User("alice")
	assert.Empty(t, alice.Following)
}

func TestFollowEmptyIDs(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), nil)

	assert.ErrorIs(t, m.Follow(ctx, "", "bob"), ErrEmptyID)
	assert.ErrorIs(t, m.Follow(ctx, "alice", ""), ErrEmptyID)
	assert.ErrorIs(t, m.Unfollow(ctx, "", "bob"), ErrEmptyID)
	assert.ErrorIs(t, m.Unfollow(ctx, "alice", ""), ErrEmptyID)
}

func TestListingsForMissingUserAreEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), nil)

	followers, err := m.Followers(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, followers)

	following, err := m.Following(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, following)

	isFollowing, err := m.IsFollowing(ctx, "alice", "ghost")
	require.NoError(t, err)
	assert.False(t, isFollowing)
}

func TestCountsForMissingUserIsNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestStore(), nil)

	_, err := m.Counts(ctx, "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummariesSkipDanglingIDs(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewMemStore(
		model.User{UserID: "bob", Username: "bob", Followers: []string{"alice", "ghost"}},
		model.User{UserID: "alice", Username: "alice"},
	)
	m := NewManager(store, nil)

	followers, err := m.Followers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].UserID)
}
