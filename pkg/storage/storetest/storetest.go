// Package storetest provides an in-memory storage.Store with fault
// injection, used to exercise the follow graph's atomicity contract
// without a live mongodb.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"apnaspace/pkg/model"
	"apnaspace/pkg/storage"
)

// ErrInjected is returned by a set write once the configured write budget
// is exhausted.
var ErrInjected = errors.New("injected storage fault")

type MemStore struct {
	mu    sync.Mutex
	users map[string]model.User

	// FailAfterWrites is the number of set writes allowed before every
	// further write fails with ErrInjected. Negative means never fail.
	FailAfterWrites int

	// Counters for asserting on storage traffic.
	TxCount  int
	SetCount int

	writes int
}

func NewMemStore(users ...model.User) *MemStore {
	s := &MemStore{
		users:           make(map[string]model.User),
		FailAfterWrites: -1,
	}
	for _, u := range users {
		s.users[u.UserID] = cloneUser(u)
	}
	return s
}

func cloneUser(u model.User) model.User {
	u.Followers = append([]string(nil), u.Followers...)
	u.Following = append([]string(nil), u.Following...)
	return u
}

// User returns the stored document directly, for post-condition checks.
func (s *MemStore) User(userID string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, false
	}
	return cloneUser(u), true
}

func (s *MemStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("%w: %s", storage.ErrNotFound, userID)
	}
	return cloneUser(u), nil
}

func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return model.User{}, fmt.Errorf("%w: username %s", storage.ErrNotFound, username)
}

func (s *MemStore) GetUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []model.User
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			users = append(users, cloneUser(u))
		}
	}
	return users, nil
}

func (s *MemStore) InsertUser(ctx context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UserID]; ok {
		return fmt.Errorf("user %s already exists", user.UserID)
	}
	s.users[user.UserID] = cloneUser(user)
	return nil
}

func (s *MemStore) UpdateUser(ctx context.Context, userID string, update model.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, userID)
	}
	if update.FirstName != "" {
		u.FirstName = update.FirstName
	}
	if update.LastName != "" {
		u.LastName = update.LastName
	}
	if update.Avatar != "" {
		u.Avatar = update.Avatar
	}
	s.users[userID] = u
	return nil
}

func (s *MemStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, userID)
	}
	delete(s.users, userID)
	return nil
}

// Transact stages fn's writes on a copy of the documents and publishes
// the copy only if fn succeeds and the context is still live, mirroring
// the all-or-nothing commit of a mongo session transaction.
func (s *MemStore) Transact(ctx context.Context, fn func(ctx context.Context, tx storage.SetWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TxCount++

	stage := make(map[string]model.User, len(s.users))
	for id, u := range s.users {
		stage[id] = cloneUser(u)
	}
	if err := fn(ctx, &memTx{store: s, stage: stage}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.users = stage
	return nil
}

type memTx struct {
	store *MemStore
	stage map[string]model.User
}

func (t *memTx) write(userID string) (model.User, error) {
	t.store.SetCount++
	t.store.writes++
	if t.store.FailAfterWrites >= 0 && t.store.writes > t.store.FailAfterWrites {
		return model.User{}, ErrInjected
	}
	u, ok := t.stage[userID]
	if !ok {
		return model.User{}, fmt.Errorf("%w: %s", storage.ErrNotFound, userID)
	}
	return u, nil
}

func (t *memTx) AddToSet(ctx context.Context, userID string, field string, memberID string) error {
	u, err := t.write(userID)
	if err != nil {
		return err
	}
	switch field {
	case storage.FieldFollowers:
		u.Followers = addMember(u.Followers, memberID)
	case storage.FieldFollowing:
		u.Following = addMember(u.Following, memberID)
	default:
		return fmt.Errorf("unknown set field %q", field)
	}
	t.stage[userID] = u
	return nil
}

func (t *memTx) PullFromSet(ctx context.Context, userID string, field string, memberID string) error {
	u, err := t.write(userID)
	if err != nil {
		return err
	}
	switch field {
	case storage.FieldFollowers:
		u.Followers = removeMember(u.Followers, memberID)
	case storage.FieldFollowing:
		u.Following = removeMember(u.Following, memberID)
	default:
		return fmt.Errorf("unknown set field %q", field)
	}
	t.stage[userID] = u
	return nil
}

func addMember(set []string, member string) []string {
	for _, m := range set {
		if m == member {
			return set
		}
	}
	return append(set, member)
}

func removeMember(set []string, member string) []string {
	out := set[:0]
	for _, m := range set {
		if m != member {
			out = append(out, m)
		}
	}
	return out
}

var _ storage.Store = (*MemStore)(nil)
