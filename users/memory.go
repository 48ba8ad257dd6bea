package users

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepository keeps users in process memory. It enforces the same
// uniqueness rules as the Postgres schema.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]User)}
}

func (r *MemoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.UserName]; ok {
		return ErrUserNameTaken
	}
	if r.emailInUse(user.Email, user.UserName) {
		return ErrEmailTaken
	}
	r.users[user.UserName] = cloneUser(user)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.UserName]; !ok {
		return ErrUserNotFound
	}
	if r.emailInUse(user.Email, user.UserName) {
		return ErrEmailTaken
	}
	r.users[user.UserName] = cloneUser(user)
	return nil
}

func (r *MemoryRepository) FindByUserName(_ context.Context, userName string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userName]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}

func (r *MemoryRepository) DeleteByUserName(_ context.Context, userName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userName]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, userName)
	return nil
}

func (r *MemoryRepository) emailInUse(email, except string) bool {
	if email == "" {
		return false
	}
	for name, u := range r.users {
		if name != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func cloneUser(u User) User {
	u.Roles = append([]string(nil), u.Roles...)
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}
