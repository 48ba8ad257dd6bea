package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type countingHasher struct {
	calls int
	err   error
}

func (h *countingHasher) Hash(plain []byte) ([]byte, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return append([]byte("hashed:"), plain...), nil
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *countingHasher) {
	t.Helper()
	repo := NewMemoryRepository()
	hasher := &countingHasher{}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceConfig{Repository: repo, Hasher: hasher, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	return svc, repo, hasher
}

func TestRegisterAssignsDefaultRoleAndHashes(t *testing.T) {
	svc, repo, hasher := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{UserName: " ram ", Email: "ram@example.com", Password: "secret", SentimentAnalysis: true})
	require.NoError(t, err)
	require.Equal(t, "ram", user.UserName)
	require.Equal(t, []string{RoleUser}, user.Roles)
	require.Equal(t, []byte("hashed:secret"), user.PasswordHash)
	require.NotEqual(t, uuid.Nil, user.ID)
	require.Equal(t, 1, hasher.calls)

	stored, err := repo.FindByUserName(ctx, "ram")
	require.NoError(t, err)
	require.Equal(t, user.ID, stored.ID)
	require.True(t, stored.SentimentAnalysis)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{UserName: "ram", Email: "ram@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, Registration{UserName: "ram", Email: "other@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrUserNameTaken)

	_, err = svc.Register(ctx, Registration{UserName: "shyam", Email: "RAM@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _, hasher := newTestService(t)
	ctx := context.Background()

	for _, reg := range []Registration{
		{Password: "x"},
		{UserName: "ram"},
		{UserName: "ram", Password: "x", Email: "not-an-email"},
	} {
		_, err := svc.Register(ctx, reg)
		require.ErrorIs(t, err, ErrInvalidUser, "%+v", reg)
	}
	require.Zero(t, hasher.calls)
}

func TestRegisterPropagatesHashFailure(t *testing.T) {
	svc, _, hasher := newTestService(t)
	hasher.err = errors.New("entropy exhausted")

	_, err := svc.Register(context.Background(), Registration{UserName: "ram", Password: "x"})
	require.ErrorContains(t, err, "entropy exhausted")
}

func TestPromoteAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PromoteAdmin(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Register(ctx, Registration{UserName: "ram", Password: "x"})
	require.NoError(t, err)

	user, err := svc.PromoteAdmin(ctx, "ram")
	require.NoError(t, err)
	require.True(t, user.HasRole(RoleAdmin))
	require.True(t, user.HasRole(RoleUser))

	again, err := svc.PromoteAdmin(ctx, "ram")
	require.NoError(t, err)
	require.Equal(t, user.Roles, again.Roles)
	require.Equal(t, []byte("hashed:x"), again.PasswordHash)
}

func TestListFindDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"zed", "amy"} {
		_, err := svc.Register(ctx, Registration{UserName: name, Password: "x"})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "amy", all[0].UserName)

	_, err = svc.FindByUserName(ctx, "")
	require.ErrorIs(t, err, ErrInvalidUser)

	require.NoError(t, svc.Delete(ctx, "amy"))
	require.ErrorIs(t, svc.Delete(ctx, "amy"), ErrUserNotFound)
	_, err = svc.FindByUserName(ctx, "amy")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{Hasher: BcryptHasher{}})
	require.ErrorIs(t, err, ErrInvalidUser)
}
