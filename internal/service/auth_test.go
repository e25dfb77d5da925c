package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/valkirev/auth_service/internal/events"
	"github.com/valkirev/auth_service/internal/models"
	"github.com/valkirev/auth_service/internal/repo"
	"github.com/valkirev/auth_service/internal/session"
	"github.com/valkirev/auth_service/internal/tokens"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	codec, err := tokens.NewCodec([]tokens.Key{{ID: "k1", Secret: []byte("test-secret")}}, 0)
	require.NoError(t, err)

	return &AuthService{
		Users:      &repo.UserRepo{DB: db},
		Sessions:   session.NewMemoryCache(),
		Codec:      codec,
		Producer:   events.NewProducer(nil),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		OpTimeout:  3 * time.Second,
	}
}

func registerUser(t *testing.T, svc *AuthService, username, password string) *models.User {
	t.Helper()
	user, err := svc.Register(context.Background(), username, username+"@example.com", "", password)
	require.NoError(t, err)
	return user
}

func TestAuthService_RegisterDefaults(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	assert.NotZero(t, user.ID)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "securepw123", user.PasswordHash)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	_, err := svc.Register(context.Background(), "johndoe", "other@example.com", "", "pw")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Register(context.Background(), "other", "johndoe@example.com", "", "pw")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAuthService_LoginSuccess(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	claims, err := svc.Codec.DecodeAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.Subject(user.ID), claims.Subject)
	assert.Equal(t, models.RoleUser, claims.Role)

	// Login by email works the same.
	_, err = svc.Login(context.Background(), "johndoe@example.com", "securepw123")
	assert.NoError(t, err)
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	// Unknown user and wrong password must be indistinguishable.
	_, errUnknown := svc.Login(context.Background(), "nobody", "securepw123")
	_, errWrongPW := svc.Login(context.Background(), "johndoe", "wrongpw")

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPW, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPW.Error())
}

func TestAuthService_LoginDisabledAccount(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	_, err := svc.SetActive(context.Background(), user.ID, false)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "johndoe", "securepw123")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthService_RefreshRotation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.NotEmpty(t, next.AccessToken)

	// The rotated-out token is single-use.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedOrExpired)

	// The replacement still works.
	_, err = svc.Refresh(context.Background(), next.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ConcurrentRefreshSingleWinner(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

func TestAuthService_LogoutThenRefresh(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedOrExpired)

	// Logging out twice is not an error, nor is logging out garbage.
	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
	require.NoError(t, svc.Logout(context.Background(), "not-a-jwt"))
}

func TestAuthService_DeactivateRevokesSessions(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	_, err = svc.SetActive(context.Background(), user.ID, false)
	require.NoError(t, err)

	// Refresh sessions die with the deactivation.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)

	// Access tokens stay valid until natural expiry.
	claims, err := svc.Codec.DecodeAccess(pair.AccessToken)
	require.NoError(t, err)
	got, err := svc.CurrentUser(context.Background(), claims)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestAuthService_ReactivationDoesNotResurrectOldSessions(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	_, err = svc.SetActive(context.Background(), user.ID, false)
	require.NoError(t, err)
	_, err = svc.SetActive(context.Background(), user.ID, true)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedOrExpired)

	// A fresh login works and its pair survives a refresh.
	fresh, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), fresh.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	pair, err := svc.Login(context.Background(), "johndoe", "securepw123")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrongpw", "newpw456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "securepw123", "newpw456"))

	// Old refresh sessions are revoked by the epoch bump.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRevokedOrExpired)

	_, err = svc.Login(context.Background(), "johndoe", "securepw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "johndoe", "newpw456")
	assert.NoError(t, err)
}

func TestAuthService_SetRole(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	user := registerUser(t, svc, "johndoe", "securepw123")

	updated, err := svc.SetRole(context.Background(), user.ID, models.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, updated.Role)

	_, err = svc.SetRole(context.Background(), user.ID, models.Role("root"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.SetRole(context.Background(), 9999, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthService_ListUsers(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	registerUser(t, svc, "a", "pw")
	registerUser(t, svc, "b", "pw")

	users, err := svc.ListUsers(context.Background(), 0, 100)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
