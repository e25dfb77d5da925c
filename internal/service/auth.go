package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkirev/auth_service/internal/events"
	"github.com/valkirev/auth_service/internal/hash"
	"github.com/valkirev/auth_service/internal/logging"
	"github.com/valkirev/auth_service/internal/models"
	"github.com/valkirev/auth_service/internal/repo"
	"github.com/valkirev/auth_service/internal/session"
	"github.com/valkirev/auth_service/internal/tokens"
)

var (
	// ErrInvalidCredentials covers both unknown user and wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRevokedOrExpired   = errors.New("token revoked or expired")
	ErrForbidden          = errors.New("not enough rights")
	ErrDuplicate          = errors.New("user already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
	// ErrTransient marks store/cache timeouts; the caller may retry.
	ErrTransient = errors.New("temporarily unavailable")
)

type AuthService struct {
	Users    *repo.UserRepo
	Sessions session.Cache
	Codec    *tokens.Codec
	Producer *events.Producer

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// OpTimeout bounds every store/cache call. Zero disables the bound.
	OpTimeout time.Duration
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

func (s *AuthService) Register(ctx context.Context, username, email, fullName, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", username)

	digest, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash password", "error", err)
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: digest,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.Users.Create(opCtx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "reason", "user_exists")
			return nil, ErrDuplicate
		}
		l.Error("register_failed", "error", err)
		return nil, transient(err)
	}

	s.publish(ctx, user.ID, map[string]any{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("register_success", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, login, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "login", login)

	opCtx, cancel := s.opCtx(ctx)
	user, err := s.Users.FindByLogin(opCtx, login)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "reason", "invalid credentials")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, transient(err)
	}

	if !user.IsActive {
		l.Warn("login_failed", "reason", "account disabled", "user_id", user.ID)
		return nil, ErrAccountDisabled
	}

	if !s.Users.VerifyPassword(user, password) {
		l.Warn("login_failed", "reason", "invalid credentials")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		l.Error("login_failed", "error", err)
		return nil, err
	}

	s.publish(ctx, user.ID, map[string]any{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("login_success", "user_id", user.ID)
	return pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := s.Codec.DecodeRefresh(rawRefresh)
	if err != nil {
		l.Warn("refresh_failed", "reason", "codec", "error", err)
		return nil, ErrInvalidToken
	}
	userID, err := tokens.ParseSubject(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// Consume is the rotation pivot: the atomic delete-if-present lets
	// exactly one of two concurrent refreshes with the same token win.
	opCtx, cancel := s.opCtx(ctx)
	entry, err := s.Sessions.Consume(opCtx, claims.ID)
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			l.Warn("refresh_failed", "reason", "revoked or expired", "user_id", userID)
			return nil, ErrRevokedOrExpired
		}
		l.Error("refresh_failed", "error", err)
		return nil, transient(err)
	}
	if entry.UserID != userID {
		return nil, ErrInvalidToken
	}

	opCtx, cancel = s.opCtx(ctx)
	epoch, err := s.Sessions.Epoch(opCtx, userID)
	cancel()
	if err != nil {
		return nil, transient(err)
	}
	if claims.Epoch != epoch {
		l.Warn("refresh_failed", "reason", "epoch mismatch", "user_id", userID)
		return nil, ErrRevokedOrExpired
	}

	opCtx, cancel = s.opCtx(ctx)
	user, err := s.Users.GetByID(opCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRevokedOrExpired
		}
		return nil, transient(err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, err
	}

	l.Info("refresh_success", "user_id", user.ID)
	return pair, nil
}

// Logout revokes the refresh session. A token that no longer decodes
// has nothing left to revoke, so logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	claims, err := s.Codec.DecodeRefresh(rawRefresh)
	if err != nil {
		return nil
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.Sessions.Revoke(opCtx, claims.ID); err != nil {
		l.Error("logout_failed", "error", err)
		return transient(err)
	}

	l.Info("logout_success")
	return nil
}

// CurrentUser resolves validated access claims to the full user record.
func (s *AuthService) CurrentUser(ctx context.Context, claims *tokens.AccessClaims) (*models.User, error) {
	userID, err := tokens.ParseSubject(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	user, err := s.Users.GetByID(opCtx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	users, err := s.Users.List(opCtx, offset, limit)
	if err != nil {
		return nil, transient(err)
	}
	return users, nil
}

// SetActive flips activation state. Deactivation bumps the user's
// epoch, which revokes every outstanding refresh session in one step.
// Already-issued access tokens stay valid until natural expiry.
func (s *AuthService) SetActive(ctx context.Context, id uint, active bool) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.set_active", "user_id", id, "active", active)

	opCtx, cancel := s.opCtx(ctx)
	user, err := s.Users.GetByID(opCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}

	user.IsActive = active
	opCtx, cancel = s.opCtx(ctx)
	err = s.Users.Update(opCtx, user)
	cancel()
	if err != nil {
		l.Error("set_active_failed", "error", err)
		return nil, transient(err)
	}

	eventType := "user_activated"
	if !active {
		eventType = "user_deactivated"
		opCtx, cancel = s.opCtx(ctx)
		_, err = s.Sessions.BumpEpoch(opCtx, user.ID)
		cancel()
		if err != nil {
			l.Error("set_active_failed", "reason", "cannot revoke sessions", "error", err)
			return nil, transient(err)
		}
	}

	s.publish(ctx, user.ID, map[string]any{
		"type":     eventType,
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("set_active_success")
	return user, nil
}

func (s *AuthService) SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.set_role", "user_id", id, "role", role)

	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	opCtx, cancel := s.opCtx(ctx)
	user, err := s.Users.GetByID(opCtx, id)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}

	user.Role = role
	opCtx, cancel = s.opCtx(ctx)
	err = s.Users.Update(opCtx, user)
	cancel()
	if err != nil {
		l.Error("set_role_failed", "error", err)
		return nil, transient(err)
	}

	l.Info("set_role_success")
	return user, nil
}

// ChangePassword replaces the digest and bumps the epoch so that every
// refresh token issued under the old password stops working.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "user_id", userID)

	opCtx, cancel := s.opCtx(ctx)
	user, err := s.Users.GetByID(opCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return transient(err)
	}

	if !s.Users.VerifyPassword(user, current) {
		l.Warn("change_password_failed", "reason", "invalid credentials")
		return ErrInvalidCredentials
	}

	digest, err := hash.HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = digest

	opCtx, cancel = s.opCtx(ctx)
	err = s.Users.Update(opCtx, user)
	cancel()
	if err != nil {
		l.Error("change_password_failed", "error", err)
		return transient(err)
	}

	opCtx, cancel = s.opCtx(ctx)
	_, err = s.Sessions.BumpEpoch(opCtx, user.ID)
	cancel()
	if err != nil {
		l.Error("change_password_failed", "reason", "cannot revoke sessions", "error", err)
		return transient(err)
	}

	s.publish(ctx, user.ID, map[string]any{
		"type":    "password_changed",
		"user_id": user.ID,
	})

	l.Info("change_password_success")
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	opCtx, cancel := s.opCtx(ctx)
	epoch, err := s.Sessions.Epoch(opCtx, user.ID)
	cancel()
	if err != nil {
		return nil, transient(err)
	}

	access, _, err := s.Codec.IssueAccess(user.ID, user.Role, s.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshClaims, err := s.Codec.IssueRefresh(user.ID, epoch, s.RefreshTTL)
	if err != nil {
		return nil, err
	}

	entry := session.Entry{
		UserID:    user.ID,
		IssuedAt:  refreshClaims.IssuedAt.Time,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	opCtx, cancel = s.opCtx(ctx)
	err = s.Sessions.Register(opCtx, refreshClaims.ID, entry, s.RefreshTTL)
	cancel()
	if err != nil {
		return nil, transient(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}

func (s *AuthService) publish(ctx context.Context, userID uint, event map[string]any) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Producer.PublishEvent(pubCtx, tokens.Subject(userID), event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "error", err)
	}
}

func (s *AuthService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.OpTimeout)
}

// transient keeps timeouts distinguishable from "not found" so the
// caller can retry instead of treating the session as revoked.
func transient(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
