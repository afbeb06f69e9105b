package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/policy"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
	"github.com/vamosfrotas/fleet-access/internal/core/token"
)

// timingDummy is hashed once so unknown-username logins cost one bcrypt
// comparison, like a real wrong password does.
const timingDummy = "timing-equaliser-Xx9!"

// ResetThrottle limits how often a reset can be requested per username.
type ResetThrottle interface {
	Allow(ctx context.Context, username string) (bool, error)
}

// AccessService implements login, registration, password lifecycle and admin
// operations on top of a RecordStore.
//
// All mutations are serialized by a process-local mutex around the
// load-modify-replace cycle. Instances sharing one backing store are not
// coordinated; the last writer wins.
type AccessService struct {
	mu sync.Mutex

	store    ports.RecordStore
	notifier ports.Notifier
	throttle ResetThrottle
	policy   policy.Policy
	issuer   token.Issuer
	settings *Settings
	log      zerolog.Logger

	dummyHash string
}

var _ ports.AccessService = (*AccessService)(nil)

func NewAccessService(store ports.RecordStore, notifier ports.Notifier, settings *Settings, log zerolog.Logger) (*AccessService, error) {
	p := policy.New(settings.BcryptCost, settings.PasswordMaxAge)
	dummy, err := p.Hash(timingDummy)
	if err != nil {
		return nil, fmt.Errorf("prepare access service: %w", err)
	}
	return &AccessService{
		store:     store,
		notifier:  notifier,
		policy:    p,
		issuer:    token.NewIssuer(settings.ResetTokenTTL),
		settings:  settings,
		log:       log,
		dummyHash: dummy,
	}, nil
}

// WithResetThrottle installs an optional reset throttle.
func (s *AccessService) WithResetThrottle(t ResetThrottle) *AccessService {
	s.throttle = t
	return s
}

// Login verifies credentials and reports which follow-up step, if any, the
// caller must complete. The password is checked before the account status so
// that status is never revealed without a valid credential.
func (s *AccessService) Login(ctx context.Context, username, password string, now time.Time) (*ports.LoginResult, error) {
	users, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(users, username)
	if i < 0 {
		policy.Verify(password, s.dummyHash)
		s.log.Info().Str("username", username).Msg("login rejected: unknown user")
		return nil, domain.ErrNotFound
	}

	u := users[i]
	if !policy.Verify(password, u.PasswordHash) {
		s.log.Info().Str("username", username).Msg("login rejected: bad credential")
		return nil, domain.ErrBadCredential
	}

	switch u.Status {
	case domain.StatusPending:
		return nil, domain.ErrPending
	case domain.StatusDisabled:
		return nil, domain.ErrDisabled
	}

	state := s.stateFor(u, now)
	s.log.Info().Str("username", username).Str("state", string(state)).Msg("login accepted")
	return &ports.LoginResult{User: u, State: state}, nil
}

func (s *AccessService) stateFor(u domain.User, now time.Time) domain.LoginState {
	if u.TermsAcceptedAt == nil {
		return domain.StateTermsPending
	}
	if u.MustRotate || s.policy.IsExpired(u.PasswordSetAt, now) {
		return domain.StatePasswordExpired
	}
	return domain.StateAuthenticated
}

// Register creates a Pending account and notifies active admins. Notification
// failures are returned as warnings, never as errors.
func (s *AccessService) Register(ctx context.Context, in ports.RegisterInput, now time.Time) (*ports.RegisterResult, error) {
	if err := validUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validEmail(in.Email); err != nil {
		return nil, err
	}

	current, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if indexOf(current, in.Username) >= 0 {
		return nil, domain.ErrAlreadyExists
	}

	if err := policy.ValidateFor(in.Password, in.Username, in.Email); err != nil {
		return nil, err
	}
	hash, err := s.policy.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	created := domain.User{
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		PasswordSetAt: now.UTC(),
		Status:        domain.StatusPending,
	}

	var admins []domain.User
	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if indexOf(users, in.Username) >= 0 {
			return nil, domain.ErrAlreadyExists
		}
		for _, u := range users {
			if u.IsAdmin && u.Status == domain.StatusActive && u.Email != "" {
				admins = append(admins, u)
			}
		}
		return append(users, created), nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("username", in.Username).Msg("registration stored, pending approval")

	result := &ports.RegisterResult{User: created}
	subject, body := registrationMessage(s.settings.BaseURL, created)
	for _, admin := range admins {
		if err := s.notifier.Send(ctx, admin.Email, subject, body); err != nil {
			s.log.Error().Err(err).Str("username", in.Username).Str("admin", admin.Username).Msg("failed to notify admin of registration")
			result.Warnings = append(result.Warnings, "administrator "+admin.Username+" could not be notified")
		}
	}
	return result, nil
}

// RequestReset issues a reset token, stores it on the record and mails a link.
// It reports success for unknown, disabled or throttled usernames alike. A
// token is stored even when the account has no email address; the link is
// then simply not sent.
func (s *AccessService) RequestReset(ctx context.Context, username string, now time.Time) error {
	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, username)
		if err != nil {
			s.log.Warn().Err(err).Str("username", username).Msg("reset throttle check failed, continuing")
		} else if !allowed {
			s.log.Debug().Str("username", username).Msg("reset request throttled")
			return nil
		}
	}

	issued, err := s.issuer.Issue(now)
	if err != nil {
		return err
	}

	var (
		target domain.User
		stored bool
	)
	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		i := indexOf(users, username)
		if i < 0 {
			s.log.Debug().Str("username", username).Msg("reset requested for unknown user")
			return nil, errSkipWrite
		}
		if users[i].Status == domain.StatusDisabled {
			s.log.Debug().Str("username", username).Msg("reset requested for disabled user")
			return nil, errSkipWrite
		}
		attachToken(&users[i], issued)
		target, stored = users[i], true
		return users, nil
	})
	if err != nil || !stored {
		return err
	}

	if target.Email == "" {
		s.log.Warn().Str("username", username).Msg("reset token stored but user has no email address, link not sent")
		return nil
	}
	subject, body := s.tokenMessage(target, issued)
	if err := s.notifier.Send(ctx, target.Email, subject, body); err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("failed to send reset link")
	}
	return nil
}

func attachToken(u *domain.User, issued token.Issued) {
	rt := issued.Record
	u.ResetToken = &rt
}

// tokenMessage picks the invite wording for accounts that never had a
// password and the reset wording otherwise.
func (s *AccessService) tokenMessage(u domain.User, issued token.Issued) (string, string) {
	if u.PasswordHash == "" {
		return inviteMessage(s.settings.BaseURL, u.Username, issued)
	}
	return resetMessage(s.settings.BaseURL, u.Username, issued)
}

// CompleteReset consumes a reset token and sets a new password. Expired tokens
// are cleared as they are discovered.
func (s *AccessService) CompleteReset(ctx context.Context, username, presented, newPassword string, now time.Time) error {
	users, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	var u domain.User
	var outstanding *domain.ResetToken
	if i := indexOf(users, username); i >= 0 {
		u = users[i]
		outstanding = u.ResetToken
	}
	if err := token.Validate(outstanding, presented, now); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("reset token rejected")
		if errors.Is(err, domain.ErrTokenExpired) {
			s.clearExpiredToken(ctx, username, now)
		}
		return err
	}

	hash, err := s.newPasswordHash(u, newPassword)
	if err != nil {
		return err
	}

	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrTokenMissing
		}
		// Re-checked under the lock: a concurrent request may have consumed it.
		if err := token.Validate(users[i].ResetToken, presented, now); err != nil {
			return nil, err
		}
		users[i].PasswordHash = hash
		users[i].PasswordSetAt = now.UTC()
		users[i].ResetToken = nil
		users[i].MustRotate = false
		if users[i].ActivateOnSet && users[i].Status == domain.StatusPending {
			users[i].Status = domain.StatusActive
		}
		users[i].ActivateOnSet = false
		return users, nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("username", username).Msg("password reset completed")
	return nil
}

func (s *AccessService) clearExpiredToken(ctx context.Context, username string, now time.Time) {
	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		i := indexOf(users, username)
		if i < 0 || users[i].ResetToken == nil || !now.After(users[i].ResetToken.ExpiresAt) {
			return nil, errSkipWrite
		}
		users[i].ResetToken = nil
		return users, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("failed to clear expired reset token")
	}
}

// newPasswordHash validates a replacement password for u and hashes it.
func (s *AccessService) newPasswordHash(u domain.User, newPassword string) (string, error) {
	if err := policy.ValidateFor(newPassword, u.Username, u.Email); err != nil {
		return "", err
	}
	if policy.Verify(newPassword, u.PasswordHash) {
		return "", &domain.PolicyViolation{Reasons: []string{"new password must differ from the current one"}}
	}
	return s.policy.Hash(newPassword)
}

// AcceptTerms records the first terms acceptance and returns the next state.
func (s *AccessService) AcceptTerms(ctx context.Context, username string, now time.Time) (domain.LoginState, error) {
	var updated domain.User
	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		if err := activeOnly(users[i]); err != nil {
			return nil, err
		}
		if users[i].TermsAcceptedAt != nil {
			updated = users[i]
			return nil, errSkipWrite
		}
		ts := now.UTC()
		users[i].TermsAcceptedAt = &ts
		updated = users[i]
		return users, nil
	})
	if err != nil {
		return "", err
	}
	return s.stateFor(updated, now), nil
}

// ChangePassword rotates the password of a user who knows the current one.
// It completes the PasswordExpired step.
func (s *AccessService) ChangePassword(ctx context.Context, username, current, newPassword string, now time.Time) (domain.LoginState, error) {
	users, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	i := indexOf(users, username)
	if i < 0 {
		policy.Verify(current, s.dummyHash)
		return "", domain.ErrNotFound
	}
	if !policy.Verify(current, users[i].PasswordHash) {
		return "", domain.ErrBadCredential
	}
	if err := activeOnly(users[i]); err != nil {
		return "", err
	}

	hash, err := s.newPasswordHash(users[i], newPassword)
	if err != nil {
		return "", err
	}

	var updated domain.User
	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		users[i].PasswordHash = hash
		users[i].PasswordSetAt = now.UTC()
		users[i].MustRotate = false
		users[i].ResetToken = nil
		updated = users[i]
		return users, nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info().Str("username", username).Msg("password rotated")
	return s.stateFor(updated, now), nil
}

func activeOnly(u domain.User) error {
	switch u.Status {
	case domain.StatusPending:
		return domain.ErrPending
	case domain.StatusDisabled:
		return domain.ErrDisabled
	}
	return nil
}
