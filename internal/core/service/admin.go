package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/policy"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
	"github.com/vamosfrotas/fleet-access/internal/core/token"
)

// Approve moves a Pending account to Active and mails the account holder.
// An account that has no password yet stays Pending: it is marked to activate
// once the password is set, and an invite link is mailed instead.
func (s *AccessService) Approve(ctx context.Context, actor, username string, now time.Time) error {
	issued, err := s.issuer.Issue(now)
	if err != nil {
		return err
	}

	var approved domain.User
	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNoSuchUser
		}
		if users[i].Status != domain.StatusPending || users[i].ActivateOnSet {
			return nil, domain.ErrInvalidState
		}
		if users[i].PasswordHash == "" {
			if users[i].Email == "" {
				return nil, fmt.Errorf("%w: no password and no email address to invite", domain.ErrInvalidState)
			}
			users[i].ActivateOnSet = true
			attachToken(&users[i], issued)
		} else {
			users[i].Status = domain.StatusActive
		}
		approved = users[i]
		return users, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", username).Msg("approval rejected")
		return err
	}

	s.log.Info().Str("actor", actor).Str("username", username).Bool("invited", approved.ActivateOnSet).Msg("account approved")

	if approved.Email == "" {
		return nil
	}
	subject, body := approvedMessage(s.settings.BaseURL, approved)
	if approved.ActivateOnSet {
		subject, body = inviteMessage(s.settings.BaseURL, approved.Username, issued)
	}
	if err := s.notifier.Send(ctx, approved.Email, subject, body); err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("failed to send approval notice")
	}
	return nil
}

// SendResetLink lets an admin force a password reset for any non-disabled
// account. Unlike RequestReset it reports every failure to the caller and is
// not throttled.
func (s *AccessService) SendResetLink(ctx context.Context, actor, username string, now time.Time) error {
	issued, err := s.issuer.Issue(now)
	if err != nil {
		return err
	}

	var target domain.User
	err = s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNoSuchUser
		}
		if users[i].Status == domain.StatusDisabled {
			return nil, fmt.Errorf("%w: account disabled", domain.ErrInvalidState)
		}
		if users[i].Email == "" {
			return nil, fmt.Errorf("%w: no email address on file", domain.ErrInvalidState)
		}
		attachToken(&users[i], issued)
		target = users[i]
		return users, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", username).Msg("reset link rejected")
		return err
	}

	subject, body := s.tokenMessage(target, issued)
	if err := s.notifier.Send(ctx, target.Email, subject, body); err != nil {
		s.log.Error().Err(err).Str("actor", actor).Str("username", username).Msg("failed to send admin reset link")
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	s.log.Info().Str("actor", actor).Str("username", username).Msg("reset link sent")
	return nil
}

// SetAdmin grants or revokes admin rights. The superadmin cannot be demoted.
func (s *AccessService) SetAdmin(ctx context.Context, actor, username string, isAdmin bool) error {
	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNoSuchUser
		}
		if !isAdmin && username == s.settings.SuperadminUsername {
			return nil, domain.ErrForbidden
		}
		if users[i].IsAdmin == isAdmin {
			return nil, errSkipWrite
		}
		users[i].IsAdmin = isAdmin
		return users, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", username).Bool("is_admin", isAdmin).Msg("admin grant rejected")
		return err
	}
	s.log.Info().Str("actor", actor).Str("username", username).Bool("is_admin", isAdmin).Msg("admin flag updated")
	return nil
}

// SetStatus changes the account status. Disabling keeps the password hash so
// the account can be re-enabled; any outstanding reset token is dropped.
func (s *AccessService) SetStatus(ctx context.Context, actor, username string, status domain.Status) error {
	if !status.Valid() {
		return domain.ErrInvalidState
	}
	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNoSuchUser
		}
		if username == s.settings.SuperadminUsername && status != domain.StatusActive {
			return nil, domain.ErrForbidden
		}
		if status != domain.StatusPending && users[i].PasswordHash == "" {
			return nil, domain.ErrInvalidState
		}
		if users[i].Status == status {
			return nil, errSkipWrite
		}
		users[i].Status = status
		if status != domain.StatusActive {
			users[i].ResetToken = nil
		}
		return users, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", username).Str("status", string(status)).Msg("status change rejected")
		return err
	}
	s.log.Info().Str("actor", actor).Str("username", username).Str("status", string(status)).Msg("status updated")
	return nil
}

// CreateUser lets an admin provision an account directly. A given password
// is temporary and must be rotated at first login. Without one the account is
// created Pending with an empty hash and an invite link is mailed; Activate
// then takes effect when the invitee sets a password.
func (s *AccessService) CreateUser(ctx context.Context, actor string, in ports.CreateUserInput, now time.Time) (*domain.User, error) {
	if err := validUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validEmail(in.Email); err != nil {
		return nil, err
	}

	created := domain.User{
		Username:   in.Username,
		Email:      in.Email,
		Status:     domain.StatusPending,
		IsAdmin:    in.IsAdmin,
		MustRotate: true,
	}

	var invite token.Issued
	if in.Password == "" {
		if in.Email == "" {
			return nil, fmt.Errorf("%w: required when no password is given", domain.ErrInvalidEmail)
		}
		issued, err := s.issuer.Issue(now)
		if err != nil {
			return nil, err
		}
		invite = issued
		attachToken(&created, issued)
		created.ActivateOnSet = in.Activate
	} else {
		if err := policy.ValidateFor(in.Password, in.Username, in.Email); err != nil {
			return nil, err
		}
		hash, err := s.policy.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		created.PasswordHash = hash
		created.PasswordSetAt = now.UTC()
		if in.Activate {
			created.Status = domain.StatusActive
		}
	}

	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		if indexOf(users, in.Username) >= 0 {
			return nil, domain.ErrAlreadyExists
		}
		return append(users, created), nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", in.Username).Msg("user creation rejected")
		return nil, err
	}

	s.log.Info().Str("actor", actor).Str("username", in.Username).Str("status", string(created.Status)).
		Bool("invited", created.PasswordHash == "").Msg("user created")

	if created.PasswordHash == "" {
		subject, body := inviteMessage(s.settings.BaseURL, created.Username, invite)
		if err := s.notifier.Send(ctx, created.Email, subject, body); err != nil {
			s.log.Error().Err(err).Str("username", in.Username).Msg("failed to send invite")
		}
	}
	return &created, nil
}

// DeleteUser removes the record entirely. The superadmin cannot be deleted.
func (s *AccessService) DeleteUser(ctx context.Context, actor, username string) error {
	err := s.update(ctx, func(users []domain.User) ([]domain.User, error) {
		if err := requireAdmin(users, actor); err != nil {
			return nil, err
		}
		if username == s.settings.SuperadminUsername {
			return nil, domain.ErrForbidden
		}
		i := indexOf(users, username)
		if i < 0 {
			return nil, domain.ErrNoSuchUser
		}
		return append(users[:i], users[i+1:]...), nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("username", username).Msg("delete rejected")
		return err
	}
	s.log.Info().Str("actor", actor).Str("username", username).Msg("user deleted")
	return nil
}

// ListUsers returns every record, optionally filtered by status. An empty
// status means no filter.
func (s *AccessService) ListUsers(ctx context.Context, actor string, status domain.Status) ([]domain.User, error) {
	users, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(users, actor); err != nil {
		return nil, err
	}
	if status == "" {
		return users, nil
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidState
	}

	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		if u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}
