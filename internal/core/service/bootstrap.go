package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/policy"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// Seeder reconciles the designated superadmin account at startup.
type Seeder struct {
	store    ports.RecordStore
	settings *Settings
	policy   policy.Policy
	log      zerolog.Logger
}

func NewSeeder(store ports.RecordStore, settings *Settings, log zerolog.Logger) *Seeder {
	return &Seeder{
		store:    store,
		settings: settings,
		policy:   policy.New(settings.BcryptCost, settings.PasswordMaxAge),
		log:      log,
	}
}

// Run ensures the superadmin exists, is Active and is an admin. It writes only
// when something changed, so repeated runs leave the store untouched.
//
// A default password that fails policy is fatal: the returned error wraps
// domain.ErrWeakDefaultPassword whenever the password would have been used.
func (sd *Seeder) Run(ctx context.Context, now time.Time) error {
	name := sd.settings.SuperadminUsername
	if err := validUsername(name); err != nil {
		return fmt.Errorf("superadmin username %q: %w", name, err)
	}

	users, err := sd.store.Load(ctx)
	if err != nil {
		return err
	}

	i := indexOf(users, name)
	if i < 0 {
		hash, err := sd.defaultHash()
		if err != nil {
			return err
		}
		users = append(users, domain.User{
			Username:      name,
			Email:         sd.settings.SuperadminEmail,
			PasswordHash:  hash,
			PasswordSetAt: now.UTC(),
			Status:        domain.StatusActive,
			IsAdmin:       true,
		})
		if err := sd.store.ReplaceAll(ctx, users); err != nil {
			return err
		}
		sd.log.Info().Str("username", name).Msg("superadmin seeded")
		return nil
	}

	u := &users[i]
	changed := false
	if !u.IsAdmin {
		u.IsAdmin = true
		changed = true
	}
	if u.Status != domain.StatusActive {
		u.Status = domain.StatusActive
		changed = true
	}
	if u.PasswordHash == "" {
		hash, err := sd.defaultHash()
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.PasswordSetAt = now.UTC()
		changed = true
	}
	if u.Email == "" && sd.settings.SuperadminEmail != "" {
		u.Email = sd.settings.SuperadminEmail
		changed = true
	}

	if !changed {
		sd.log.Debug().Str("username", name).Msg("superadmin already reconciled")
		return nil
	}
	if err := sd.store.ReplaceAll(ctx, users); err != nil {
		return err
	}
	sd.log.Warn().Str("username", name).Msg("superadmin record repaired")
	return nil
}

func (sd *Seeder) defaultHash() (string, error) {
	if err := policy.Validate(sd.settings.DefaultPassword); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrWeakDefaultPassword, err)
	}
	hash, err := sd.policy.Hash(sd.settings.DefaultPassword)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrWeakDefaultPassword, err)
	}
	return hash, nil
}
