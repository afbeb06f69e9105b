package ports

import (
	"context"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
)

// RecordStore persists the full user record set as a unit. Implementations
// do not interpret field semantics.
//
// Load fails with domain.ErrStoreCorrupt when the persisted form cannot be
// parsed into well-formed records. ReplaceAll fails with
// domain.ErrStoreUnavailable on I/O failure and must never expose a partially
// written set to a concurrent Load.
type RecordStore interface {
	Load(ctx context.Context) ([]domain.User, error)
	ReplaceAll(ctx context.Context, users []domain.User) error
}
