package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
	"github.com/vamosfrotas/fleet-access/internal/infrastructure/db/codec"
)

const defaultRecordKey = "fleet-access:users"

// RecordStore keeps the encoded record set under a single key. SET replaces
// the value atomically, so readers never observe a partial set.
type RecordStore struct {
	client *redis.Client
	key    string
}

var _ ports.RecordStore = (*RecordStore)(nil)

// NewRecordStore wraps client. An empty key selects the default.
func NewRecordStore(client *redis.Client, key string) *RecordStore {
	if key == "" {
		key = defaultRecordKey
	}
	return &RecordStore{client: client, key: key}
}

func (s *RecordStore) Load(ctx context.Context) ([]domain.User, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, s.key, err)
	}
	return codec.Decode(data)
}

func (s *RecordStore) ReplaceAll(ctx context.Context, users []domain.User) error {
	data, err := codec.Encode(users)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, s.key, err)
	}
	return nil
}
