package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

const (
	recordCollection = "user_records"
	recordSetID      = "users"
)

// RecordStore keeps the whole record set in one document so that ReplaceAll
// is a single-document write, which MongoDB applies atomically.
type RecordStore struct {
	coll *mongo.Collection
}

var _ ports.RecordStore = (*RecordStore)(nil)

func NewRecordStore(db *mongo.Database) *RecordStore {
	return &RecordStore{coll: db.Collection(recordCollection)}
}

type recordSet struct {
	ID        string      `bson:"_id"`
	Users     []mongoUser `bson:"users"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

// Record timestamps are kept as RFC 3339 strings: BSON datetimes hold
// milliseconds only, and token expiry and password age compare at full
// precision.
type mongoResetToken struct {
	Digest    string `bson:"digest"`
	ExpiresAt string `bson:"expires_at"`
}

type mongoUser struct {
	Username        string           `bson:"username"`
	Email           string           `bson:"email,omitempty"`
	PasswordHash    string           `bson:"password_hash"`
	PasswordSetAt   string           `bson:"password_set_at,omitempty"`
	Status          string           `bson:"status"`
	IsAdmin         bool             `bson:"is_admin"`
	MustRotate      bool             `bson:"must_rotate"`
	ActivateOnSet   bool             `bson:"activate_on_set,omitempty"`
	TermsAcceptedAt string           `bson:"terms_accepted_at,omitempty"`
	ResetToken      *mongoResetToken `bson:"reset_token,omitempty"`
}

func (s *RecordStore) Load(ctx context.Context) ([]domain.User, error) {
	var doc recordSet
	err := s.coll.FindOne(ctx, bson.M{"_id": recordSetID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find record set: %v", domain.ErrStoreUnavailable, err)
	}

	users := make([]domain.User, 0, len(doc.Users))
	seen := make(map[string]struct{}, len(doc.Users))
	for i, mu := range doc.Users {
		u, err := toDomain(mu)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", domain.ErrStoreCorrupt, i, err)
		}
		if _, dup := seen[u.Username]; dup {
			return nil, fmt.Errorf("%w: record %d: duplicate username %q", domain.ErrStoreCorrupt, i, u.Username)
		}
		seen[u.Username] = struct{}{}
		users = append(users, u)
	}
	return users, nil
}

func (s *RecordStore) ReplaceAll(ctx context.Context, users []domain.User) error {
	doc := recordSet{
		ID:        recordSetID,
		Users:     make([]mongoUser, 0, len(users)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, u := range users {
		doc.Users = append(doc.Users, fromDomain(u))
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": recordSetID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: replace record set: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func fromDomain(u domain.User) mongoUser {
	mu := mongoUser{
		Username:      u.Username,
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		Status:        string(u.Status),
		IsAdmin:       u.IsAdmin,
		MustRotate:    u.MustRotate,
		ActivateOnSet: u.ActivateOnSet,
	}
	if !u.PasswordSetAt.IsZero() {
		mu.PasswordSetAt = formatTime(u.PasswordSetAt)
	}
	if u.TermsAcceptedAt != nil {
		mu.TermsAcceptedAt = formatTime(*u.TermsAcceptedAt)
	}
	if u.ResetToken != nil {
		mu.ResetToken = &mongoResetToken{Digest: u.ResetToken.Digest, ExpiresAt: formatTime(u.ResetToken.ExpiresAt)}
	}
	return mu
}

func toDomain(mu mongoUser) (domain.User, error) {
	u := domain.User{
		Username:      mu.Username,
		Email:         mu.Email,
		PasswordHash:  mu.PasswordHash,
		Status:        domain.Status(mu.Status),
		IsAdmin:       mu.IsAdmin,
		MustRotate:    mu.MustRotate,
		ActivateOnSet: mu.ActivateOnSet,
	}
	if u.Username == "" {
		return u, errors.New("empty username")
	}
	if !u.Status.Valid() {
		return u, fmt.Errorf("unknown status %q", mu.Status)
	}

	var err error
	if mu.PasswordSetAt != "" {
		if u.PasswordSetAt, err = parseTime(mu.PasswordSetAt); err != nil {
			return u, fmt.Errorf("password_set_at: %w", err)
		}
	}
	if mu.TermsAcceptedAt != "" {
		ts, err := parseTime(mu.TermsAcceptedAt)
		if err != nil {
			return u, fmt.Errorf("terms_accepted_at: %w", err)
		}
		u.TermsAcceptedAt = &ts
	}
	if mu.ResetToken != nil {
		if mu.ResetToken.Digest == "" {
			return u, errors.New("reset token without digest")
		}
		exp, err := parseTime(mu.ResetToken.ExpiresAt)
		if err != nil {
			return u, fmt.Errorf("reset_token.expires_at: %w", err)
		}
		u.ResetToken = &domain.ResetToken{Digest: mu.ResetToken.Digest, ExpiresAt: exp}
	}
	return u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
