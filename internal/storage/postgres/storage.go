package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

const (
	getItemSQL = `SELECT value FROM cart_storage WHERE key = $1 AND expires_at > $2`

	setItemSQL = `INSERT INTO cart_storage (key, value, expires_at, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE
	SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	removeItemSQL = `DELETE FROM cart_storage WHERE key = $1`

	purgeExpiredSQL = `DELETE FROM cart_storage WHERE expires_at <= $1`
)

var _ cart.Storage = (*Storage)(nil)

// Storage implements cart.Storage on the cart_storage table.
type Storage struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewStorage returns a Storage that uses the given pool.
func NewStorage(pool *pgxpool.Pool, ttl time.Duration) *Storage {
	if ttl <= 0 {
		ttl = cart.DefaultTTL
	}
	return &Storage{pool: pool, ttl: ttl, now: time.Now}
}

// GetItem returns the unexpired value for key.
func (s *Storage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, getItemSQL, key, s.now()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get cart storage %q", key)
	}
	return value, true, nil
}

// SetItem upserts value and moves its expiry ttl into the future.
func (s *Storage) SetItem(ctx context.Context, key, value string) error {
	now := s.now()
	if _, err := s.pool.Exec(ctx, setItemSQL, key, value, now.Add(s.ttl), now); err != nil {
		return errors.Wrapf(err, "set cart storage %q", key)
	}
	return nil
}

// RemoveItem deletes key.
func (s *Storage) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, removeItemSQL, key); err != nil {
		return errors.Wrapf(err, "remove cart storage %q", key)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *Storage) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeExpiredSQL, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "purge expired cart storage")
	}
	return tag.RowsAffected(), nil
}
