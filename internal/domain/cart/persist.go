package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// DefaultStorageKey is the slot the whole cart state is stored under.
const DefaultStorageKey = "citricloud-cart-storage"

// DefaultTTL is how long a stored cart lives after its last write.
const DefaultTTL = 30 * 24 * time.Hour

// Storage is a string key/value medium the cart is persisted to.
//
// GetItem reports ok=false for absent or expired keys. Implementations that
// cannot reach their medium return an error; callers treat that the same as
// an absent key.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Persister writes the whole cart state to Storage after every mutation.
type Persister struct {
	storage Storage
	key     string
	timeout time.Duration
}

// NewPersister returns a Persister writing to key in storage. A positive
// timeout bounds each write.
func NewPersister(storage Storage, key string, timeout time.Duration) *Persister {
	return &Persister{storage: storage, key: key, timeout: timeout}
}

// Subscriber returns the Persister as a store Subscriber.
func (p *Persister) Subscriber() Subscriber {
	return p.Persist
}

// Persist stores ev.State. The write outlives cancellation of ctx, so a
// client disconnecting mid-request does not lose the mutation. Write failures
// are logged and dropped: the in-memory state stays authoritative.
func (p *Persister) Persist(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := safeSet(ctx, p.storage, p.key, string(Marshal(ev.State))); err != nil {
		zctx.From(ctx).Warn("Persist cart",
			zap.String("key", p.key),
			zap.String("op", string(ev.Op)),
			zap.Error(err),
		)
	}
}

// Load reads the state stored under key. Missing, unreadable or malformed
// payloads yield the empty state; the cause is logged, never returned.
func Load(ctx context.Context, storage Storage, key string) State {
	lg := zctx.From(ctx).With(zap.String("key", key))

	raw, ok, err := safeGet(ctx, storage, key)
	if err != nil {
		lg.Warn("Load cart: storage unavailable", zap.Error(err))
		return Empty()
	}
	if !ok || raw == "" {
		return Empty()
	}

	st, err := Unmarshal([]byte(raw))
	if err != nil {
		lg.Warn("Load cart: discarding stored payload", zap.Error(err))
		return Empty()
	}
	return st
}

// safeGet converts a storage panic into an error.
func safeGet(ctx context.Context, storage Storage, key string) (value string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("storage panic: %v", r)
		}
	}()
	return storage.GetItem(ctx, key)
}

func safeSet(ctx context.Context, storage Storage, key, value string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("storage panic: %v", r)
		}
	}()
	return storage.SetItem(ctx, key, value)
}

// Open loads the state under key from storage and returns a Store that
// writes every mutation back to it.
func Open(ctx context.Context, storage Storage, key string, opts ...Option) *Store {
	p := NewPersister(storage, key, 0)
	opts = append(opts, WithState(Load(ctx, storage, key)), WithSubscriber(p.Subscriber()))
	return New(opts...)
}
