// Package session maps an HTTP request to the storage slot of its cart.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/storage/cookie"
)

// DefaultIDCookie names the cookie carrying the session id for server-side
// storage backends.
const DefaultIDCookie = "citricloud-cart-sid"

// Resolver returns the storage and key holding the cart of a request.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (cart.Storage, string)
}

// CookieResolver keeps the whole cart in a browser cookie.
type CookieResolver struct {
	key  string
	opts cookie.Options
}

// NewCookieResolver returns a CookieResolver storing the cart under key.
func NewCookieResolver(key string, opts cookie.Options) *CookieResolver {
	return &CookieResolver{key: key, opts: opts}
}

// Resolve binds a cookie storage to the exchange.
func (c *CookieResolver) Resolve(w http.ResponseWriter, r *http.Request) (cart.Storage, string) {
	return cookie.New(w, r, c.opts), c.key
}

// SharedResolver keeps carts in a server-side storage, keyed by a session id
// cookie that is scoped like the cart cookie would be.
type SharedResolver struct {
	storage    cart.Storage
	key        string
	cookieName string
	opts       cookie.Options
	newID      func() string
	now        func() time.Time
}

// NewSharedResolver returns a SharedResolver on storage. Cart keys have the
// form key:<session id>.
func NewSharedResolver(storage cart.Storage, key, cookieName string, opts cookie.Options) *SharedResolver {
	if cookieName == "" {
		cookieName = DefaultIDCookie
	}
	if opts.TTL <= 0 {
		opts.TTL = cart.DefaultTTL
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &SharedResolver{
		storage:    storage,
		key:        key,
		cookieName: cookieName,
		opts:       opts,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Resolve reads or mints the session id and refreshes its cookie.
func (s *SharedResolver) Resolve(w http.ResponseWriter, r *http.Request) (cart.Storage, string) {
	sid := ""
	if c, err := r.Cookie(s.cookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			sid = id.String()
		}
	}
	if sid == "" {
		sid = s.newID()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sid,
		Path:     s.opts.Path,
		Domain:   cookie.Domain(r.Host, s.opts),
		Expires:  s.now().Add(s.opts.TTL).UTC(),
		MaxAge:   int(s.opts.TTL / time.Second),
		Secure:   s.opts.Secure,
		HttpOnly: true,
		SameSite: s.opts.SameSite,
	})
	return s.storage, s.key + ":" + sid
}
