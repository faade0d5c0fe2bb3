// Package cookie implements cart.Storage on HTTP cookies.
//
// A Storage is bound to one request/response pair: reads come from the
// request's Cookie header, writes go out as Set-Cookie on the response. With
// ScopeParentDomain the cookie is issued for the registrable domain of the
// request host, so every subdomain of the site (shop, dashboard, ...) sees
// the same cart.
package cookie

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

var _ cart.Storage = (*Storage)(nil)

// Scope selects which hosts a cookie is visible to.
type Scope string

const (
	// ScopeOrigin issues host-only cookies.
	ScopeOrigin Scope = "origin"
	// ScopeParentDomain issues cookies for the registrable parent domain.
	ScopeParentDomain Scope = "parent-domain"
)

// MaxSize is the largest name=value pair browsers are required to keep.
const MaxSize = 4096

var (
	// ErrValueTooLarge is returned by SetItem when the escaped value does not
	// fit into a single cookie.
	ErrValueTooLarge = errors.New("cookie value too large")
	// ErrUnavailable is returned when the Storage has no response to write to.
	ErrUnavailable = errors.New("cookie storage unavailable")
)

// Options configures cookie attributes.
type Options struct {
	Scope Scope
	// Domain pins the parent domain instead of deriving it from the request
	// host. Ignored for hosts outside of it.
	Domain   string
	Path     string
	TTL      time.Duration
	Secure   bool
	SameSite http.SameSite
}

func (o Options) withDefaults() Options {
	if o.Scope == "" {
		o.Scope = ScopeParentDomain
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.TTL <= 0 {
		o.TTL = cart.DefaultTTL
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Storage reads and writes cart payloads as cookies of one request.
type Storage struct {
	w      http.ResponseWriter
	r      *http.Request
	opts   Options
	domain string
	now    func() time.Time

	// pending holds values written during this request; nil marks removal.
	pending map[string]*string
}

// New returns a Storage for the given exchange. Either side may be nil:
// without a request every key reads as absent, without a response writes
// fail with ErrUnavailable.
func New(w http.ResponseWriter, r *http.Request, opts Options) *Storage {
	opts = opts.withDefaults()
	s := &Storage{
		w:       w,
		r:       r,
		opts:    opts,
		now:     time.Now,
		pending: make(map[string]*string),
	}
	if r != nil {
		s.domain = Domain(r.Host, opts)
	}
	return s
}

// Domain returns the Domain attribute for cookies issued to host, or "" for
// a host-only cookie.
func Domain(host string, opts Options) string {
	if opts.Scope == ScopeOrigin {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	if d := strings.ToLower(strings.TrimPrefix(opts.Domain, ".")); d != "" {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
		return ""
	}

	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, bare public suffixes and the like.
		return ""
	}
	return d
}

// GetItem returns the decoded cookie value for key.
func (s *Storage) GetItem(_ context.Context, key string) (string, bool, error) {
	if v, ok := s.pending[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	if s.r == nil {
		return "", false, nil
	}

	c, err := s.r.Cookie(key)
	if err != nil {
		return "", false, nil
	}
	v, err := url.PathUnescape(c.Value)
	if err != nil {
		return "", false, errors.Wrapf(err, "decode cookie %q", key)
	}
	return v, true, nil
}

// SetItem writes value under key with the configured TTL.
func (s *Storage) SetItem(_ context.Context, key, value string) error {
	if s.w == nil {
		return ErrUnavailable
	}
	escaped := url.PathEscape(value)
	if size := len(key) + 1 + len(escaped); size > MaxSize {
		return errors.Wrapf(ErrValueTooLarge, "%d bytes", size)
	}

	s.write(&http.Cookie{
		Name:     key,
		Value:    escaped,
		Path:     s.opts.Path,
		Domain:   s.domain,
		Expires:  s.now().Add(s.opts.TTL).UTC(),
		MaxAge:   int(s.opts.TTL / time.Second),
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})
	s.pending[key] = &value
	return nil
}

// RemoveItem expires the cookie for key.
func (s *Storage) RemoveItem(_ context.Context, key string) error {
	if s.w == nil {
		return ErrUnavailable
	}
	s.write(&http.Cookie{
		Name:     key,
		Value:    "",
		Path:     s.opts.Path,
		Domain:   s.domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})
	s.pending[key] = nil
	return nil
}

// write replaces any Set-Cookie for the same name issued earlier in this
// response, so only the last write reaches the browser.
func (s *Storage) write(c *http.Cookie) {
	h := s.w.Header()
	prefix := c.Name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(s.w, c)
}
