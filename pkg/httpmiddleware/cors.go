package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. An entry may use a leading
	// wildcard label, "https://*.citricloud.com", to allow every subdomain.
	// An empty list or "*" allows any origin.
	AllowOrigins []string

	// AllowMethods defaults to "GET, POST, PUT, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders lists allowed request headers. When empty, preflight
	// responses echo Access-Control-Request-Headers.
	AllowHeaders []string

	// ExposeHeaders lists response headers readable by the browser.
	ExposeHeaders []string

	// AllowCredentials lets the browser send cookies. Wildcard origins are
	// then answered with the request origin instead of "*".
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0".
	MaxAge int
}

// subdomainPattern matches scheme://<any label>.suffix.
type subdomainPattern struct {
	scheme string // "https://"
	suffix string // ".citricloud.com"
}

// originMatcher decides whether an origin is allowed.
type originMatcher struct {
	any        bool
	exact      map[string]string // lowercase -> configured spelling
	subdomains []subdomainPattern
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{any: len(origins) == 0, exact: make(map[string]string, len(origins))}
	for _, o := range origins {
		if o == "*" {
			m.any = true
			continue
		}
		lower := strings.ToLower(o)
		if scheme, rest, ok := strings.Cut(lower, "://*."); ok {
			m.subdomains = append(m.subdomains, subdomainPattern{scheme: scheme + "://", suffix: "." + rest})
			continue
		}
		m.exact[lower] = o
	}
	return m
}

// match returns the configured spelling of origin, or "" when the origin is
// not allowed. Wildcard matches return origin itself.
func (m originMatcher) match(origin string) string {
	lower := strings.ToLower(origin)
	if orig, ok := m.exact[lower]; ok {
		return orig
	}
	for _, p := range m.subdomains {
		if strings.HasPrefix(lower, p.scheme) && strings.HasSuffix(lower, p.suffix) &&
			len(lower) > len(p.scheme)+len(p.suffix) {
			return origin
		}
	}
	if m.any {
		return origin
	}
	return ""
}

// CORS handles Cross-Origin Resource Sharing. Preflights are detected by
// the Access-Control-Request-Method header and answered with 204; Vary is
// set so caches keep per-origin responses apart.
func CORS(cfg CORSConfig) Middleware {
	origins := newOriginMatcher(cfg.AllowOrigins)
	// Without credentials a plain "*" is enough and cache friendly.
	wildcard := origins.any && !cfg.AllowCredentials

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	if allowMethods == "" {
		allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	maxAge := ""
	switch {
	case cfg.MaxAge > 0:
		maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !wildcard {
					h.Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := origins.match(origin)
			if wildcard {
				allowOrigin = "*"
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Origin")
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin == "" {
					w.WriteHeader(http.StatusNoContent)
					return
				}

				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Allow-Methods", allowMethods)
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
					h.Set("Access-Control-Allow-Headers", rh)
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !wildcard {
				h.Add("Vary", "Origin")
			}
			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
