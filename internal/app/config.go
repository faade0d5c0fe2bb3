package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/citricloud-cart/internal/storage/cookie"
)

const defaultAddr = "0.0.0.0:8080"

// Storage backends.
const (
	BackendCookie   = "cookie"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

var backends = []string{BackendCookie, BackendMemory, BackendRedis, BackendPostgres, BackendMongo}

// Config holds the complete application configuration, loadable from
// environment variables (CART_ prefix), flags, or YAML config files.
type Config struct {
	Addr             string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL      string `usage:"PostgreSQL URL; enables the order archive (CART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL         string `usage:"Redis URL for the redis backend (CART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	MongoURI         string `usage:"MongoDB URI for the mongo backend (CART_MONGO_URI or MONGO_URI)" flag:"mongo-uri"`
	MongoDatabase    string `default:"citricloud" usage:"MongoDB database name" flag:"mongo-database"`
	TaxRate          string `default:"0.21" usage:"Tax rate applied in cart summaries" flag:"tax-rate"`
	InvoiceURLPrefix string `default:"/api/invoices/" usage:"Prefix of invoice download URLs" flag:"invoice-url-prefix"`
	Storage          StorageConfig
	RateLimit        RateLimitConfig
	CORS             CORSConfig
	Graceful         GracefulConfig
}

// StorageConfig selects where carts are persisted and how they are scoped.
type StorageConfig struct {
	Backend       string        `default:"cookie" usage:"Cart storage: cookie, memory, redis, postgres or mongo"`
	Key           string        `default:"citricloud-cart-storage" usage:"Storage key (cookie name or key prefix)"`
	TTL           time.Duration `default:"720h" usage:"Lifetime of a stored cart after its last write"`
	Scope         string        `default:"parent-domain" usage:"Cookie scope: origin or parent-domain"`
	Domain        string        `usage:"Parent domain for cookies; derived from the request host when empty"`
	Secure        bool          `default:"true" usage:"Set the Secure cookie attribute"`
	SessionCookie string        `default:"citricloud-cart-sid" usage:"Session cookie for server-side backends"`
	WriteTimeout  time.Duration `default:"2s" usage:"Timeout of a single storage write"`
	PurgeInterval time.Duration `default:"1h" usage:"Expired cart cleanup interval for the postgres backend"`
}

// RateLimitConfig controls the per-session sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers. Credentials are
// on by default because the cart travels in cookies, so origins must be
// listed explicitly.
type CORSConfig struct {
	Origins          []string `default:"https://citricloud.com,https://*.citricloud.com" usage:"Allowed CORS origins, https://*.example.com matches subdomains"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (cookies)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults and validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CART",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/cart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) with standard names to the CART_-prefixed fields.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.RedisURL, "REDIS_URL")
	fallback(&c.MongoURI, "MONGO_URI")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if !slices.Contains(backends, c.Storage.Backend) {
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch cookie.Scope(c.Storage.Scope) {
	case cookie.ScopeOrigin, cookie.ScopeParentDomain:
	default:
		return errors.Errorf("unknown cookie scope %q", c.Storage.Scope)
	}
	if c.Storage.Key == "" {
		return errors.New("storage key is required")
	}

	switch {
	case c.Storage.Backend == BackendPostgres && c.DatabaseURL == "":
		return errors.New("postgres backend requires CART_DATABASE_URL or DATABASE_URL")
	case c.Storage.Backend == BackendRedis && c.RedisURL == "":
		return errors.New("redis backend requires CART_REDIS_URL or REDIS_URL")
	case c.Storage.Backend == BackendMongo && c.MongoURI == "":
		return errors.New("mongo backend requires CART_MONGO_URI or MONGO_URI")
	}

	if c.CORS.AllowCredentials && (len(c.CORS.Origins) == 0 || slices.Contains(c.CORS.Origins, "*")) {
		return errors.New("cors origins must be listed explicitly when credentials are allowed")
	}

	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() {
		return errors.Errorf("tax rate %s is negative", c.TaxRate)
	}
	return nil
}

// Tax returns the parsed tax rate. Call after validation.
func (c *Config) Tax() decimal.Decimal {
	return decimal.RequireFromString(c.TaxRate)
}

// CookieOptions returns the cookie attributes shared by the cart cookie and
// the session cookie.
func (c *Config) CookieOptions() cookie.Options {
	return cookie.Options{
		Scope:  cookie.Scope(c.Storage.Scope),
		Domain: c.Storage.Domain,
		TTL:    c.Storage.TTL,
		Secure: c.Storage.Secure,
	}
}
