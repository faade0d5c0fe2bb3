package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/domain/order"
	"github.com/xenking/citricloud-cart/internal/handler"
	"github.com/xenking/citricloud-cart/internal/session"
	"github.com/xenking/citricloud-cart/internal/storage/memory"
	mongostore "github.com/xenking/citricloud-cart/internal/storage/mongo"
	"github.com/xenking/citricloud-cart/internal/storage/postgres"
	redisstore "github.com/xenking/citricloud-cart/internal/storage/redis"
	"github.com/xenking/citricloud-cart/pkg/health"
	"github.com/xenking/citricloud-cart/pkg/httpmiddleware"
)

const serviceName = "citricloud-cart"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("scope", cfg.Storage.Scope),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	ops, err := handler.OperationCounter(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return err
	}
	subscribers := []cart.Subscriber{ops}

	// PostgreSQL backs the order archive and, optionally, cart storage.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

		archiver := order.NewArchiver(postgres.NewOrderRepository(pool), cfg.Storage.WriteTimeout)
		subscribers = append(subscribers, archiver.Subscriber())
		lg.Info("Order archive enabled")
	}

	backend, err := openBackend(ctx, cfg, pool, healthSvc)
	if err != nil {
		return errors.Wrapf(err, "open %s storage", cfg.Storage.Backend)
	}
	defer backend.close()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(handler.Config{
		TaxRate:          cfg.Tax(),
		InvoiceURLPrefix: cfg.InvoiceURLPrefix,
		WriteTimeout:     cfg.Storage.WriteTimeout,
	}, backend.resolver, subscribers...)

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())

	rateLimit := httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
		Skip:   httpmiddleware.SkipPaths("/livez", "/readyz"),
	}
	if cfg.Storage.Backend != BackendCookie {
		rateLimit.KeyFunc = httpmiddleware.CookieKeyFunc(cfg.Storage.SessionCookie)
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, rateLimit),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: fail readiness, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	if backend.purger != nil {
		g.Go(func() error {
			purgeExpired(gctx, backend.purger, cfg.Storage.PurgeInterval)
			return nil
		})
	}
	return g.Wait()
}

// storageBackend is the cart storage selected by configuration.
type storageBackend struct {
	resolver session.Resolver
	close    func()
	// purger is set when expired carts need explicit cleanup.
	purger *postgres.Storage
}

func openBackend(ctx context.Context, cfg *Config, pool *pgxpool.Pool, hs *health.Health) (*storageBackend, error) {
	opts := cfg.CookieOptions()
	shared := func(s cart.Storage) session.Resolver {
		return session.NewSharedResolver(s, cfg.Storage.Key, cfg.Storage.SessionCookie, opts)
	}
	noop := func() {}

	switch cfg.Storage.Backend {
	case BackendCookie:
		return &storageBackend{resolver: session.NewCookieResolver(cfg.Storage.Key, opts), close: noop}, nil
	case BackendMemory:
		return &storageBackend{resolver: shared(memory.New(cfg.Storage.TTL)), close: noop}, nil
	case BackendRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return &storageBackend{
			resolver: shared(redisstore.New(client, "", cfg.Storage.TTL)),
			close:    func() { _ = client.Close() },
		}, nil
	case BackendPostgres:
		s := postgres.NewStorage(pool, cfg.Storage.TTL)
		return &storageBackend{resolver: shared(s), close: noop, purger: s}, nil
	case BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		closeClient := func() { _ = client.Disconnect(context.Background()) }

		s := mongostore.New(client.Database(cfg.MongoDatabase).Collection(mongostore.DefaultCollection), cfg.Storage.TTL)
		if err := s.EnsureIndexes(ctx); err != nil {
			closeClient()
			return nil, err
		}
		hs.AddReadinessCheck("mongo", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		return &storageBackend{resolver: shared(s), close: closeClient}, nil
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// purgeExpired deletes expired carts every interval until ctx is done.
func purgeExpired(ctx context.Context, s *postgres.Storage, interval time.Duration) {
	if interval <= 0 {
		return
	}
	lg := zctx.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				lg.Warn("Purge expired carts", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Purged expired carts", zap.Int64("count", n))
			}
		}
	}
}
