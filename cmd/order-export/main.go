// Command order-export writes archived cart orders to a gzipped JSON lines
// file, one order per line in the cart payload shape.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/citricloud-cart/internal/storage/postgres"
)

// stopSignals end the export: Ctrl-C locally, SIGTERM from a container stop.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func main() {
	var (
		databaseURL string
		outPath     string
		sinceFlag   string
		appendMode  bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "orders.jsonl.gz", "output file")
	flag.StringVar(&sinceFlag, "since", "", "export orders created at or after this RFC 3339 time")
	flag.BoolVar(&appendMode, "append", false, "continue an existing export, skipping orders it already holds")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	var since time.Time
	if sinceFlag != "" {
		t, err := time.Parse(time.RFC3339, sinceFlag)
		if err != nil {
			slog.Error("invalid --since", slog.String("error", err.Error()))
			os.Exit(1)
		}
		since = t
	}

	ctx, cancel := signal.NotifyContext(context.Background(), stopSignals...)
	defer cancel()

	if err := run(ctx, databaseURL, outPath, since, appendMode); err != nil {
		slog.Error("order export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, outPath string, since time.Time, appendMode bool) error {
	var cp checkpoint
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		var err error
		cp, err = readCheckpoint(ctx, outPath)
		if err != nil {
			return errors.Wrap(err, "read existing export")
		}
		if cp.last.After(since) {
			since = cp.last
		}
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		slog.Info("continuing export",
			slog.String("path", outPath),
			slog.Int("existing", cp.count),
			slog.Time("since", since),
		)
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	f, err := os.OpenFile(outPath, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", outPath)
	}

	n, err := export(ctx, postgres.NewOrderRepository(pool), since, cp.skip, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	slog.Info("order export completed", slog.String("path", outPath), slog.Int("orders", n))
	return nil
}
