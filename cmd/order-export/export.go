package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/domain/order"
)

const (
	progressEvery = 10_000
	// gzipBlockSize is the per-goroutine block of the parallel gzip writer.
	gzipBlockSize = 1 << 20
)

// checkpoint summarises an existing export.
type checkpoint struct {
	count int
	// last is the newest order date in the export.
	last time.Time
	// skip holds the ids of orders dated exactly last, which a query from
	// last would return again.
	skip map[string]struct{}
}

// export streams orders created at or after since into w as one gzip member
// of JSON lines, skipping ids in skip. It returns the number of orders
// written.
func export(ctx context.Context, repo order.Repository, since time.Time, skip map[string]struct{}, w io.Writer) (int, error) {
	gz := pgzip.NewWriter(w)
	if err := gz.SetConcurrency(gzipBlockSize, runtime.GOMAXPROCS(0)); err != nil {
		return 0, errors.Wrap(err, "configure gzip writer")
	}

	orders := make(chan cart.Order, 256)
	var written int

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(orders)
		return repo.Stream(ctx, since, func(o cart.Order) error {
			if _, ok := skip[o.ID]; ok {
				return nil
			}
			select {
			case orders <- o:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	g.Go(func() error {
		for o := range orders {
			var e jx.Encoder
			cart.EncodeOrder(&e, o)
			if _, err := gz.Write(append(e.Bytes(), '\n')); err != nil {
				return errors.Wrapf(err, "write order %q", o.OrderNumber)
			}
			written++
			if written%progressEvery == 0 {
				slog.Info("export progress", slog.Int("orders", written))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		_ = gz.Close()
		return written, err
	}
	if err := gz.Close(); err != nil {
		return written, errors.Wrap(err, "flush gzip")
	}
	return written, nil
}

// readCheckpoint scans an existing export. A missing file is an empty
// checkpoint.
func readCheckpoint(ctx context.Context, path string) (checkpoint, error) {
	cp := checkpoint{skip: map[string]struct{}{}}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return cp, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	if err := scanExport(ctx, f, func(o cart.Order) {
		cp.count++
		switch {
		case o.Date.After(cp.last):
			cp.last = o.Date
			clear(cp.skip)
			cp.skip[o.ID] = struct{}{}
		case o.Date.Equal(cp.last):
			cp.skip[o.ID] = struct{}{}
		}
	}); err != nil {
		return cp, errors.Wrapf(err, "scan %s", path)
	}
	return cp, nil
}

// scanExport decodes every order of a (possibly multi-member) gzipped JSON
// lines stream.
func scanExport(ctx context.Context, r io.Reader, fn func(cart.Order)) error {
	gz, err := pgzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		o, err := cart.DecodeOrder(jx.DecodeBytes(scanner.Bytes()))
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		fn(o)
	}
	return scanner.Err()
}
