package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// OperationCounter returns a subscriber counting store mutations in the
// cart.operations metric, labelled by op.
func OperationCounter(meter metric.Meter) (cart.Subscriber, error) {
	ops, err := meter.Int64Counter("cart.operations",
		metric.WithDescription("Cart store mutations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart.operations counter")
	}
	return func(ctx context.Context, ev cart.Event) {
		ops.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(ev.Op))))
	}, nil
}
