package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// Archiver copies every order created in a cart store into a Repository.
type Archiver struct {
	orders  Repository
	timeout time.Duration
}

// NewArchiver creates an Archiver writing to orders. A positive timeout
// bounds each write.
func NewArchiver(orders Repository, timeout time.Duration) *Archiver {
	return &Archiver{orders: orders, timeout: timeout}
}

// Subscriber returns the Archiver as a cart store subscriber.
func (a *Archiver) Subscriber() cart.Subscriber {
	return a.Archive
}

// Archive stores ev.Order for OpCreateOrder events and ignores all others.
// The write is not cancelled with ctx. Failures are logged; the order
// already exists in the cart state.
func (a *Archiver) Archive(ctx context.Context, ev cart.Event) {
	if ev.Op != cart.OpCreateOrder || ev.Order == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.orders.Create(ctx, ev.Order); err != nil {
		zctx.From(ctx).Error("Archive order",
			zap.String("order_number", ev.Order.OrderNumber),
			zap.Error(err),
		)
		return
	}
	zctx.From(ctx).Debug("Order archived", zap.String("order_number", ev.Order.OrderNumber))
}
