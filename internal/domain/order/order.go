// Package order archives orders created from carts.
package order

import (
	"context"
	"time"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// Repository defines persistence operations for archived orders.
type Repository interface {
	Create(ctx context.Context, o *cart.Order) error
	// Stream calls fn for every order created at or after since, oldest
	// first. Iteration stops at the first error returned by fn.
	Stream(ctx context.Context, since time.Time, fn func(cart.Order) error) error
}
