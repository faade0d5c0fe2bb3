package cart

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Op names a cart mutation in an Event.
type Op string

const (
	OpLoad           Op = "load"
	OpAddItem        Op = "add_item"
	OpRemoveItem     Op = "remove_item"
	OpUpdateQuantity Op = "update_quantity"
	OpClearCart      Op = "clear_cart"
	OpCreateOrder    Op = "create_order"
)

// Event is delivered to subscribers after every mutation. State is a private
// copy; Order is set for OpCreateOrder only.
type Event struct {
	Op    Op
	State State
	Order *Order
}

// Subscriber observes store mutations. Subscribers run synchronously on the
// mutating goroutine, share the event with other subscribers (read-only) and
// must not call back into the Store.
type Subscriber func(ctx context.Context, ev Event)

// DefaultInvoiceURLPrefix is the path invoices are downloaded from.
const DefaultInvoiceURLPrefix = "/api/invoices/"

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for order dates and numbers.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand sets the random source for order and invoice number suffixes.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.ids.rnd = r }
}

// WithInvoiceURLPrefix sets the prefix of generated invoice download URLs.
func WithInvoiceURLPrefix(prefix string) Option {
	return func(s *Store) { s.invoicePrefix = prefix }
}

// WithState sets the initial state.
func WithState(st State) Option {
	return func(s *Store) { s.state = st.Clone() }
}

// WithSubscriber registers a subscriber at construction time.
func WithSubscriber(fn Subscriber) Option {
	return func(s *Store) { s.subs = append(s.subs, fn) }
}

// Store is the authoritative in-process cart state. Mutations never fail:
// persistence and other side effects happen in subscribers, which absorb
// their own errors.
type Store struct {
	mu            sync.Mutex
	state         State
	subs          []Subscriber
	now           func() time.Time
	ids           idSource
	invoicePrefix string
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		state:         Empty(),
		now:           time.Now,
		invoicePrefix: DefaultInvoiceURLPrefix,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn for all subsequent mutations.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Items returns a copy of the current line items.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.state.Items)
}

// Orders returns a copy of the placed orders, most recent first.
func (s *Store) Orders() []Order {
	return s.State().Orders
}

// AddItem adds one unit of ref to the cart.
func (s *Store) AddItem(ctx context.Context, ref ProductRef) {
	s.AddItems(ctx, ref, 1)
}

// AddItems adds qty units of ref to the cart. Non-positive qty is a no-op.
func (s *Store) AddItems(ctx context.Context, ref ProductRef, qty int) {
	if qty <= 0 {
		return
	}
	s.apply(ctx, OpAddItem, func(st State) State { return AddItem(st, ref, qty) })
}

// RemoveItem deletes the line item for id, if any.
func (s *Store) RemoveItem(ctx context.Context, id int64) {
	s.apply(ctx, OpRemoveItem, func(st State) State { return RemoveItem(st, id) })
}

// UpdateQuantity sets the quantity for id; qty <= 0 removes the line item.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, qty int) {
	op := OpUpdateQuantity
	if qty <= 0 {
		op = OpRemoveItem
	}
	s.apply(ctx, op, func(st State) State { return UpdateQuantity(st, id, qty) })
}

// ClearCart empties the cart. Orders are kept.
func (s *Store) ClearCart(ctx context.Context) {
	s.apply(ctx, OpClearCart, ClearCart)
}

// Total returns Σ price × quantity of the current items.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Total(s.state)
}

// ItemCount returns Σ quantity of the current items.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ItemCount(s.state)
}

// CreateOrder records a completed order for items at the given total and
// returns it. The items are copied; the cart itself is not cleared.
func (s *Store) CreateOrder(ctx context.Context, items []LineItem, total decimal.Decimal) Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Persisted dates carry milliseconds only.
	now := s.now().UTC().Truncate(time.Millisecond)
	invoiceNumber := s.ids.number(invoiceNumberPrefix, now)
	o := Order{
		ID:          s.ids.orderID(),
		OrderNumber: s.ids.number(orderNumberPrefix, now),
		Date:        now,
		Total:       total,
		Status:      StatusCompleted,
		Items:       cloneItems(items),
		Invoice: &Invoice{
			InvoiceNumber: invoiceNumber,
			DownloadURL:   s.invoicePrefix + invoiceNumber + ".pdf",
		},
	}
	s.state = PrependOrder(s.state, o)

	created := o.clone()
	s.notify(ctx, Event{Op: OpCreateOrder, State: s.state.Clone(), Order: &created})
	return o.clone()
}

func (s *Store) apply(ctx context.Context, op Op, fn func(State) State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = fn(s.state)
	s.notify(ctx, Event{Op: op, State: s.state.Clone()})
}

// notify must be called with s.mu held.
func (s *Store) notify(ctx context.Context, ev Event) {
	for _, fn := range s.subs {
		fn(ctx, ev)
	}
}
