// Package handler exposes cart stores over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/session"
)

// maxBodySize bounds request bodies; a whole cart fits well within it.
const maxBodySize = 1 << 20

// maxQuantity bounds the quantity a single request may add or set.
const maxQuantity = 9999

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// TaxRate is applied to the cart total in the summary block.
	TaxRate decimal.Decimal
	// InvoiceURLPrefix prefixes generated invoice download URLs.
	InvoiceURLPrefix string
	// WriteTimeout bounds each storage write. Zero means no bound.
	WriteTimeout time.Duration
	// StoreOptions are applied to every store before its state is loaded.
	StoreOptions []cart.Option
}

// Handler serves the cart API. Every request works on a store loaded from
// the storage slot its session resolves to; mutations are written back
// before the response is sent.
type Handler struct {
	sessions      session.Resolver
	subscribers   []cart.Subscriber
	taxRate       decimal.Decimal
	invoicePrefix string
	writeTimeout  time.Duration
	storeOpts     []cart.Option
}

// NewHandler constructs a Handler. Subscribers observe the mutations of
// every store the handler opens.
func NewHandler(cfg Config, sessions session.Resolver, subscribers ...cart.Subscriber) *Handler {
	if cfg.InvoiceURLPrefix == "" {
		cfg.InvoiceURLPrefix = cart.DefaultInvoiceURLPrefix
	}
	return &Handler{
		sessions:      sessions,
		subscribers:   subscribers,
		taxRate:       cfg.TaxRate,
		invoicePrefix: cfg.InvoiceURLPrefix,
		writeTimeout:  cfg.WriteTimeout,
		storeOpts:     cfg.StoreOptions,
	}
}

// Routes returns the API router, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Put("/items/{id}", h.UpdateQuantity)
		r.Delete("/items/{id}", h.RemoveItem)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
	})
	return r
}

// open loads the store of the request's session and wires persistence back
// to the same slot.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) *cart.Store {
	ctx := r.Context()
	storage, key := h.sessions.Resolve(w, r)

	opts := make([]cart.Option, 0, len(h.storeOpts)+len(h.subscribers)+3)
	opts = append(opts, h.storeOpts...)
	opts = append(opts,
		cart.WithInvoiceURLPrefix(h.invoicePrefix),
		cart.WithState(cart.Load(ctx, storage, key)),
		cart.WithSubscriber(cart.NewPersister(storage, key, h.writeTimeout).Subscriber()),
	)
	for _, fn := range h.subscribers {
		opts = append(opts, cart.WithSubscriber(fn))
	}
	return cart.New(opts...)
}
