// Package httpserver wires the routes, middleware, and access gates into
// an http.Server.
package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/accessi-au/subscription-backend/internal/config"
	"github.com/accessi-au/subscription-backend/internal/handlers"
	"github.com/accessi-au/subscription-backend/internal/middleware"
	"github.com/accessi-au/subscription-backend/internal/receipt"
	"github.com/accessi-au/subscription-backend/internal/store"
	"github.com/accessi-au/subscription-backend/internal/subscription"
)

// Server wraps an http.Server with convenience helpers for
// startup/shutdown.
type Server struct {
	httpServer *http.Server
}

// New constructs an HTTP server using the provided configuration, storage
// client, subscription manager, and receipt renderer.
func New(cfg config.Config, st *store.Store, manager *subscription.Manager, renderer *receipt.Renderer) *Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Authenticate(st))

	router.Get("/healthz", handlers.Health)
	router.Handle("/static/*", handlers.Static())
	router.Post("/api/register", handlers.Register(st))

	// Payment page and its API, gated on the payment-form role.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePaymentAccess(st))
		r.Get("/subscription/payment", handlers.PaymentPage(manager))
		r.Post("/subscription/validate-coupon", handlers.ValidateCoupon(manager))
		r.Post("/subscription/payment/process", handlers.ProcessPayment(manager))
		r.Post("/subscription/payment/complete", handlers.CompletePayment(manager))
	})

	// Subscription details and receipts, restricted to the owning user.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireSubscriptionAccess(st))
		r.Get("/user/{userID}/subscription", handlers.SubscriptionDetailsPage(manager))
		r.Get("/user/{userID}/subscription/tax-receipt/{invoiceID}", handlers.TaxReceipt(renderer, st))
	})

	// Admin settings.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Get("/api/admin/settings", handlers.GetSettings(st))
		r.Put("/api/admin/settings", handlers.UpdateSettings(st))
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	log.Printf("[server] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
