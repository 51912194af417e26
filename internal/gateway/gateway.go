// ABOUTME: Gateway orchestrator that wires the order engine together
// ABOUTME: Constructs store, tracker, hub, state machine and the HTTP server

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dishpatch/dishpatch/internal/auth"
	"github.com/dishpatch/dishpatch/internal/bot"
	"github.com/dishpatch/dishpatch/internal/config"
	"github.com/dishpatch/dishpatch/internal/hub"
	"github.com/dishpatch/dishpatch/internal/kitchen"
	"github.com/dishpatch/dishpatch/internal/order"
	"github.com/dishpatch/dishpatch/internal/store"
)

// Gateway orchestrates the dishpatch server components: the SQLite store,
// kitchen load tracker, order state machine, WebSocket hub and HTTP API.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	tracker    *kitchen.Tracker
	hub        *hub.Hub
	machine    *order.Machine
	resolver   *auth.Resolver
	tokens     *auth.TokenVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	tokens := auth.NewTokenVerifier([]byte(cfg.Auth.StaffTokenSecret))
	resolver := auth.NewResolver(cfg.Auth.BotToken, tokens, s)

	tracker := kitchen.NewTracker(s, logger)
	h := hub.New(resolver, logger)
	notifier := bot.New(cfg.Bot.WebhookURL, logger)
	machine := order.NewMachine(s, tracker, h, notifier, logger)

	g := &Gateway{
		config:   cfg,
		store:    s,
		tracker:  tracker,
		hub:      h,
		machine:  machine,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// Persistent connections authenticate in-band
	mux.Handle("/ws", h)

	// Order API - every request carries a credential
	authMiddleware := auth.Middleware(resolver)
	mux.Handle("/api/orders", authMiddleware(http.HandlerFunc(g.handleOrders)))
	mux.Handle("/api/orders/", authMiddleware(http.HandlerFunc(g.handleOrderRoutes)))

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// warmTracker re-derives kitchen load for every restaurant that has active
// orders, so estimates are correct immediately after a restart.
func (g *Gateway) warmTracker(ctx context.Context) error {
	ids, err := g.store.ActiveRestaurantIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing active restaurants: %w", err)
	}
	for _, id := range ids {
		if _, err := g.tracker.Recalculate(ctx, id); err != nil {
			return fmt.Errorf("recalculating load for %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		g.logger.Info("kitchen load recalculated", "restaurants", len(ids))
	}
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.warmTracker(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.hub.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ActiveRestaurantIDs(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
