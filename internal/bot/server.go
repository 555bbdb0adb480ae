package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/upbot/internal/api/middleware"
	"github.com/newthinker/upbot/internal/api/response"
	"github.com/newthinker/upbot/internal/config"
	"github.com/newthinker/upbot/internal/core"
	"github.com/newthinker/upbot/internal/metrics"
	"github.com/newthinker/upbot/internal/storage/signal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes Prometheus metrics, the bot status and a health check.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer wires the status endpoints for b. A nil bot serves metrics only.
// cfg.APIKey, when set, guards everything but metrics and the health check.
func NewServer(cfg config.MetricsConfig, reg *metrics.Registry, b *Bot, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", handleHealth)
	routes := []string{path, "/healthz"}
	if b != nil {
		auth := middleware.APIKeyAuth(cfg.APIKey)
		mux.Handle("/status", auth(http.HandlerFunc(b.handleStatus)))
		routes = append(routes, "/status")
		if b.deps.Signals != nil {
			mux.Handle("/signals", auth(http.HandlerFunc(b.handleSignals)))
			routes = append(routes, "/signals")
		}
	}

	handler := metrics.HTTPMiddleware(reg, routes...)(metrics.LoggingMiddleware(logger)(mux))

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting status server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (b *Bot) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response.JSON(w, http.StatusOK, b.Status())
}

const defaultSignalLimit = 50

// handleSignals lists recent signals, newest first. Query parameters:
// market, direction, limit, offset.
func (b *Bot) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := signal.ListFilter{
		Market:    q.Get("market"),
		Direction: core.Direction(q.Get("direction")),
		Limit:     defaultSignalLimit,
	}
	switch filter.Direction {
	case "", core.DirectionBuy, core.DirectionSell:
	default:
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, fmt.Errorf("direction must be BUY or SELL")))
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest,
				core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s must be a non-negative integer", name)))
			return
		}
		*dst = n
	}

	ctx := r.Context()
	records, err := b.deps.Signals.List(ctx, filter)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	total, err := b.deps.Signals.Count(ctx, signal.ListFilter{Market: filter.Market, Direction: filter.Direction})
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.List(w, records, total)
}
