package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pliu/murmur/internal/config"
	"github.com/pliu/murmur/internal/groups"
	"github.com/pliu/murmur/internal/handlers"
	"github.com/pliu/murmur/internal/identity"
	"github.com/pliu/murmur/internal/logging"
	"github.com/pliu/murmur/internal/middleware"
	"github.com/pliu/murmur/internal/presence"
	"github.com/pliu/murmur/internal/ratelimit"
	"github.com/pliu/murmur/internal/redact"
	"github.com/pliu/murmur/internal/store/sqlstore"
	"github.com/pliu/murmur/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	redactor := redact.New(cfg.Secrets()...)
	logger, err := logging.NewLogger(cfg.LogLevel, redactor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestLimiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	eventLimiter := ratelimit.New(cfg.RateLimit.Events, cfg.RateLimit.Window)
	go requestLimiter.Run(ctx)
	go eventLimiter.Run(ctx)

	identities := identity.NewRegistry(store)
	distribution := groups.NewDistribution(store)

	hub := ws.NewHub(ws.Options{
		Store:           store,
		Identities:      identities,
		Groups:          distribution,
		Sessions:        presence.NewRegistry(),
		EventLimiter:    eventLimiter,
		Logger:          logger,
		Redactor:        redactor,
		Registerer:      prometheus.DefaultRegisterer,
		DefaultHistory:  cfg.History.DefaultLimit,
		MaxHistory:      cfg.History.MaxLimit,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
	})
	go hub.Run(ctx)

	identityHandler := &handlers.IdentityHandler{Registry: identities, Logger: logger, Redactor: redactor}
	groupHandler := &handlers.GroupHandler{Groups: distribution, Logger: logger, Redactor: redactor}
	healthHandler := &handlers.HealthHandler{Store: store, Logger: logger}
	upgrader := ws.NewUpgrader(cfg.WebSocket.AllowedOrigins)

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))

	// Unthrottled operational endpoints
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	limited := middleware.RateLimit(requestLimiter, cfg.RateLimit.TrustProxy)

	// API Endpoints
	api := r.PathPrefix("/api").Subrouter()
	api.Use(limited)
	api.HandleFunc("/users", identityHandler.Register).Methods("POST")
	api.HandleFunc("/users/search/{query}", identityHandler.Search).Methods("GET")
	api.HandleFunc("/users/{id}", identityHandler.Get).Methods("GET")
	api.HandleFunc("/groups", groupHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups/{id}", groupHandler.GetGroup).Methods("GET")

	// WebSocket Endpoint
	r.Handle("/ws", limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, upgrader, w, r, middleware.ClientAddr(r, cfg.RateLimit.TrustProxy))
	})))

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.HTTPAddress),
			zap.String("driver", cfg.Database.Driver),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited with error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.Duration("grace_period", cfg.ShutdownGracePeriod))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", zap.Error(err))
		}
	}
}
