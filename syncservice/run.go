// Package syncservice wires the sync service together and runs its HTTP server.
package syncservice

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/practicekit/sprucesync/internal/api"
	"github.com/practicekit/sprucesync/internal/api/recovery"
	"github.com/practicekit/sprucesync/internal/config"
	"github.com/practicekit/sprucesync/internal/health"
	"github.com/practicekit/sprucesync/internal/logger"
	"github.com/practicekit/sprucesync/internal/spruce"
	"github.com/practicekit/sprucesync/internal/store"
	"github.com/practicekit/sprucesync/internal/syncer"
)

const healthInterval = 30 * time.Second

// Run starts the sync service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("spruce-sync")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("spruce_base_url", cfg.SpruceBaseURL).
		Str("auth_scheme", string(cfg.AuthScheme)).
		Str("data_dir", cfg.DataDir).
		Msg("Sync service starting")

	// Cancellable root context bound to SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conversations, messages, err := openStores(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Cache stores unavailable")
		return err
	}

	client := spruce.NewClient(cfg)
	svc := syncer.New(client, conversations, messages, cfg, log)

	router := buildRouter(svc, conversations, log)

	startHealthCheckers(ctx, log, client, messages)

	poller := syncer.NewPoller(svc, cfg.PollInterval, log)
	go poller.Run(ctx)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		if err := conversations.Flush(); err != nil {
			log.Error().Err(err).Msg("Conversation cache flush failed on shutdown")
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}
}

func openStores(cfg *config.Config, log zerolog.Logger) (*store.ConversationStore, *store.MessageStore, error) {
	conversations := store.OpenConversations(filepath.Join(cfg.DataDir, "conversations.json"), log)
	messages, err := store.OpenMessages(filepath.Join(cfg.DataDir, "messages"), log)
	if err != nil {
		return nil, nil, err
	}
	return conversations, messages, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(svc api.SyncService, conversations *store.ConversationStore, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	h := api.NewConversationHandler(svc, conversations, log)
	root.HandleFunc("/api/conversations", h.ListConversations).Methods("GET")
	root.HandleFunc("/api/sync", h.Sync).Methods("POST")
	root.HandleFunc("/api/updates", h.Updates).Methods("GET")
	root.HandleFunc("/api/history/{conversationId}", h.History).Methods("GET")
	root.HandleFunc("/api/archive/{conversationId}", h.Archive).Methods("POST")

	healthHandler := api.NewHealthHandler()
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	root.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers and the service aggregate.
// Health never gates serving: a stale cache is still served while the
// upstream is down, so startup does not block on a healthy probe.
func startHealthCheckers(ctx context.Context, log zerolog.Logger, client *spruce.Client, messages *store.MessageStore) {
	upstream := health.NewPingChecker("upstream", client, log, 5*time.Second)
	go upstream.Start(ctx, healthInterval)

	cacheDir := health.NewPingChecker("cache-dir", messages, log, 2*time.Second)
	go cacheDir.Start(ctx, healthInterval)

	svcHealth := health.NewServiceHealthChecker(log, upstream, cacheDir)
	go svcHealth.Start(ctx, healthInterval)
	api.BindServiceHealth(svcHealth.IsHealthy)
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
