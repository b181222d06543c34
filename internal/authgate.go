// Package internal wires the authgate application: the upstream client,
// the credential exchange broker, the session verifier and token issuer,
// the handoff strategies, and the HTTP surface that exposes them.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dgellow/authgate/internal/broker"
	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/crypto"
	"github.com/dgellow/authgate/internal/envutil"
	"github.com/dgellow/authgate/internal/establish"
	"github.com/dgellow/authgate/internal/idp"
	"github.com/dgellow/authgate/internal/issuer"
	"github.com/dgellow/authgate/internal/log"
	"github.com/dgellow/authgate/internal/server"
	"github.com/dgellow/authgate/internal/storage"
	"github.com/dgellow/authgate/internal/upstream"
	"github.com/dgellow/authgate/internal/verifier"
)

const cleanupInterval = 1 * time.Minute

// AuthGate represents the complete broker application
type AuthGate struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Store
	cleanup    *storage.CleanupManager
	upstream   *upstream.Client
}

// NewAuthGate builds the application with all dependencies
func NewAuthGate(ctx context.Context, cfg config.Config) (*AuthGate, error) {
	log.LogInfoWithFields("authgate", "Building broker application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"upstream": cfg.Upstream.APIURL,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	client := upstream.NewClient(cfg.Upstream)

	signingKey, err := ticketSigningKey(cfg)
	if err != nil {
		return nil, err
	}

	maxTTL := cfg.Tickets.MaxTTL.Std()
	ticketEst := establish.NewTicketEstablisher(client, maxTTL)
	directEst := establish.NewDirectEstablisher(signingKey, store, maxTTL)
	establishers := map[string]establish.Establisher{
		establish.StrategyTicket: ticketEst,
		establish.StrategyDirect: directEst,
	}

	b := broker.New(client, store)
	v := verifier.New(client)
	i := issuer.New(client)

	providers, err := setupProviders(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup providers: %w", err)
	}

	mux, err := buildHTTPHandler(cfg, b, v, i, establishers, directEst, providers, signingKey, client, store)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &AuthGate{
		config:     cfg,
		httpServer: server.NewHTTPServer(mux, cfg.Server.Addr),
		store:      store,
		cleanup:    storage.NewCleanupManager(store, cleanupInterval),
		upstream:   client,
	}, nil
}

// Run starts the application and blocks until shutdown
func (a *AuthGate) Run() error {
	log.LogInfoWithFields("authgate", "Starting broker application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.probeUpstream(ctx)
	a.cleanup.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("authgate", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("authgate", "Starting graceful shutdown", map[string]any{
		"reason": shutdownReason,
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		return err
	}

	a.cleanup.Stop()
	if err := a.store.Close(); err != nil {
		log.LogWarnWithFields("authgate", "Storage close error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("authgate", "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// probeUpstream confirms upstream connectivity at startup with exponential
// backoff. Non-fatal: per-request calls fail independently, so an
// unreachable upstream only logs a warning here.
func (a *AuthGate) probeUpstream(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := backoff.Retry(probeCtx, func() (struct{}, error) {
		if err := a.upstream.Probe(probeCtx); err != nil {
			// Configuration problems will not heal with retries
			if upstream.IsKind(err, upstream.KindConfiguration) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(4))

	if err != nil {
		log.LogWarnWithFields("authgate", "Upstream probe failed, continuing anyway", map[string]any{
			"error": err.Error(),
		})
		return
	}
	log.LogInfoWithFields("authgate", "Upstream reachable", nil)
}

// setupStorage creates the storage backend from configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.Storage.Kind == config.StorageKindFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.GCPProject,
			"database":   cfg.Storage.FirestoreDatabase,
			"collection": cfg.Storage.Collection,
		})
		return storage.NewFirestoreStore(ctx, cfg.Storage.GCPProject, cfg.Storage.FirestoreDatabase, cfg.Storage.Collection)
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", nil)
	return storage.NewMemoryStore(), nil
}

// ticketSigningKey returns the configured signing key, or generates an
// ephemeral one. Ephemeral keys invalidate outstanding direct-activation
// tickets on restart, acceptable for single-instance deployments.
func ticketSigningKey(cfg config.Config) ([]byte, error) {
	if cfg.Tickets.SigningKey != "" {
		return []byte(cfg.Tickets.SigningKey), nil
	}

	key, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating ticket signing key: %w", err)
	}
	log.LogWarnWithFields("authgate", "No ticket signing key configured, generated an ephemeral one", nil)
	return []byte(key), nil
}

// setupProviders builds the configured passthrough credential sources
func setupProviders(ctx context.Context, cfg config.Config) (map[string]idp.Provider, error) {
	providers := make(map[string]idp.Provider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		redirectURL := cfg.Server.BaseURL + "/auth/callback/" + name
		provider, err := idp.New(ctx, name, pc, redirectURL)
		if err != nil {
			return nil, err
		}
		providers[name] = provider
		log.LogInfoWithFields("authgate", "Registered credential source", map[string]any{
			"provider": name,
			"type":     string(pc.Type),
		})
	}
	return providers, nil
}

// buildHTTPHandler registers all routes with their middleware
func buildHTTPHandler(
	cfg config.Config,
	b *broker.Broker,
	v *verifier.Verifier,
	i *issuer.Issuer,
	establishers map[string]establish.Establisher,
	directEst *establish.DirectEstablisher,
	providers map[string]idp.Provider,
	signingKey []byte,
	client *upstream.Client,
	store storage.Store,
) (http.Handler, error) {
	mux := http.NewServeMux()

	corsMiddleware := server.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	authLogger := server.NewLoggerMiddleware("auth")
	adminLogger := server.NewLoggerMiddleware("admin")
	authRecover := server.NewRecoverMiddleware("auth")

	authMiddleware := []server.MiddlewareFunc{
		corsMiddleware,
		authLogger,
		authRecover,
	}

	mux.Handle("/health", server.NewHealthHandler())

	authHandlers := server.NewAuthHandlers(b, v, i, establishers, directEst, envutil.IsDev())
	mux.Handle("/auth/login", server.ChainMiddleware(http.HandlerFunc(authHandlers.LoginHandler), authMiddleware...))
	mux.Handle("/auth/verify-session", server.ChainMiddleware(http.HandlerFunc(authHandlers.VerifySessionHandler), authMiddleware...))
	mux.Handle("/auth/token", server.ChainMiddleware(http.HandlerFunc(authHandlers.TokenHandler), authMiddleware...))
	mux.Handle("/auth/activate", server.ChainMiddleware(http.HandlerFunc(authHandlers.ActivateHandler), authMiddleware...))
	mux.Handle("/auth/debug-token", server.ChainMiddleware(http.HandlerFunc(authHandlers.DebugTokenHandler), authMiddleware...))

	if len(providers) > 0 {
		ticketEst, ok := establishers[establish.StrategyTicket].(*establish.TicketEstablisher)
		if !ok {
			return nil, fmt.Errorf("ticket establisher is required for provider passthrough")
		}
		idpHandlers := server.NewIDPHandlers(providers, signingKey, client, ticketEst, store)
		mux.Handle("/auth/oauth/{provider}", server.ChainMiddleware(http.HandlerFunc(idpHandlers.StartHandler), authMiddleware...))
		mux.Handle("/auth/callback/{provider}", server.ChainMiddleware(http.HandlerFunc(idpHandlers.CallbackHandler), authMiddleware...))
	}

	adminMiddleware := []server.MiddlewareFunc{
		corsMiddleware,
		adminLogger,
		server.NewAdminAuthMiddleware(cfg.Admin),
		authRecover,
	}
	adminHandlers := server.NewAdminHandlers(store, client)
	mux.Handle("/auth/ticket", server.ChainMiddleware(http.HandlerFunc(authHandlers.TicketHandler), adminMiddleware...))
	mux.Handle("/admin/sessions", server.ChainMiddleware(http.HandlerFunc(adminHandlers.ListSessionsHandler), adminMiddleware...))
	mux.Handle("/admin/sessions/revoke", server.ChainMiddleware(http.HandlerFunc(adminHandlers.RevokeSessionHandler), adminMiddleware...))

	return mux, nil
}
