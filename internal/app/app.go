package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"listeningtrends-go/internal/auth"
	"listeningtrends-go/internal/config"
	"listeningtrends-go/internal/session"
	"listeningtrends-go/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Result is the terminal outcome of a callback: a profile or the error that
// stopped the flow.
type Result struct {
	Profile *auth.Profile
	Err     error
}

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        logrus.FieldLogger
	Storage       *storage.SQLiteStorage
	Store         session.Store
	Flow          *auth.Flow
	Router        *mux.Router
	HttpServer    *http.Server
	MetricsServer *http.Server

	// mu serializes flow steps; there is a single user session per process.
	mu      sync.Mutex
	session *auth.Session
	results chan Result

	listener    net.Listener
	cancelPurge context.CancelFunc
	wg          sync.WaitGroup
}

// New creates and initializes a new Application instance.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Application, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app := &Application{
		Config:  cfg,
		Logger:  logger.WithField("component", "app"),
		session: auth.NewSession(),
		results: make(chan Result, 1),
	}

	// Setup: Session Store
	switch cfg.Storage.Driver {
	case "sqlite":
		key, err := cfg.Storage.Key()
		if err != nil {
			return nil, err
		}
		dbCfg := storage.DefaultConfig()
		dbCfg.Path = cfg.Storage.Path
		st, err := storage.OpenDatabase(ctx, dbCfg, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		app.Storage = st
		app.Store = st
	default:
		app.Store = session.NewInMemoryStore()
	}

	// Setup: Auth Flow
	flow, err := auth.NewFlow(flowConfig(cfg.Auth), app.Store, auth.WithLogger(logger))
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to create auth flow: %w", err)
	}
	app.Flow = flow

	// Setup: Main HTTP Server
	app.Router = app.routes()
	app.HttpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup: HTTP Server for metrics
	if cfg.Server.MetricsPort != 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		app.MetricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return app, nil
}

func flowConfig(c config.AuthConfig) auth.Config {
	return auth.Config{
		ClientID:       c.ClientID,
		RedirectURL:    c.RedirectURL,
		Scopes:         c.Scopes,
		AuthURL:        c.AuthURL,
		TokenURL:       c.TokenURL,
		ProfileURL:     c.ProfileURL,
		VerifierLength: c.VerifierLength,
		StateLength:    c.StateLength,
		Timeout:        c.Timeout.Duration,
		AttemptTTL:     c.AttemptTTL.Duration,
		OverlapPolicy:  auth.OverlapPolicy(c.OverlapPolicy),
	}
}

func (a *Application) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.logRequests)

	r.HandleFunc("/", a.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/callback", a.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/me", a.requireToken(http.HandlerFunc(a.handleProfile))).Methods(http.MethodGet)

	return r
}

// Start begins the application's services. Listeners are bound before it
// returns, so a port conflict is reported here.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.Info("Starting application services")

	ln, err := net.Listen("tcp", a.HttpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.HttpServer.Addr, err)
	}
	a.listener = ln

	var metricsLn net.Listener
	if a.MetricsServer != nil {
		metricsLn, err = net.Listen("tcp", a.MetricsServer.Addr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.MetricsServer.Addr, err)
		}
	}

	if a.Storage != nil && a.Config.Storage.PurgeInterval.Duration > 0 {
		purgeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.cancelPurge = cancel
		a.wg.Add(1)
		go a.purgeLoop(purgeCtx)
	}

	if metricsLn != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Logger.WithField("addr", metricsLn.Addr().String()).Info("Starting metrics server")
			if err := a.MetricsServer.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Logger.WithField("addr", ln.Addr().String()).Info("Starting HTTP server")
		if err := a.HttpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	return nil
}

// Addr returns the address the HTTP server is bound to, once started.
func (a *Application) Addr() string {
	if a.listener == nil {
		return a.HttpServer.Addr
	}
	return a.listener.Addr().String()
}

// Stop gracefully shuts down the application's services.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.Info("Stopping application services")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.WithError(err).Warn("HTTP server shutdown error")
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.WithError(err).Warn("Metrics server shutdown error")
		}
	}

	if a.cancelPurge != nil {
		a.cancelPurge()
	}
	a.wg.Wait()

	a.closeStorage()

	a.Logger.Info("Application stopped gracefully")
	return nil
}

func (a *Application) closeStorage() {
	if a.Storage == nil {
		return
	}
	if err := a.Storage.Close(); err != nil {
		a.Logger.WithError(err).Warn("Error closing database")
	}
}

// purgeLoop drops attempts abandoned for longer than the attempt TTL.
func (a *Application) purgeLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.Config.Storage.PurgeInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Storage.PurgeStale(ctx, a.Config.Auth.AttemptTTL.Duration)
			if err != nil {
				a.Logger.WithError(err).Warn("Failed to purge stale attempts")
				continue
			}
			if n > 0 {
				a.Logger.WithField("purged", n).Info("Purged stale attempts")
			}
		}
	}
}

// BeginLogin starts a fresh authorization attempt and returns the URL the
// browser must visit.
func (a *Application) BeginLogin(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	req, err := a.Flow.Begin(ctx, a.session)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Phase reports the current phase of the session.
func (a *Application) Phase() auth.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Phase()
}

// WaitForResult blocks until a callback either fetches the profile or fails.
func (a *Application) WaitForResult(ctx context.Context) (*auth.Profile, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-a.results:
		return res.Profile, res.Err
	}
}

// publish hands a callback outcome to WaitForResult, dropping it if nobody
// has collected the previous one.
func (a *Application) publish(res Result) {
	select {
	case a.results <- res:
	default:
	}
}
