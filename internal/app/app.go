// Package app wires the client together: store, backend client, metrics,
// session manager and backtest orchestrator.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/newthinker/tradedesk/internal/backend"
	"github.com/newthinker/tradedesk/internal/backtest"
	"github.com/newthinker/tradedesk/internal/config"
	"github.com/newthinker/tradedesk/internal/metrics"
	"github.com/newthinker/tradedesk/internal/session"
	"github.com/newthinker/tradedesk/internal/storage/kv"
	"go.uber.org/zap"
)

// App is the main application object
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
	store   kv.Store
	client  *backend.Client

	sessions     *session.Manager
	orchestrator *backtest.Orchestrator

	mu         sync.Mutex
	started    bool
	restoreErr error
}

// Option configures an App.
type Option func(*App)

// WithStore overrides the store built from config.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// New creates a new App instance from a validated config
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		store, err := kv.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("creating session store: %w", err)
		}
		a.store = store
	}

	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.API.Timeout),
		backend.WithLogger(logger.Named("backend")),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
		clientOpts = append(clientOpts, backend.WithTransport(metrics.NewTransport(a.metrics, nil)))
	}
	a.client = backend.New(cfg.API.BaseURL, clientOpts...)

	a.sessions = session.NewManager(a.client, a.store, logger.Named("session"), a.metrics)
	a.orchestrator = backtest.New(a.client, a.sessions,
		backtest.Config{Timerange: cfg.Backtest.Timerange},
		logger.Named("backtest"), a.metrics)
	a.sessions.OnSessionStarted(a.orchestrator)

	return a, nil
}

// Start restores a persisted session, which loads the catalog when one is
// found. An unreadable store is not fatal: the app starts Anonymous so the
// user can log out or log in again, and the error is kept for RestoreError.
// Calling Start twice is an error.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("app already started")
	}
	a.started = true
	a.mu.Unlock()

	restored, err := a.sessions.Restore(ctx)
	if err != nil {
		a.mu.Lock()
		a.restoreErr = err
		a.mu.Unlock()

		a.logger.Warn("restoring session failed, starting logged out", zap.Error(err))
		if a.metrics != nil {
			a.metrics.RecordLogin("restore", false)
		}
	}

	a.logger.Debug("tradedesk started",
		zap.String("base_url", a.client.BaseURL()),
		zap.String("store", a.cfg.Store.Type),
		zap.Bool("restored", restored),
	)
	return nil
}

// Close flushes metrics to the configured textfile.
func (a *App) Close() error {
	if a.metrics == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	return a.metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}

// RestoreError returns why the persisted session could not be read, nil if
// it was read or absent.
func (a *App) RestoreError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restoreErr
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Metrics returns the registry, nil when metrics are disabled.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Client returns the backend client.
func (a *App) Client() *backend.Client { return a.client }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Orchestrator returns the backtest orchestrator.
func (a *App) Orchestrator() *backtest.Orchestrator { return a.orchestrator }
