// Package backtest drives the strategy catalog and the single backtest run
// of a logged-in session.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradedesk/internal/core"
	"github.com/newthinker/tradedesk/internal/metrics"
	"go.uber.org/zap"
)

// API is the part of the backend the orchestrator talks to.
type API interface {
	Strategies(ctx context.Context, token string) (string, error)
	Backtest(ctx context.Context, token string, req core.BacktestRequest) (json.RawMessage, error)
}

// TokenSource yields the current session token. It is read on every call.
type TokenSource interface {
	Token() string
}

// Config holds orchestrator settings.
type Config struct {
	Timerange string
}

// Orchestrator owns the catalog, the selected strategy and the backtest run.
type Orchestrator struct {
	api     API
	tokens  TokenSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time

	mu         sync.RWMutex
	catalog    []string
	catalogErr error
	selected   string
	run        core.BacktestRun
}

// New creates an orchestrator with an empty catalog and an idle run.
func New(api API, tokens TokenSource, cfg Config, logger *zap.Logger, reg *metrics.Registry) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		api:     api,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger,
		metrics: reg,
		now:     time.Now,
		catalog: []string{},
		run:     core.BacktestRun{Status: core.RunIdle},
	}
}

// SessionStarted loads the catalog for a new session.
func (o *Orchestrator) SessionStarted(ctx context.Context, token string) {
	o.FetchStrategies(ctx, token)
}

// FetchStrategies replaces the catalog with the backend listing. token is
// passed in, not read from the session, so a concurrent logout cannot change
// the request in flight. On failure the previous catalog is kept and the
// error is logged and kept for CatalogError.
func (o *Orchestrator) FetchStrategies(ctx context.Context, token string) {
	body, err := o.api.Strategies(ctx, token)
	if err != nil {
		o.mu.Lock()
		o.catalogErr = err
		o.mu.Unlock()

		o.logger.Error("failed to fetch strategies", zap.Error(err))
		if o.metrics != nil {
			o.metrics.RecordCatalogFetch(false, 0)
		}
		return
	}

	names := core.ParseCatalog(body)

	o.mu.Lock()
	o.catalog = names
	o.catalogErr = nil
	o.mu.Unlock()

	o.logger.Debug("strategies loaded", zap.Int("count", len(names)))
	if o.metrics != nil {
		o.metrics.RecordCatalogFetch(true, len(names))
	}
}

// Catalog returns a copy of the strategy names.
func (o *Orchestrator) Catalog() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]string, len(o.catalog))
	copy(out, o.catalog)
	return out
}

// CatalogError returns the error of the last fetch, nil after a success.
func (o *Orchestrator) CatalogError() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.catalogErr
}

// SelectStrategy sets the strategy for the next run. The name is not checked
// against the catalog.
func (o *Orchestrator) SelectStrategy(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selected = name
}

// Selected returns the selected strategy, empty if none.
func (o *Orchestrator) Selected() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.selected
}

// Run returns a copy of the current run.
func (o *Orchestrator) Run() core.BacktestRun {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return copyRun(o.run)
}

// Timerange returns the backtest window sent with every run.
func (o *Orchestrator) Timerange() string {
	return o.cfg.Timerange
}

// RunBacktest executes the selected strategy and blocks until the backend
// answers. Precondition failures return an error before any request and
// leave the current run untouched. Otherwise the returned run is completed
// or failed and its error is also returned.
func (o *Orchestrator) RunBacktest(ctx context.Context) (run core.BacktestRun, err error) {
	o.mu.Lock()
	strategy := o.selected
	if strategy == "" {
		o.mu.Unlock()
		return o.Run(), core.ErrNoStrategySelected
	}
	token := o.tokens.Token()
	if token == "" {
		o.mu.Unlock()
		return o.Run(), core.ErrNotLoggedIn
	}

	o.run = core.BacktestRun{
		ID:        uuid.NewString(),
		Status:    core.RunRunning,
		Strategy:  strategy,
		Timerange: o.cfg.Timerange,
		StartedAt: o.now(),
	}
	started := o.run
	o.mu.Unlock()

	log := o.logger.With(
		zap.String("run_id", started.ID),
		zap.String("strategy", strategy),
		zap.String("timerange", o.cfg.Timerange),
	)
	log.Info("backtest started")

	// The run must never be left running, whatever the call does.
	defer func() {
		if r := recover(); r != nil {
			run, err = o.finish(started, nil, core.WrapError(core.ErrBacktestFailed, fmt.Errorf("panic: %v", r)))
			log.Error("backtest panicked", zap.Any("panic", r))
		}
	}()

	result, callErr := o.api.Backtest(ctx, token, core.BacktestRequest{
		Strategy:  strategy,
		Timerange: o.cfg.Timerange,
	})

	run, err = o.finish(started, result, callErr)
	if err != nil {
		log.Warn("backtest failed", zap.Error(err), zap.Duration("duration", run.Duration()))
	} else {
		log.Info("backtest completed", zap.Duration("duration", run.Duration()))
	}
	return run, err
}

// finish moves the run to its terminal state. A later run may have replaced
// this one; the last writer wins.
func (o *Orchestrator) finish(run core.BacktestRun, result json.RawMessage, callErr error) (core.BacktestRun, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run.FinishedAt = o.now()
	if callErr != nil {
		run.Status = core.RunFailed
		run.Error = core.UserMessage(callErr)
		run.Result = nil
	} else {
		run.Status = core.RunCompleted
		run.Result = result
		run.Error = ""
	}
	o.run = run

	if o.metrics != nil {
		o.metrics.RecordBacktest(string(run.Status), run.Duration().Seconds())
	}

	return copyRun(run), callErr
}

func copyRun(r core.BacktestRun) core.BacktestRun {
	if r.Result != nil {
		res := make(json.RawMessage, len(r.Result))
		copy(res, r.Result)
		r.Result = res
	}
	return r
}
