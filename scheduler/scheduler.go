// Package scheduler runs the periodic refresh pipeline: fetch, analyze and
// fan out to sinks, with a consecutive-failure budget that halts the loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"crypto_tracker/coingecko"
	"crypto_tracker/metrics"
	"crypto_tracker/middleware"
	"crypto_tracker/models"
	"crypto_tracker/sink"
	"crypto_tracker/utils"
)

const (
	DefaultInterval     = 300 * time.Second
	DefaultErrorBackoff = 60 * time.Second
	DefaultMaxFailures  = 5
)

// Fetcher retrieves one market batch.
type Fetcher interface {
	Fetch(ctx context.Context) (models.MarketBatch, error)
}

// Analyzer summarizes a batch.
type Analyzer interface {
	Analyze(batch models.MarketBatch) models.StatisticsSummary
}

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

type Config struct {
	Interval     time.Duration // wait after a successful cycle
	ErrorBackoff time.Duration // wait after a failed cycle
	MaxFailures  int           // consecutive failures before halting

	// Backoff overrides the fixed ErrorBackoff wait when set.
	Backoff backoff.BackOff
}

func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		ErrorBackoff: DefaultErrorBackoff,
		MaxFailures:  DefaultMaxFailures,
	}
}

type Scheduler struct {
	cfg        Config
	fetcher    Fetcher
	analyzer   Analyzer
	publishers []sink.Publisher
	persisters []sink.Persister
	sleep      Sleeper
	now        func() time.Time
	backoff    backoff.BackOff

	budget FailureBudget

	// mirrors for readers outside the loop goroutine
	state    atomic.Int32
	failures atomic.Int32
}

type Option func(*Scheduler)

func WithPublishers(p ...sink.Publisher) Option {
	return func(s *Scheduler) { s.publishers = append(s.publishers, p...) }
}

func WithPersisters(p ...sink.Persister) Option {
	return func(s *Scheduler) { s.persisters = append(s.persisters, p...) }
}

func WithSleeper(fn Sleeper) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(cfg Config, fetcher Fetcher, analyzer Analyzer, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}

	s := &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		analyzer: analyzer,
		sleep:    sleepContext,
		now:      time.Now,
		backoff:  cfg.Backoff,
		budget:   NewFailureBudget(cfg.MaxFailures),
	}
	if s.backoff == nil {
		s.backoff = utils.NewConstantBackoff(cfg.ErrorBackoff)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State is safe to call from any goroutine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// ConsecutiveFailures is safe to call from any goroutine.
func (s *Scheduler) ConsecutiveFailures() int {
	return int(s.failures.Load())
}

// Run loops until ctx is cancelled or the failure budget is exhausted. It
// returns ctx.Err() on cancellation and a *HaltError on halt; it never
// restarts itself after halting.
func (s *Scheduler) Run(ctx context.Context) error {
	utils.Logger.Infow("Refresh scheduler started",
		"interval", s.cfg.Interval,
		"error_backoff", s.cfg.ErrorBackoff,
		"max_failures", s.cfg.MaxFailures,
	)

	for {
		if err := ctx.Err(); err != nil {
			s.setState(Idle)
			return err
		}

		start := s.now()
		result, err := s.collect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(Idle)
				return ctx.Err()
			}
			if halt := s.recordFailure(err); halt != nil {
				return halt
			}
			if err := s.wait(ctx, s.nextBackoff()); err != nil {
				return err
			}
			continue
		}

		s.budget.Reset()
		s.backoff.Reset()
		s.failures.Store(0)
		metrics.SetConsecutiveFailures(0)

		s.distribute(ctx, result)
		metrics.IncrementCycle("success")
		metrics.RecordCycleDuration(s.now().Sub(start))

		if err := s.wait(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

// collect performs the fetch and analyze steps of a cycle.
func (s *Scheduler) collect(ctx context.Context) (models.RefreshCycleResult, error) {
	s.setState(Fetching)
	batch, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return models.RefreshCycleResult{}, err
	}
	if len(batch) == 0 {
		return models.RefreshCycleResult{}, ErrEmptyBatch
	}
	fetchedAt := s.now()

	s.setState(Analyzing)
	summary, err := analyze(s.analyzer, batch)
	if err != nil {
		return models.RefreshCycleResult{}, err
	}

	return models.RefreshCycleResult{Batch: batch, Summary: summary, FetchedAt: fetchedAt}, nil
}

// distribute delivers to live publishers first, then to persisters. Persist
// failures are logged and otherwise ignored.
func (s *Scheduler) distribute(ctx context.Context, result models.RefreshCycleResult) {
	s.setState(Distributing)

	for _, p := range s.publishers {
		if ctx.Err() != nil {
			return
		}
		p.Publish(ctx, result)
	}

	for _, p := range s.persisters {
		if ctx.Err() != nil {
			return
		}
		if err := p.Persist(ctx, result); err != nil {
			metrics.IncrementPersistError(p.Name(), string(sink.KindOf(err)))
			utils.Error(err, "Error updating sink",
				"sink", p.Name(),
				"kind", sink.KindOf(err),
			)
		}
	}
}

// recordFailure charges the budget and returns a HaltError once it is spent.
func (s *Scheduler) recordFailure(err error) error {
	exhausted := s.budget.Fail()
	n := s.budget.Count()
	s.failures.Store(int32(n))
	metrics.SetConsecutiveFailures(n)

	switch {
	case errors.Is(err, ErrEmptyBatch):
		metrics.IncrementCycle("empty")
	case coingecko.KindOf(err) != "":
		metrics.IncrementFetchError(string(coingecko.KindOf(err)))
		metrics.IncrementCycle("fetch_failed")
	default:
		metrics.IncrementCycle("analyze_failed")
	}

	utils.Logger.Warnw("Background update failed",
		"error", err,
		"consecutive_failures", n,
		"max_failures", s.budget.Max(),
	)

	if !exhausted {
		return nil
	}

	s.setState(Halted)
	metrics.IncrementCycle("halted")
	utils.Logger.Errorw("Background update stopped due to repeated errors",
		"severity", "critical",
		"consecutive_failures", n,
		"error", err,
	)
	return &HaltError{Failures: n, LastErr: err}
}

func (s *Scheduler) nextBackoff() time.Duration {
	d := s.backoff.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return s.cfg.ErrorBackoff
	}
	return d
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	s.setState(Sleeping)
	if err := s.sleep(ctx, d); err != nil {
		s.setState(Idle)
		return err
	}
	return nil
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetSchedulerState(int(st))
}

// Collect runs one fetch and analyze outside any schedule, for on-demand
// requests. An empty batch yields a NoData summary together with ErrEmptyBatch.
func Collect(ctx context.Context, fetcher Fetcher, analyzer Analyzer) (models.RefreshCycleResult, error) {
	batch, err := fetcher.Fetch(ctx)
	if err != nil {
		return models.RefreshCycleResult{}, err
	}
	fetchedAt := time.Now()

	summary, err := analyze(analyzer, batch)
	if err != nil {
		return models.RefreshCycleResult{}, err
	}

	result := models.RefreshCycleResult{Batch: batch, Summary: summary, FetchedAt: fetchedAt}
	if len(batch) == 0 {
		return result, ErrEmptyBatch
	}
	return result, nil
}

func analyze(a Analyzer, batch models.MarketBatch) (summary models.StatisticsSummary, err error) {
	if perr := middleware.Recover(func() { summary = a.Analyze(batch) }); perr != nil {
		return models.StatisticsSummary{}, fmt.Errorf("analyze: %w", perr)
	}
	return summary, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
