package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_tracker/analysis"
	"crypto_tracker/coingecko"
	"crypto_tracker/models"
	"crypto_tracker/sink"
	"crypto_tracker/utils"
)

var errNetwork = &coingecko.FetchError{Kind: coingecko.NetworkError, Err: errors.New("connection refused")}

type step struct {
	batch models.MarketBatch
	err   error
}

func ok() step   { return step{batch: goodBatch()} }
func fail() step { return step{batch: models.MarketBatch{}, err: errNetwork} }

func goodBatch() models.MarketBatch {
	return models.MarketBatch{
		{Name: "Bitcoin", CurrentPrice: models.Float(50000), MarketCap: models.Float(1e9)},
		{Name: "Ethereum", CurrentPrice: models.Float(2000), MarketCap: models.Float(5e8)},
	}
}

// scriptedFetcher replays steps and cancels the run when they are used up.
type scriptedFetcher struct {
	steps  []step
	calls  int
	cancel context.CancelFunc
	log    *eventLog
}

func (f *scriptedFetcher) Fetch(ctx context.Context) (models.MarketBatch, error) {
	f.calls++
	if f.log != nil {
		f.log.add("fetch")
	}
	if f.calls > len(f.steps) {
		f.cancel()
		return models.MarketBatch{}, ctx.Err()
	}
	st := f.steps[f.calls-1]
	return st.batch, st.err
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

type recordingPersister struct {
	name string
	err  error
	log  *eventLog
}

func (p *recordingPersister) Name() string { return p.name }

func (p *recordingPersister) Persist(ctx context.Context, r models.RefreshCycleResult) error {
	p.log.add("persist:" + p.name)
	return p.err
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig() Config {
	return Config{Interval: 300 * time.Second, ErrorBackoff: 60 * time.Second, MaxFailures: 5}
}

func newTestScheduler(t *testing.T, steps []step, opts ...Option) (*Scheduler, *scriptedFetcher, *sleepRecorder, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &scriptedFetcher{steps: steps, cancel: cancel}
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleeper(rec.sleep)}, opts...)
	return New(testConfig(), f, analysis.NewEngine(), opts...), f, rec, ctx
}

func TestScheduler_HaltsAfterMaxConsecutiveFailures(t *testing.T) {
	s, f, rec, ctx := newTestScheduler(t, []step{fail(), fail(), fail(), fail(), fail(), ok()})

	err := s.Run(ctx)

	require.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, &coingecko.FetchError{Kind: coingecko.NetworkError})
	var halt *HaltError
	require.ErrorAs(t, err, &halt)
	assert.Equal(t, 5, halt.Failures)

	assert.Equal(t, 5, f.calls, "no fetch after halting")
	assert.Equal(t, Halted, s.State())
	assert.Equal(t, 5, s.ConsecutiveFailures())
	assert.Len(t, rec.sleeps, 4, "no backoff after the halting failure")
	for _, d := range rec.sleeps {
		assert.Equal(t, 60*time.Second, d)
	}
}

func TestScheduler_SuccessResetsBudget(t *testing.T) {
	steps := []step{fail(), fail(), fail(), ok(), fail(), fail(), fail(), fail()}
	s, f, rec, ctx := newTestScheduler(t, steps)

	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrHalted)
	assert.Equal(t, len(steps)+1, f.calls)
	assert.Equal(t, 4, s.ConsecutiveFailures())
	assert.NotEqual(t, Halted, s.State())

	want := []time.Duration{
		60 * time.Second, 60 * time.Second, 60 * time.Second,
		300 * time.Second,
		60 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	assert.Equal(t, want, rec.sleeps)
}

func TestScheduler_EmptyBatchCountsAsFailure(t *testing.T) {
	empty := step{batch: models.MarketBatch{}}
	s, _, _, ctx := newTestScheduler(t, []step{empty, empty, empty, empty, empty})

	err := s.Run(ctx)

	require.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestScheduler_PersistFailureIsIsolated(t *testing.T) {
	log := &eventLog{}
	var published []models.RefreshCycleResult
	pub := sink.PublisherFunc(func(ctx context.Context, r models.RefreshCycleResult) {
		log.add("publish")
		published = append(published, r)
	})
	broken := &recordingPersister{
		name: "sheets",
		err:  sink.NewPersistError("sheets", sink.AuthError, errors.New("401")),
		log:  log,
	}
	healthy := &recordingPersister{name: "redis", log: log}

	s, f, rec, ctx := newTestScheduler(t, []step{ok(), ok()},
		WithPublishers(pub), WithPersisters(broken, healthy))
	f.log = log

	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, published, 2)
	assert.Equal(t, 26000.0, published[0].Summary.PriceStatistics.Mean)
	assert.Equal(t, 0, s.ConsecutiveFailures())
	assert.Equal(t, []time.Duration{300 * time.Second, 300 * time.Second}, rec.sleeps,
		"a persist failure never triggers the error backoff")
	assert.Equal(t, []string{
		"fetch", "publish", "persist:sheets", "persist:redis",
		"fetch", "publish", "persist:sheets", "persist:redis",
		"fetch",
	}, log.events)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(models.MarketBatch) models.StatisticsSummary {
	panic("index out of range")
}

func TestScheduler_AnalyzerPanicCountsAsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &scriptedFetcher{steps: []step{ok(), ok()}, cancel: cancel}
	rec := &sleepRecorder{}
	cfg := testConfig()
	cfg.MaxFailures = 2

	var publishes int
	s := New(cfg, f, panickingAnalyzer{},
		WithSleeper(rec.sleep),
		WithPublishers(sink.PublisherFunc(func(context.Context, models.RefreshCycleResult) { publishes++ })),
	)

	err := s.Run(ctx)

	require.ErrorIs(t, err, ErrHalted)
	assert.Contains(t, err.Error(), "index out of range")
	assert.Zero(t, publishes)
	assert.Equal(t, []time.Duration{60 * time.Second}, rec.sleeps)
}

func TestScheduler_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &scriptedFetcher{steps: []step{ok()}, cancel: cancel}
	s := New(testConfig(), f, analysis.NewEngine(),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, Idle, s.State())
}

func TestScheduler_RealSleeperHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &scriptedFetcher{steps: []step{fail()}, cancel: cancel}
	cfg := testConfig()
	cfg.ErrorBackoff = time.Hour
	s := New(cfg, f, analysis.NewEngine())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.State() == Sleeping }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not observe cancellation while sleeping")
	}
}

func TestScheduler_ExponentialBackoff(t *testing.T) {
	b := utils.NewExponentialBackoff(time.Second, 4*time.Second)
	b.RandomizationFactor = 0
	cfg := testConfig()
	cfg.Backoff = b

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &scriptedFetcher{steps: []step{fail(), fail(), fail(), ok(), fail()}, cancel: cancel}
	rec := &sleepRecorder{}
	s := New(cfg, f, analysis.NewEngine(), WithSleeper(rec.sleep))

	require.ErrorIs(t, s.Run(ctx), context.Canceled)

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		300 * time.Second,
		time.Second,
	}, rec.sleeps, "success resets the backoff")
}

func TestCollect(t *testing.T) {
	engine := analysis.NewEngine()

	result, err := Collect(context.Background(), &scriptedFetcher{steps: []step{ok()}}, engine)
	require.NoError(t, err)
	assert.Len(t, result.Batch, 2)
	assert.False(t, result.FetchedAt.IsZero())

	result, err = Collect(context.Background(), &scriptedFetcher{steps: []step{{batch: models.MarketBatch{}}}}, engine)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.True(t, result.Summary.NoData())

	_, err = Collect(context.Background(), &scriptedFetcher{steps: []step{fail()}}, engine)
	assert.Equal(t, coingecko.NetworkError, coingecko.KindOf(err))
}

func TestFailureBudget(t *testing.T) {
	b := NewFailureBudget(3)
	assert.False(t, b.Fail())
	assert.False(t, b.Fail())
	assert.True(t, b.Fail())
	b.Reset()
	assert.Zero(t, b.Count())
	assert.False(t, b.Exhausted())

	unset := NewFailureBudget(0)
	assert.Equal(t, DefaultMaxFailures, unset.Max())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "halted", Halted.String())
	assert.Equal(t, "unknown", State(42).String())
}
