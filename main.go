package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto_tracker/analysis"
	"crypto_tracker/cache"
	"crypto_tracker/coingecko"
	"crypto_tracker/config"
	"crypto_tracker/db"
	"crypto_tracker/middleware"
	"crypto_tracker/monitoring"
	"crypto_tracker/scheduler"
	"crypto_tracker/server"
	"crypto_tracker/sheets"
	"crypto_tracker/sink"
	"crypto_tracker/utils"
	"crypto_tracker/ws"
)

func main() {
	sheetsOnly := flag.Bool("sheets-only", false, "mirror market data to the spreadsheet without serving HTTP or live updates")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := utils.InitLogger(cfg.App.LogLevel, cfg.App.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer utils.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *sheetsOnly); err != nil {
		utils.Error(err, "Application stopped")
		utils.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, sheetsOnly bool) error {
	fetcher := coingecko.NewClient(
		coingecko.WithBaseURL(cfg.Market.BaseURL),
		coingecko.WithAPIKey(cfg.Market.APIKey),
		coingecko.WithCurrency(cfg.Market.Currency),
		coingecko.WithPageSize(cfg.Market.PageSize),
		coingecko.WithTimeout(cfg.Market.Timeout),
	)
	engine := analysis.NewEngine()

	persisters, closers, health := buildPersisters(ctx, cfg)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	schedCfg := scheduler.Config{
		Interval:     cfg.Scheduler.Interval,
		ErrorBackoff: cfg.Scheduler.ErrorBackoff,
		MaxFailures:  cfg.Scheduler.MaxFailures,
	}
	if cfg.Scheduler.BackoffStrategy == config.BackoffExponential {
		schedCfg.Backoff = utils.NewExponentialBackoff(cfg.Scheduler.ErrorBackoff, cfg.Scheduler.MaxBackoff)
	}

	if sheetsOnly {
		only := spreadsheetPersisters(persisters)
		if len(only) == 0 {
			return errors.New("sheets-only mode needs a working spreadsheet sink")
		}
		sched := scheduler.New(schedCfg, fetcher, engine, scheduler.WithPersisters(only...))
		return ignoreCanceled(sched.Run(ctx))
	}

	hub := ws.NewHub(ws.Config{
		QueueSize:    cfg.Broadcast.QueueSize,
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		PingInterval: cfg.Broadcast.PingInterval,
	})
	defer hub.Close()

	sched := scheduler.New(schedCfg, fetcher, engine,
		scheduler.WithPublishers(hub),
		scheduler.WithPersisters(persisters...),
	)

	hc := monitoring.NewHealth(sched)
	for name, check := range health {
		hc.RegisterCheck(name, check)
	}
	monitoring.StartMetricsCollection(ctx, 5*time.Second)

	deps := server.Deps{
		Fetcher:  fetcher,
		Analyzer: engine,
		Live:     hub,
		Health:   hc,
	}
	if cfg.Sheets.Enabled {
		deps.SpreadsheetID = cfg.Sheets.SpreadsheetID
	}
	for _, p := range persisters {
		if r, ok := p.(*cache.RedisSink); ok {
			deps.Latest = r
		}
	}

	srv := server.NewServer(fmt.Sprintf(":%d", cfg.App.Port), server.NewHandler(deps))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// A halted scheduler stays halted; the HTTP surface keeps serving and
		// /health reports the halt so a supervisor can restart the process.
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			utils.Error(err, "Refresh scheduler exited")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Infow("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error(err, "HTTP server shutdown")
	}
	wg.Wait()
	return serveErr
}

// buildPersisters constructs the enabled mirror sinks. A sink that cannot be
// constructed is logged and skipped, never fatal.
func buildPersisters(ctx context.Context, cfg *config.Config) ([]sink.Persister, []func(), map[string]func(context.Context) error) {
	var (
		persisters []sink.Persister
		closers    []func()
		health     = map[string]func(context.Context) error{}
	)

	breakerSettings := middleware.BreakerSettings{
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		TripRatio:   cfg.Breaker.TripRatio,
	}

	if cfg.Sheets.Enabled {
		values, err := sheets.NewGoogleValues(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			utils.Error(err, "Failed to initialize Google Sheets service")
		} else {
			persisters = append(persisters, sheets.NewSink(sheets.Config{
				SpreadsheetID: cfg.Sheets.SpreadsheetID,
				SheetName:     cfg.Sheets.SheetName,
				MaxRows:       cfg.Sheets.MaxRows,
				Timeout:       cfg.Sheets.Timeout,
			}, values, sheets.WithBreaker(middleware.NewBreaker(sheets.SinkName, breakerSettings))))
		}
	}

	if cfg.ClickHouse.Enabled {
		ch, err := db.NewClickHouseSink(ctx, db.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
			Table:    cfg.ClickHouse.Table,
			Timeout:  cfg.ClickHouse.Timeout,
		}, middleware.NewBreaker(db.SinkName, breakerSettings))
		if err != nil {
			utils.Error(err, "Failed to initialize ClickHouse mirror")
		} else {
			persisters = append(persisters, ch)
			closers = append(closers, func() { ch.Close() })
			health[db.SinkName] = ch.Ping
		}
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r := cache.NewRedisSink(client, cfg.Redis.Key, cfg.Redis.TTL, cfg.Redis.Timeout,
			middleware.NewBreaker(cache.SinkName, breakerSettings))
		persisters = append(persisters, r)
		closers = append(closers, func() { client.Close() })
		health[cache.SinkName] = r.Ping
	}

	for _, p := range persisters {
		utils.Logger.Infow("Persistence sink enabled", "sink", p.Name())
	}
	return persisters, closers, health
}

// spreadsheetPersisters keeps only the spreadsheet mirror.
func spreadsheetPersisters(persisters []sink.Persister) []sink.Persister {
	var out []sink.Persister
	for _, p := range persisters {
		if _, ok := p.(*sheets.Sink); ok {
			out = append(out, p)
		}
	}
	return out
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
