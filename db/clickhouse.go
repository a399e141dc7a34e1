package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"crypto_tracker/middleware"
	"crypto_tracker/models"
	"crypto_tracker/sink"
	"crypto_tracker/utils"
)

const SinkName = "clickhouse"

// authFailedCode is ClickHouse's AUTHENTICATION_FAILED exception code.
const authFailedCode = 516

const createTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
    persisted_at DateTime,
    market_cap_rank Int32,
    id String,
    symbol String,
    name String,
    current_price Float64,
    market_cap Float64,
    total_volume Float64,
    price_change_percentage_24h Float64
) ENGINE = MergeTree()
ORDER BY market_cap_rank
`

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Config struct {
	Addr     string
	Database string
	User     string
	Password string
	Table    string
	Timeout  time.Duration
}

// ClickHouseSink keeps a table holding only the most recent batch. Like the
// spreadsheet it is truncated and refilled each cycle.
type ClickHouseSink struct {
	conn    driver.Conn
	table   string
	timeout time.Duration
	breaker *middleware.Breaker
	now     func() time.Time
}

func NewClickHouseSink(ctx context.Context, cfg Config, breaker *middleware.Breaker) (*ClickHouseSink, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:    clickhouse.Native,
		DialTimeout: 5 * time.Second,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	s := &ClickHouseSink{
		conn:    conn,
		table:   cfg.Table,
		timeout: cfg.Timeout,
		breaker: breaker,
		now:     time.Now,
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if err := conn.Exec(ctx, fmt.Sprintf(createTableSQL, s.table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	return s, nil
}

func (s *ClickHouseSink) Name() string { return SinkName }

// Persist implements sink.Persister.
func (s *ClickHouseSink) Persist(ctx context.Context, result models.RefreshCycleResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows := Rows(result.Batch, s.now())
	err := s.breaker.Execute(func() error {
		if err := s.conn.Exec(ctx, "TRUNCATE TABLE "+s.table); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		return s.insert(ctx, rows)
	})
	if err != nil {
		return sink.NewPersistError(SinkName, classify(err), err)
	}

	utils.Logger.Debugw("ClickHouse mirror updated", "table", s.table, "rows", len(rows))
	return nil
}

func (s *ClickHouseSink) insert(ctx context.Context, rows []models.SnapshotRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return batch.Send()
}

// Ping reports whether the server is reachable; used as a health check.
func (s *ClickHouseSink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

// Rows flattens a batch into table rows stamped with persistedAt.
func Rows(batch models.MarketBatch, persistedAt time.Time) []models.SnapshotRow {
	rows := make([]models.SnapshotRow, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, models.NewSnapshotRow(r, persistedAt.UTC().Truncate(time.Second)))
	}
	return rows
}

func classify(err error) sink.ErrorKind {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) && ex.Code == authFailedCode {
		return sink.AuthError
	}
	return sink.TransportError
}
