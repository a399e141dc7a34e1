// Package sheets mirrors the latest market batch into a Google spreadsheet.
//
// The mirror is best-effort: the destination range is cleared and then
// rewritten, so a failure between the two calls leaves it empty until the
// next successful cycle.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto_tracker/middleware"
	"crypto_tracker/models"
	"crypto_tracker/sink"
	"crypto_tracker/utils"
)

const (
	SinkName = "sheets"

	// NullMarker fills cells whose source value is absent.
	NullMarker = "NULL"

	timestampLayout = "2006-01-02 15:04:05"
	lastColumn      = "H"
)

// Columns is the fixed header row.
var Columns = []string{
	"name",
	"symbol",
	"current_price",
	"market_cap",
	"total_volume",
	"price_change_percentage_24h",
	"market_cap_rank",
	"timestamp",
}

// ValuesService is the part of the Sheets values API the sink needs.
type ValuesService interface {
	Clear(ctx context.Context, spreadsheetID, rng string) error
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
}

type Config struct {
	SpreadsheetID string
	SheetName     string
	MaxRows       int // data rows, excluding the header
	Timeout       time.Duration
}

type Sink struct {
	cfg     Config
	values  ValuesService
	breaker *middleware.Breaker
	now     func() time.Time
}

type Option func(*Sink)

// WithClock sets the source of the persisted timestamp column.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

func WithBreaker(b *middleware.Breaker) Option {
	return func(s *Sink) { s.breaker = b }
}

func NewSink(cfg Config, values ValuesService, opts ...Option) *Sink {
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Sink{cfg: cfg, values: values, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Name() string { return SinkName }

// URL is the browser link for the destination spreadsheet.
func (s *Sink) URL() string {
	return SpreadsheetURL(s.cfg.SpreadsheetID)
}

func SpreadsheetURL(id string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit?gid=0", id)
}

// Persist implements sink.Persister by writing result.Batch.
func (s *Sink) Persist(ctx context.Context, result models.RefreshCycleResult) error {
	return s.Write(ctx, result.Batch)
}

// Write replaces the destination range with a header row plus one row per
// record. Errors are always *sink.PersistError.
func (s *Sink) Write(ctx context.Context, batch models.MarketBatch) error {
	if len(batch) > s.cfg.MaxRows {
		return sink.NewPersistError(SinkName, sink.RangeOverflowError,
			fmt.Errorf("%d rows exceed configured range of %d", len(batch), s.cfg.MaxRows))
	}

	rows := Rows(batch, s.now())
	clearRange := s.rangeFor(s.cfg.MaxRows + 1)
	writeRange := s.rangeFor(len(rows))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	utils.Logger.Infow("Updating sheet",
		"spreadsheet_id", s.cfg.SpreadsheetID,
		"range", writeRange,
		"rows", len(rows),
	)

	if err := s.breaker.Execute(func() error { return s.values.Clear(ctx, s.cfg.SpreadsheetID, clearRange) }); err != nil {
		return sink.NewPersistError(SinkName, classify(err), fmt.Errorf("clear %s: %w", clearRange, err))
	}
	if err := s.breaker.Execute(func() error { return s.values.Update(ctx, s.cfg.SpreadsheetID, writeRange, rows) }); err != nil {
		return sink.NewPersistError(SinkName, classify(err), fmt.Errorf("update %s: %w", writeRange, err))
	}

	utils.Logger.Infow("Sheet update successful", "rows", len(rows))
	return nil
}

func (s *Sink) rangeFor(rows int) string {
	return fmt.Sprintf("%s!A1:%s%d", s.cfg.SheetName, lastColumn, rows)
}

// Rows builds the header plus data rows; persistedAt fills the timestamp column.
func Rows(batch models.MarketBatch, persistedAt time.Time) [][]interface{} {
	ts := persistedAt.Format(timestampLayout)

	rows := make([][]interface{}, 0, len(batch)+1)
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	rows = append(rows, header)

	for _, r := range batch {
		rows = append(rows, []interface{}{
			textOrNull(r.Name),
			textOrNull(r.Symbol),
			floatOrNull(r.CurrentPrice),
			floatOrNull(r.MarketCap),
			floatOrNull(r.TotalVolume),
			floatOrNull(r.PriceChangePercentage24h),
			intOrNull(r.MarketCapRank),
			ts,
		})
	}
	return rows
}

func textOrNull(s string) interface{} {
	if s == "" {
		return NullMarker
	}
	return s
}

func floatOrNull(f *float64) interface{} {
	if f == nil {
		return NullMarker
	}
	return *f
}

func intOrNull(i *int) interface{} {
	if i == nil {
		return NullMarker
	}
	return *i
}

// errAuth marks credential failures raised by a ValuesService.
var errAuth = errors.New("sheets: not authorized")

func classify(err error) sink.ErrorKind {
	if errors.Is(err, errAuth) || isAuthError(err) {
		return sink.AuthError
	}
	return sink.TransportError
}
