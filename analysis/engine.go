// Package analysis computes aggregate statistics over a market batch.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"crypto_tracker/models"
)

// Engine is stateless apart from its clock; Analyze is deterministic for a
// fixed clock.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock is used where the summary timestamp must be reproducible.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Analyze never fails. An empty batch yields a NoData summary; missing
// fields are defaulted per record before aggregation.
func (e *Engine) Analyze(batch models.MarketBatch) models.StatisticsSummary {
	ts := e.now()
	if len(batch) == 0 {
		return models.StatisticsSummary{
			Status:    models.StatusNoData,
			Error:     "No data available for analysis",
			Timestamp: ts,
		}
	}

	prices := make([]float64, 0, len(batch))
	caps := make([]float64, 0, len(batch))
	for _, rec := range batch {
		n := rec.Normalized()
		if n.CurrentPrice != nil && isFinite(*n.CurrentPrice) {
			prices = append(prices, *n.CurrentPrice)
		}
		c := *n.MarketCap
		if !isFinite(c) {
			c = 0
		}
		caps = append(caps, c)
	}

	return models.StatisticsSummary{
		Status:            models.StatusOK,
		PriceStatistics:   priceStatistics(prices),
		MarketCapInsights: marketCapInsights(caps),
		Timestamp:         ts,
	}
}

// priceStatistics returns zeroed fields with Count 0 when no prices are available.
func priceStatistics(prices []float64) *models.PriceStatistics {
	ps := &models.PriceStatistics{Count: len(prices)}
	if len(prices) == 0 {
		return ps
	}
	sorted := sortedCopy(prices)
	ps.Mean = Mean(prices)
	ps.Median = medianSorted(sorted)
	ps.StdDev = SampleStdDev(prices)
	ps.Min = sorted[0]
	ps.Max = sorted[len(sorted)-1]
	return ps
}

// Sums run in decimal so the total of many large caps does not drift.
func marketCapInsights(caps []float64) *models.MarketCapInsights {
	total := decimal.Zero
	for _, c := range caps {
		total = total.Add(decimal.NewFromFloat(c))
	}
	mean := total.Div(decimal.NewFromInt(int64(len(caps))))

	return &models.MarketCapInsights{
		Total:  total.InexactFloat64(),
		Mean:   mean.InexactFloat64(),
		Median: Median(caps),
	}
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median averages the two middle values for even-length input. Returns 0 for
// an empty slice.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return medianSorted(sortedCopy(xs))
}

// SampleStdDev uses the N-1 divisor and is defined as 0 for fewer than two values.
func SampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
