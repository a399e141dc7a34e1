package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_tracker/models"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedEngine() *Engine {
	return NewEngineWithClock(func() time.Time { return fixedNow })
}

func record(price, cap float64) models.MarketRecord {
	return models.MarketRecord{
		Name:         "coin",
		Symbol:       "c",
		CurrentPrice: models.Float(price),
		MarketCap:    models.Float(cap),
	}
}

func TestAnalyze_TwoRecords(t *testing.T) {
	batch := models.MarketBatch{record(50000, 1e9), record(2000, 5e8)}

	s := fixedEngine().Analyze(batch)

	require.Equal(t, models.StatusOK, s.Status)
	require.NotNil(t, s.PriceStatistics)
	require.NotNil(t, s.MarketCapInsights)
	assert.Equal(t, 26000.0, s.PriceStatistics.Mean)
	assert.Equal(t, 26000.0, s.PriceStatistics.Median)
	assert.Equal(t, 2000.0, s.PriceStatistics.Min)
	assert.Equal(t, 50000.0, s.PriceStatistics.Max)
	assert.Equal(t, 2, s.PriceStatistics.Count)
	// sample std dev of {50000, 2000} = 48000/sqrt(2)
	assert.InDelta(t, 48000/math.Sqrt2, s.PriceStatistics.StdDev, 1e-6)
	assert.Equal(t, 1.5e9, s.MarketCapInsights.Total)
	assert.Equal(t, 7.5e8, s.MarketCapInsights.Mean)
	assert.Equal(t, 7.5e8, s.MarketCapInsights.Median)
	assert.Equal(t, fixedNow, s.Timestamp)
}

func TestAnalyze_Idempotent(t *testing.T) {
	batch := models.MarketBatch{record(3, 30), record(1, 10), record(2, 20)}
	e := fixedEngine()

	first := e.Analyze(batch)
	second := e.Analyze(batch)

	assert.Equal(t, first, second)
	assert.Equal(t, 3.0, *batch[0].CurrentPrice, "input is not reordered")
}

func TestAnalyze_EmptyBatch(t *testing.T) {
	for _, batch := range []models.MarketBatch{nil, {}} {
		s := fixedEngine().Analyze(batch)

		assert.True(t, s.NoData())
		assert.Nil(t, s.PriceStatistics)
		assert.Nil(t, s.MarketCapInsights)
		assert.NotEmpty(t, s.Error)
		assert.Equal(t, fixedNow, s.Timestamp)
	}
}

func TestAnalyze_MissingMarketCap(t *testing.T) {
	batch := models.MarketBatch{
		record(100, 1000),
		{Name: "NoCap", CurrentPrice: models.Float(50)},
	}

	s := fixedEngine().Analyze(batch)

	require.NotNil(t, s.MarketCapInsights)
	assert.Equal(t, 1000.0, s.MarketCapInsights.Total)
	assert.Equal(t, 500.0, s.MarketCapInsights.Mean)
	assert.Equal(t, 500.0, s.MarketCapInsights.Median)
}

func TestAnalyze_MissingPriceIsSkipped(t *testing.T) {
	batch := models.MarketBatch{
		record(10, 1),
		{Name: "NoPrice", MarketCap: models.Float(5)},
		record(30, 1),
	}

	s := fixedEngine().Analyze(batch)

	assert.Equal(t, 2, s.PriceStatistics.Count)
	assert.Equal(t, 20.0, s.PriceStatistics.Mean)
	assert.Equal(t, 7.0, s.MarketCapInsights.Total)
}

func TestAnalyze_NoPricesAtAll(t *testing.T) {
	batch := models.MarketBatch{{Name: "a"}, {Name: "b"}}

	s := fixedEngine().Analyze(batch)

	assert.Equal(t, models.StatusOK, s.Status)
	require.NotNil(t, s.PriceStatistics)
	assert.Zero(t, s.PriceStatistics.Count)
	assert.Zero(t, s.PriceStatistics.Mean)
	assert.Zero(t, s.MarketCapInsights.Total)
}

func TestAnalyze_SingleRecord(t *testing.T) {
	s := fixedEngine().Analyze(models.MarketBatch{record(42, 7)})

	assert.Equal(t, 42.0, s.PriceStatistics.Median)
	assert.Zero(t, s.PriceStatistics.StdDev)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{5}, 5},
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Median(tt.in), "Median(%v)", tt.in)
	}
}

func TestSampleStdDev(t *testing.T) {
	assert.Zero(t, SampleStdDev(nil))
	assert.Zero(t, SampleStdDev([]float64{9}))
	// {2,4,4,4,5,5,7,9}: sum of squared deviations 32, n-1 = 7
	assert.InDelta(t, math.Sqrt(32.0/7.0), SampleStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}
