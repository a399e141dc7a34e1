package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_tracker/analysis"
	"crypto_tracker/cache"
	"crypto_tracker/coingecko"
	"crypto_tracker/models"
)

type fetchFunc func(ctx context.Context) (models.MarketBatch, error)

func (f fetchFunc) Fetch(ctx context.Context) (models.MarketBatch, error) { return f(ctx) }

type latestFunc func(ctx context.Context) (*models.RefreshCycleResult, error)

func (f latestFunc) Latest(ctx context.Context) (*models.RefreshCycleResult, error) { return f(ctx) }

func get(t *testing.T, h http.Handler, path string) (int, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestCryptoData_Success(t *testing.T) {
	h := NewHandler(Deps{
		Fetcher: fetchFunc(func(context.Context) (models.MarketBatch, error) {
			return models.MarketBatch{
				{Name: "Bitcoin", CurrentPrice: models.Float(50000), MarketCap: models.Float(1e9)},
				{Name: "Ethereum", CurrentPrice: models.Float(2000), MarketCap: models.Float(5e8)},
			}, nil
		}),
		Analyzer: analysis.NewEngine(),
	})

	code, body := get(t, h, "/crypto-data")

	assert.Equal(t, http.StatusOK, code)
	var data []models.MarketRecord
	require.NoError(t, json.Unmarshal(body["data"], &data))
	assert.Len(t, data, 2)

	var summary models.StatisticsSummary
	require.NoError(t, json.Unmarshal(body["analysis"], &summary))
	require.NotNil(t, summary.PriceStatistics)
	assert.Equal(t, 26000.0, summary.PriceStatistics.Mean)
	assert.Equal(t, 1.5e9, summary.MarketCapInsights.Total)

	var ts float64
	require.NoError(t, json.Unmarshal(body["timestamp"], &ts))
	assert.InDelta(t, float64(time.Now().Unix()), ts, 60)
}

func TestCryptoData_FetchError(t *testing.T) {
	h := NewHandler(Deps{
		Fetcher: fetchFunc(func(context.Context) (models.MarketBatch, error) {
			return models.MarketBatch{}, &coingecko.FetchError{Kind: coingecko.UpstreamError, StatusCode: 503, Err: errors.New("Service Unavailable")}
		}),
		Analyzer: analysis.NewEngine(),
	})

	code, body := get(t, h, "/crypto-data")

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.JSONEq(t, `"Failed to fetch crypto data"`, string(body["error"]))
	assert.Contains(t, string(body["details"]), "503")
}

func TestCryptoData_EmptyBatch(t *testing.T) {
	h := NewHandler(Deps{
		Fetcher: fetchFunc(func(context.Context) (models.MarketBatch, error) {
			return models.MarketBatch{}, nil
		}),
		Analyzer: analysis.NewEngine(),
	})

	code, body := get(t, h, "/crypto-data")

	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body["data"]))
	var summary models.StatisticsSummary
	require.NoError(t, json.Unmarshal(body["analysis"], &summary))
	assert.True(t, summary.NoData())
}

func TestLatest(t *testing.T) {
	cached := &models.RefreshCycleResult{
		Batch:     models.MarketBatch{{ID: "bitcoin"}},
		Summary:   models.StatisticsSummary{Status: models.StatusOK},
		FetchedAt: time.Unix(1700000000, 0),
	}

	tests := []struct {
		name   string
		latest LatestSource
		want   int
	}{
		{"disabled", nil, http.StatusNotFound},
		{"empty cache", latestFunc(func(context.Context) (*models.RefreshCycleResult, error) {
			return nil, cache.ErrNoSnapshot
		}), http.StatusNotFound},
		{"redis down", latestFunc(func(context.Context) (*models.RefreshCycleResult, error) {
			return nil, errors.New("connection refused")
		}), http.StatusInternalServerError},
		{"cached", latestFunc(func(context.Context) (*models.RefreshCycleResult, error) {
			return cached, nil
		}), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Deps{Latest: tt.latest})
			code, body := get(t, h, "/crypto-data/latest")
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `1700000000`, string(body["timestamp"]))
			}
		})
	}
}

func TestIndexAndNotFound(t *testing.T) {
	h := NewHandler(Deps{SpreadsheetID: "abc"})

	code, body := get(t, h, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"https://docs.google.com/spreadsheets/d/abc/edit?gid=0"`, string(body["spreadsheet_url"]))

	code, body = get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `"Resource Not Found"`, string(body["error"]))
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(Deps{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
