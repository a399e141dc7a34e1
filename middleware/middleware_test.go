package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	err := Recover(func() { panic("divide by zero") })

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "divide by zero", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	assert.NoError(t, Recover(func() {}))
}

func TestRecoverHandler(t *testing.T) {
	h := RecoverHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Contains(t, body["message"], "handler exploded")
}

func TestRecoverHandler_RepanicsAbort(t *testing.T) {
	h := RecoverHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Empty(t, rec.Body.String())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b := NewBreaker("test", BreakerSettings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		TripRatio:   0.5,
		MinRequests: 2,
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsOpen(err))
}

func TestBreaker_NilPassesThrough(t *testing.T) {
	var b *Breaker
	called := false
	assert.NoError(t, b.Execute(func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, "disabled", b.State())
}
