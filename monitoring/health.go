package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"crypto_tracker/metrics"
	"crypto_tracker/scheduler"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusHalted   = "halted"

	checkTimeout = 2 * time.Second
)

type HealthStatus struct {
	Status              string            `json:"status"`
	Uptime              string            `json:"uptime"`
	StartTime           time.Time         `json:"start_time"`
	MemoryUsage         uint64            `json:"memory_usage"`
	GoroutineCount      int               `json:"goroutine_count"`
	SchedulerState      string            `json:"scheduler_state"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastSuccess         *time.Time        `json:"last_success,omitempty"`
	ComponentStatus     map[string]string `json:"component_status"`
}

// SchedulerStatus is the read side of the refresh scheduler.
type SchedulerStatus interface {
	State() scheduler.State
	ConsecutiveFailures() int
}

type Health struct {
	scheduler SchedulerStatus
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]func(context.Context) error
}

func NewHealth(s SchedulerStatus) *Health {
	return &Health{
		scheduler: s,
		startTime: time.Now(),
		checks:    make(map[string]func(context.Context) error),
	}
}

// RegisterCheck adds a component probe; a non-nil error marks it unhealthy.
func (h *Health) RegisterCheck(name string, check func(context.Context) error) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

func (h *Health) Report(ctx context.Context) HealthStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := HealthStatus{
		Status:          StatusOK,
		Uptime:          time.Since(h.startTime).Round(time.Second).String(),
		StartTime:       h.startTime,
		MemoryUsage:     m.Alloc,
		GoroutineCount:  runtime.NumGoroutine(),
		ComponentStatus: make(map[string]string),
	}
	if last, _ := metrics.GetStats(); !last.IsZero() {
		status.LastSuccess = &last
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()
		if err != nil {
			status.ComponentStatus[name] = "unhealthy"
			status.Status = StatusDegraded
		} else {
			status.ComponentStatus[name] = "healthy"
		}
	}

	if h.scheduler != nil {
		st := h.scheduler.State()
		status.SchedulerState = st.String()
		status.ConsecutiveFailures = h.scheduler.ConsecutiveFailures()
		if st == scheduler.Halted {
			status.Status = StatusHalted
		}
	}
	return status
}

// ServeHTTP answers 503 once the scheduler has halted, 200 otherwise.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Report(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusHalted {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
