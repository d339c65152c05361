// Package reliability wraps backend calls with a retry schedule and a
// per-capability circuit breaker, and keeps the counters behind /status.
package reliability

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/infrastructure/backend"
	"github.com/pylon-apis/pylon/pkg/logger"

	"go.uber.org/zap"
)

// RetryDelays is the attempt schedule. The first attempt is immediate; a
// fourth failure is final.
var RetryDelays = []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, 4500 * time.Millisecond}

// HalfOpenWait is how long an open breaker stays closed to traffic before
// admitting a single probe call.
var HalfOpenWait = 30 * time.Second

// Breaker tuning per capability.
const (
	breakerWindow       = 5 * time.Minute
	breakerMinVolume    = 5
	breakerFailureRatio = 0.5
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pylon_backend_calls_total",
		Help: "Backend calls by capability and outcome.",
	}, []string{"capability", "outcome"})

	callLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pylon_backend_call_seconds",
		Help:    "Backend call latency by capability.",
		Buckets: prometheus.DefBuckets,
	}, []string{"capability"})
)

// BackendCaller is the single-attempt invocation the executor wraps.
type BackendCaller interface {
	Call(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error)
}

type capStats struct {
	calls     int64
	successes int64
	failures  int64
	latencyMs int64
}

// CapabilityStatus is one row of the /status overlay.
type CapabilityStatus struct {
	CapabilityID string  `json:"capability"`
	State        string  `json:"circuitState"`
	Calls        int64   `json:"calls"`
	Successes    int64   `json:"successes"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// Executor routes every backend call through retries and a per-capability
// circuit breaker.
type Executor struct {
	caller BackendCaller

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	stats    map[string]*capStats
}

// NewExecutor creates an executor over the given caller.
func NewExecutor(caller BackendCaller) *Executor {
	return &Executor{
		caller:   caller,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		stats:    make(map[string]*capStats),
	}
}

func (e *Executor) breakerFor(id string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[id]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: 1, // one half-open probe
		Interval:    breakerWindow,
		Timeout:     HalfOpenWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinVolume {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit state change",
				zap.String("capability", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	e.breakers[id] = cb
	return cb
}

func (e *Executor) statsFor(id string) *capStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[id]
	if !ok {
		s = &capStats{}
		e.stats[id] = s
	}
	return s
}

// Do executes the call with retries inside the capability's breaker. An open
// breaker short-circuits before the backend is contacted.
func (e *Executor) Do(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error) {
	cb := e.breakerFor(cap.ID)
	stats := e.statsFor(cap.ID)

	start := time.Now()
	out, err := cb.Execute(func() (any, error) {
		return e.callWithRetries(ctx, cap, params)
	})
	elapsed := time.Since(start)

	e.mu.Lock()
	stats.calls++
	stats.latencyMs += elapsed.Milliseconds()
	if err == nil {
		stats.successes++
	} else {
		stats.failures++
	}
	e.mu.Unlock()
	callLatency.WithLabelValues(cap.ID).Observe(elapsed.Seconds())

	if err != nil {
		callsTotal.WithLabelValues(cap.ID, "failure").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domainerrors.CircuitOpen(cap.ID)
		}
		return nil, classify(cap.ID, err)
	}

	callsTotal.WithLabelValues(cap.ID, "success").Inc()
	return out.(*entities.CallResult), nil
}

func (e *Executor) callWithRetries(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error) {
	var lastErr error
	for attempt, delay := range RetryDelays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := e.caller.Call(ctx, cap, params)
		if err == nil {
			result.Retries = attempt
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		logger.Warn(ctx, "backend attempt failed",
			zap.String("capability", cap.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

// retryable reports whether the error is a transport failure or a 5xx. 4xx
// responses are never retried.
func retryable(err error) bool {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500
	}
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		// backend_payment_required and friends are misconfigurations, not
		// transient faults.
		return false
	}
	return true
}

func classify(capabilityID string, err error) *domainerrors.AppError {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return domainerrors.BadGateway(domainerrors.CodeBackendError,
			"backend returned status "+http.StatusText(statusErr.Status)).
			WithDetail(map[string]any{"capability": capabilityID, "backendStatus": statusErr.Status})
	}
	if errors.Is(err, domainerrors.ErrBackendTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return domainerrors.GatewayTimeout(domainerrors.CodeBackendError, "backend timed out")
	}
	return domainerrors.BadGateway(domainerrors.CodeBackendUnavailable, "backend unreachable")
}

// StatusFor returns the reliability row for one capability.
func (e *Executor) StatusFor(id string) (CapabilityStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[id]
	if !ok {
		return CapabilityStatus{}, false
	}
	return e.statusLocked(id, s), true
}

// Status returns reliability rows for every capability seen so far, sorted
// by capability id.
func (e *Executor) Status() []CapabilityStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CapabilityStatus, 0, len(e.stats))
	for id, s := range e.stats {
		out = append(out, e.statusLocked(id, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapabilityID < out[j].CapabilityID })
	return out
}

func (e *Executor) statusLocked(id string, s *capStats) CapabilityStatus {
	state := "closed"
	if cb, ok := e.breakers[id]; ok {
		switch cb.State() {
		case gobreaker.StateOpen:
			state = "open"
		case gobreaker.StateHalfOpen:
			state = "half-open"
		}
	}
	avg := 0.0
	if s.calls > 0 {
		avg = float64(s.latencyMs) / float64(s.calls)
	}
	return CapabilityStatus{
		CapabilityID: id,
		State:        state,
		Calls:        s.calls,
		Successes:    s.successes,
		Failures:     s.failures,
		AvgLatencyMs: avg,
	}
}
