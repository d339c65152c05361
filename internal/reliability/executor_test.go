package reliability_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/infrastructure/backend"
	"github.com/pylon-apis/pylon/internal/reliability"
)

type scriptedCaller struct {
	errs  []error
	calls int
}

func (s *scriptedCaller) Call(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &entities.CallResult{Kind: entities.OutputJSON, ContentType: "application/json", BackendStatus: 200}, nil
}

func fastRetries(t *testing.T) {
	t.Helper()
	saved := reliability.RetryDelays
	reliability.RetryDelays = []time.Duration{0, 0, 0, 0}
	t.Cleanup(func() { reliability.RetryDelays = saved })
}

func fastBreaker(t *testing.T) {
	t.Helper()
	saved := reliability.HalfOpenWait
	reliability.HalfOpenWait = 20 * time.Millisecond
	t.Cleanup(func() { reliability.HalfOpenWait = saved })
}

func testCap(id string) *entities.Capability {
	return &entities.Capability{ID: id, Name: id, Source: entities.SourceNative}
}

func TestDoSuccess(t *testing.T) {
	fastRetries(t)
	caller := &scriptedCaller{}
	exec := reliability.NewExecutor(caller)

	result, err := exec.Do(context.Background(), testCap("screenshot"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, 1, caller.calls)
}

func TestDoRetriesTransientFailures(t *testing.T) {
	fastRetries(t)
	caller := &scriptedCaller{errs: []error{
		errors.New("connection refused"),
		&backend.StatusError{Status: http.StatusBadGateway},
		nil,
	}}
	exec := reliability.NewExecutor(caller)

	result, err := exec.Do(context.Background(), testCap("screenshot"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, 3, caller.calls)
}

func TestDoNeverRetries4xx(t *testing.T) {
	fastRetries(t)
	caller := &scriptedCaller{errs: []error{
		&backend.StatusError{Status: http.StatusUnprocessableEntity},
	}}
	exec := reliability.NewExecutor(caller)

	_, err := exec.Do(context.Background(), testCap("screenshot"), nil)
	require.Error(t, err)
	assert.Equal(t, 1, caller.calls)

	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeBackendError, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestDoExhaustsRetrySchedule(t *testing.T) {
	fastRetries(t)
	caller := &scriptedCaller{errs: []error{
		errors.New("refused"), errors.New("refused"), errors.New("refused"), errors.New("refused"),
	}}
	exec := reliability.NewExecutor(caller)

	_, err := exec.Do(context.Background(), testCap("screenshot"), nil)
	require.Error(t, err)
	assert.Equal(t, len(reliability.RetryDelays), caller.calls)

	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeBackendUnavailable, appErr.Code)
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	fastRetries(t)
	var errs []error
	for i := 0; i < 100; i++ {
		errs = append(errs, &backend.StatusError{Status: http.StatusNotFound})
	}
	caller := &scriptedCaller{errs: errs}
	exec := reliability.NewExecutor(caller)
	cap := testCap("flaky")

	// 4xx errors fail without retrying, so each Do is exactly one call.
	for i := 0; i < 5; i++ {
		_, err := exec.Do(context.Background(), cap, nil)
		require.Error(t, err)
	}
	callsBefore := caller.calls
	assert.Equal(t, 5, callsBefore)

	_, err := exec.Do(context.Background(), cap, nil)
	require.Error(t, err)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeCircuitOpen, appErr.Code)
	assert.Equal(t, callsBefore, caller.calls, "open breaker must not contact the backend")

	status, ok := exec.StatusFor("flaky")
	require.True(t, ok)
	assert.Equal(t, "open", status.State)
	assert.Equal(t, int64(6), status.Calls)
	assert.Equal(t, int64(6), status.Failures)
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	fastRetries(t)
	fastBreaker(t)
	var errs []error
	for i := 0; i < 5; i++ {
		errs = append(errs, &backend.StatusError{Status: http.StatusNotFound})
	}
	caller := &scriptedCaller{errs: errs}
	exec := reliability.NewExecutor(caller)
	cap := testCap("recovering")

	for i := 0; i < 5; i++ {
		_, err := exec.Do(context.Background(), cap, nil)
		require.Error(t, err)
	}
	_, err := exec.Do(context.Background(), cap, nil)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, domainerrors.CodeCircuitOpen, appErr.Code)

	time.Sleep(3 * reliability.HalfOpenWait)

	// The half-open probe reaches the backend; its success closes the circuit.
	result, err := exec.Do(context.Background(), cap, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, result.BackendStatus)
	assert.Equal(t, 6, caller.calls)

	status, ok := exec.StatusFor("recovering")
	require.True(t, ok)
	assert.Equal(t, "closed", status.State)

	_, err = exec.Do(context.Background(), cap, nil)
	require.NoError(t, err)
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	fastRetries(t)
	fastBreaker(t)
	var errs []error
	for i := 0; i < 6; i++ {
		errs = append(errs, &backend.StatusError{Status: http.StatusNotFound})
	}
	caller := &scriptedCaller{errs: errs}
	exec := reliability.NewExecutor(caller)
	cap := testCap("still-broken")

	for i := 0; i < 5; i++ {
		_, err := exec.Do(context.Background(), cap, nil)
		require.Error(t, err)
	}

	time.Sleep(3 * reliability.HalfOpenWait)

	// The probe fails, so the circuit re-opens without further traffic.
	_, err := exec.Do(context.Background(), cap, nil)
	require.Error(t, err)
	assert.Equal(t, 6, caller.calls)

	_, err = exec.Do(context.Background(), cap, nil)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeCircuitOpen, appErr.Code)
	assert.Equal(t, 6, caller.calls, "re-opened breaker must not contact the backend")
}

func TestBreakersAreIndependent(t *testing.T) {
	fastRetries(t)
	caller := &scriptedCaller{errs: []error{
		&backend.StatusError{Status: http.StatusNotFound},
		&backend.StatusError{Status: http.StatusNotFound},
		&backend.StatusError{Status: http.StatusNotFound},
		&backend.StatusError{Status: http.StatusNotFound},
		&backend.StatusError{Status: http.StatusNotFound},
	}}
	exec := reliability.NewExecutor(caller)

	for i := 0; i < 5; i++ {
		_, err := exec.Do(context.Background(), testCap("flaky"), nil)
		require.Error(t, err)
	}

	// The healthy capability still dispatches.
	result, err := exec.Do(context.Background(), testCap("healthy"), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, result.BackendStatus)

	rows := exec.Status()
	require.Len(t, rows, 2)
	assert.Equal(t, "flaky", rows[0].CapabilityID)
	assert.Equal(t, "healthy", rows[1].CapabilityID)
}
