package usecases_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylon-apis/pylon/internal/config"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/infrastructure/facilitator"
	"github.com/pylon-apis/pylon/internal/infrastructure/replay"
	"github.com/pylon-apis/pylon/internal/usecases"
	"github.com/pylon-apis/pylon/pkg/redis"
)

type fakeFacilitator struct {
	verify    *facilitator.VerifyResponse
	verifyErr error
	settles   int
}

func (f *fakeFacilitator) Verify(ctx context.Context, header string, req facilitator.Requirement) (*facilitator.VerifyResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verify, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, header string, req facilitator.Requirement) (*facilitator.SettleResponse, error) {
	f.settles++
	return &facilitator.SettleResponse{Success: true, Transaction: "0xabc"}, nil
}

func (f *fakeFacilitator) BaseURL() string { return "https://facilitator.test" }

func newGate(t *testing.T, fac *fakeFacilitator, cfg config.PaymentConfig) *usecases.PaymentGate {
	t.Helper()
	mr := miniredis.RunT(t)
	redis.SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	if cfg.Network == "" {
		cfg.Network = "base"
	}
	if cfg.PayoutAddress == "" {
		cfg.PayoutAddress = "0x2222222222222222222222222222222222222222"
	}
	if cfg.ReplayTTL == 0 {
		cfg.ReplayTTL = 5 * time.Minute
	}
	return usecases.NewPaymentGate(fac, replay.NewStore(cfg.ReplayTTL), cfg)
}

func TestChargeNoHeaderReturns402Body(t *testing.T) {
	gate := newGate(t, &fakeFacilitator{}, config.PaymentConfig{})

	_, err := gate.Charge(context.Background(), "203.0.113.9", "", "https://gw.test/do", "screenshot", 10_000)
	require.Error(t, err)

	var payReq *usecases.PaymentRequired
	require.ErrorAs(t, err, &payReq)
	assert.Equal(t, facilitator.ProtocolVersion, payReq.Body.X402Version)
	require.Len(t, payReq.Body.Accepts, 1)
	req := payReq.Body.Accepts[0]
	assert.Equal(t, "exact", req.Scheme)
	assert.Equal(t, "10000", req.Amount)
	assert.Equal(t, "https://gw.test/do", req.Resource)
	assert.Equal(t, "https://facilitator.test", payReq.Body.FacilitatorURL)
	assert.Nil(t, payReq.Body.Error)
}

func TestChargeVerifiedPayment(t *testing.T) {
	fac := &fakeFacilitator{verify: &facilitator.VerifyResponse{IsValid: true, Payer: "0xpayer"}}
	gate := newGate(t, fac, config.PaymentConfig{})

	payment, err := gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	require.NoError(t, err)
	assert.False(t, payment.Bypassed)
	assert.NotEmpty(t, payment.ProofID)
	assert.Len(t, payment.ProofID, 32) // 16 bytes hex
}

func TestChargeReplayRejected(t *testing.T) {
	fac := &fakeFacilitator{verify: &facilitator.VerifyResponse{IsValid: true}}
	gate := newGate(t, fac, config.PaymentConfig{})

	_, err := gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	require.NoError(t, err)

	_, err = gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	require.Error(t, err)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodePaymentReplay, appErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, appErr.Status)
}

func TestChargeReplayWindowExpires(t *testing.T) {
	fac := &fakeFacilitator{verify: &facilitator.VerifyResponse{IsValid: true}}
	mr := miniredis.RunT(t)
	redis.SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	cfg := config.PaymentConfig{
		Network:       "base",
		PayoutAddress: "0x2222222222222222222222222222222222222222",
		ReplayTTL:     5 * time.Minute,
	}
	gate := usecases.NewPaymentGate(fac, replay.NewStore(cfg.ReplayTTL), cfg)

	_, err := gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	require.NoError(t, err)

	_, err = gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, domainerrors.CodePaymentReplay, appErr.Code)

	// Past the window the identifier has expired and the same proof verifies
	// like a fresh one.
	mr.FastForward(5*time.Minute + time.Second)

	_, err = gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	require.NoError(t, err)
}

func TestChargeInvalidPayment(t *testing.T) {
	fac := &fakeFacilitator{verify: &facilitator.VerifyResponse{IsValid: false, InvalidReason: "expired"}}
	gate := newGate(t, fac, config.PaymentConfig{})

	_, err := gate.Charge(context.Background(), "203.0.113.9", "proof-bad", "https://gw.test/do", "screenshot", 10_000)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidPayment, appErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, appErr.Status)
}

func TestChargeFacilitatorDown(t *testing.T) {
	fac := &fakeFacilitator{verifyErr: domainerrors.ErrFacilitatorDown}
	gate := newGate(t, fac, config.PaymentConfig{})

	_, err := gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeVerificationUnavail, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestChargeFacilitatorRejection(t *testing.T) {
	fac := &fakeFacilitator{verifyErr: errors.Join(domainerrors.ErrVerificationFailed, errors.New("status 400"))}
	gate := newGate(t, fac, config.PaymentConfig{})

	_, err := gate.Charge(context.Background(), "203.0.113.9", "proof-abc", "https://gw.test/do", "screenshot", 10_000)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerrors.CodeInvalidPayment, appErr.Code)
}

func TestBypassTrustedPeer(t *testing.T) {
	gate := newGate(t, &fakeFacilitator{}, config.PaymentConfig{
		TestBypassKey: "secret-key",
		TrustedPeers:  []string{"10.0.0.0/8"},
	})

	payment, err := gate.Charge(context.Background(), "10.1.2.3", "secret-key", "https://gw.test/do", "screenshot", 10_000)
	require.NoError(t, err)
	assert.True(t, payment.Bypassed)
}

func TestBypassUntrustedPeerLooksLikeNoPayment(t *testing.T) {
	gate := newGate(t, &fakeFacilitator{}, config.PaymentConfig{
		TestBypassKey: "secret-key",
		TrustedPeers:  []string{"10.0.0.0/8"},
	})

	// From outside the trusted ranges the key is treated as absent, so the
	// caller just sees the ordinary 402 quote.
	_, err := gate.Charge(context.Background(), "203.0.113.9", "secret-key", "https://gw.test/do", "screenshot", 10_000)
	var payReq *usecases.PaymentRequired
	require.ErrorAs(t, err, &payReq)
}

func TestIsTrustedPeer(t *testing.T) {
	gate := newGate(t, &fakeFacilitator{}, config.PaymentConfig{TrustedPeers: []string{"10.0.0.0/8"}})

	assert.True(t, gate.IsTrustedPeer("127.0.0.1"))
	assert.True(t, gate.IsTrustedPeer("::1"))
	assert.True(t, gate.IsTrustedPeer("10.200.1.1"))
	assert.False(t, gate.IsTrustedPeer("203.0.113.9"))
	assert.False(t, gate.IsTrustedPeer("not-an-ip"))
}

func TestSettleAsyncSkipsBypassed(t *testing.T) {
	fac := &fakeFacilitator{}
	gate := newGate(t, fac, config.PaymentConfig{})

	gate.SettleAsync(&usecases.Payment{Bypassed: true})
	gate.SettleAsync(nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, fac.settles)
}
