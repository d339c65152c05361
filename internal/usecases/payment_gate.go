package usecases

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pylon-apis/pylon/internal/config"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/infrastructure/facilitator"
	"github.com/pylon-apis/pylon/pkg/logger"
	"github.com/pylon-apis/pylon/pkg/proof"
)

// FacilitatorClient verifies and settles payment proofs.
type FacilitatorClient interface {
	Verify(ctx context.Context, paymentHeader string, req facilitator.Requirement) (*facilitator.VerifyResponse, error)
	Settle(ctx context.Context, paymentHeader string, req facilitator.Requirement) (*facilitator.SettleResponse, error)
	BaseURL() string
}

// ReplayStore remembers proof identifiers within the replay window.
type ReplayStore interface {
	Seen(ctx context.Context, id string) (bool, error)
	Remember(ctx context.Context, id string) (bool, error)
}

// PaymentRequired is returned when no acceptable proof was presented. Its
// Body is the x402 requirements envelope rendered verbatim as the 402
// response.
type PaymentRequired struct {
	Body *facilitator.RequirementsResponse
}

func (e *PaymentRequired) Error() string { return "payment required" }

// Payment is the verified (or bypassed) payment attached to a request for
// downstream settlement and attribution.
type Payment struct {
	Bypassed    bool
	ProofID     string
	Header      string
	Requirement facilitator.Requirement
}

// PaymentGate verifies payment proofs, enforces the replay window, and
// settles after successful dispatches.
type PaymentGate struct {
	facilitator FacilitatorClient
	replay      ReplayStore
	cfg         config.PaymentConfig
	trusted     []*net.IPNet
}

// NewPaymentGate creates a payment gate.
func NewPaymentGate(fac FacilitatorClient, replay ReplayStore, cfg config.PaymentConfig) *PaymentGate {
	var trusted []*net.IPNet
	for _, cidr := range cfg.TrustedPeers {
		if _, block, err := net.ParseCIDR(cidr); err == nil {
			trusted = append(trusted, block)
		}
	}
	return &PaymentGate{facilitator: fac, replay: replay, cfg: cfg, trusted: trusted}
}

// IsTrustedPeer reports whether the client address may use the test bypass
// and unrestricted usage queries.
func (g *PaymentGate) IsTrustedPeer(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, block := range g.trusted {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// Requirement builds the quote for a resource at the given price.
func (g *PaymentGate) Requirement(resource, description string, amountMicros int64) facilitator.Requirement {
	return facilitator.Requirement{
		Scheme:            "exact",
		Network:           g.cfg.Network,
		Amount:            strconv.FormatInt(amountMicros, 10),
		Asset:             g.cfg.Asset,
		Resource:          resource,
		Description:       description,
		PayTo:             g.cfg.PayoutAddress,
		MaxTimeoutSeconds: 300,
		Extra:             map[string]any{"name": "USD Coin", "version": "2"},
	}
}

// Charge runs the full gate: bypass check, replay check, facilitator verify,
// replay insert. On success the returned Payment is attached to the request.
//
// A bypass key offered from an untrusted peer is treated exactly as if no
// proof were presented; the error paths never acknowledge that a bypass key
// exists.
func (g *PaymentGate) Charge(ctx context.Context, clientIP, paymentHeader, resource, description string, amountMicros int64) (*Payment, error) {
	if g.cfg.TestBypassKey != "" && paymentHeader == g.cfg.TestBypassKey {
		if g.IsTrustedPeer(clientIP) {
			return &Payment{Bypassed: true}, nil
		}
		paymentHeader = ""
	}

	requirement := g.Requirement(resource, description, amountMicros)

	if paymentHeader == "" {
		return nil, &PaymentRequired{Body: &facilitator.RequirementsResponse{
			X402Version:    facilitator.ProtocolVersion,
			Accepts:        []facilitator.Requirement{requirement},
			FacilitatorURL: g.facilitator.BaseURL(),
			Error:          nil,
		}}
	}

	proofID := proof.Identifier(paymentHeader)

	seen, err := g.replay.Seen(ctx, proofID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if seen {
		return nil, domainerrors.PaymentError(domainerrors.CodePaymentReplay, "payment already used")
	}

	verdict, err := g.facilitator.Verify(ctx, paymentHeader, requirement)
	if err != nil {
		if errors.Is(err, domainerrors.ErrVerificationFailed) {
			return nil, domainerrors.PaymentError(domainerrors.CodeInvalidPayment, "payment verification failed")
		}
		return nil, domainerrors.NewAppError(http.StatusInternalServerError,
			domainerrors.CodeVerificationUnavail, "verification service unavailable", err)
	}
	if !verdict.IsValid {
		logger.Info(ctx, "payment rejected", zap.String("reason", verdict.InvalidReason))
		return nil, domainerrors.PaymentError(domainerrors.CodeInvalidPayment, "payment verification failed")
	}

	inserted, err := g.replay.Remember(ctx, proofID)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	if !inserted {
		return nil, domainerrors.PaymentError(domainerrors.CodePaymentReplay, "payment already used")
	}

	return &Payment{ProofID: proofID, Header: paymentHeader, Requirement: requirement}, nil
}

// SettleAsync notifies the facilitator to settle a verified payment. Fire
// and forget: failures are logged, the caller's response never waits.
func (g *PaymentGate) SettleAsync(payment *Payment) {
	if payment == nil || payment.Bypassed {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := g.facilitator.Settle(ctx, payment.Header, payment.Requirement)
		if err != nil {
			logger.Error(ctx, "settlement failed", zap.String("proof", payment.ProofID), zap.Error(err))
			return
		}
		if !resp.Success {
			logger.Error(ctx, "settlement rejected",
				zap.String("proof", payment.ProofID),
				zap.String("reason", resp.ErrorReason))
			return
		}
		logger.Info(ctx, "payment settled",
			zap.String("proof", payment.ProofID),
			zap.String("tx", resp.Transaction))
	}()
}
