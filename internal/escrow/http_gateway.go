package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/crossmarket/admincore/internal/circuitbreaker"
	"github.com/crossmarket/admincore/internal/retry"
)

// breakerKey is the circuit key for the single escrow upstream.
const breakerKey = "escrow-service"

// HTTPGateway talks to the platform's escrow service over HTTP.
//
// Transient failures (timeouts, 5xx) are retried with exponential
// backoff; 4xx responses are permanent and come back as failed. If all
// attempts exhaust without a definitive answer the action is pending,
// signalling manual reconciliation. An optional circuit breaker stops
// hammering an upstream that keeps timing out.
type HTTPGateway struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	baseDelay   time.Duration
	client      *http.Client
	logger      *slog.Logger
	breaker     *circuitbreaker.Breaker
}

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration // per-attempt timeout
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewHTTPGateway creates a gateway for the escrow service at cfg.BaseURL.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	return &HTTPGateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      slog.Default(),
	}
}

// WithLogger sets a structured logger.
func (g *HTTPGateway) WithLogger(l *slog.Logger) *HTTPGateway {
	g.logger = l
	return g
}

// WithBreaker wraps calls to the escrow service in a circuit breaker.
// While the circuit is open, actions come back pending without touching
// the network.
func (g *HTTPGateway) WithBreaker(b *circuitbreaker.Breaker) *HTTPGateway {
	g.breaker = b
	return g
}

type wireRequest struct {
	Amount        string `json:"amount,omitempty"`
	RefundAmount  string `json:"refundAmount,omitempty"`
	ReleaseAmount string `json:"releaseAmount,omitempty"`
}

type wireResponse struct {
	TransactionID string `json:"transactionId"`
	Message       string `json:"message,omitempty"`
}

func (g *HTTPGateway) Execute(ctx context.Context, instr Instruction, idempotencyKey string) Action {
	if instr.Type == ActionNone {
		return NoneAction()
	}
	if instr.EscrowID == "" {
		return failed(instr, "no escrow reference on order")
	}

	if g.breaker != nil && !g.breaker.Allow(breakerKey) {
		action := fromInstruction(instr)
		action.Status = StatusPending
		action.Message = "escrow service circuit open; action deferred to reconciliation"
		g.logger.Warn("escrow action deferred, circuit open",
			"escrow_id", instr.EscrowID,
			"type", string(instr.Type),
			"idempotency_key", idempotencyKey,
		)
		return action
	}

	var (
		resp      wireResponse
		permanent bool
	)
	err := retry.Do(ctx, g.maxAttempts, g.baseDelay, func() error {
		r, err := g.attempt(ctx, instr, idempotencyKey)
		if err != nil {
			var pe *retry.PermanentError
			if errors.As(err, &pe) {
				permanent = true
			}
			return err
		}
		permanent = false
		resp = r
		return nil
	})

	action := fromInstruction(instr)
	switch {
	case err == nil:
		g.recordSuccess()
		action.Status = StatusSuccess
		action.TransactionID = resp.TransactionID
		action.Message = resp.Message
	case permanent:
		// The service answered, it just said no. That is a healthy upstream.
		g.recordSuccess()
		action.Status = StatusFailed
		action.Message = err.Error()
	default:
		// Retries exhausted without a definitive answer. The call may
		// have landed on the other side, so this is pending rather than
		// failed: reconcile manually, never resubmit blindly.
		g.recordFailure()
		action.Status = StatusPending
		action.Message = fmt.Sprintf("escrow call unresolved after %d attempts: %v", g.maxAttempts, err)
		g.logger.Warn("escrow action pending",
			"escrow_id", instr.EscrowID,
			"type", string(instr.Type),
			"idempotency_key", idempotencyKey,
			"error", err,
		)
	}
	return action
}

func (g *HTTPGateway) recordSuccess() {
	if g.breaker != nil {
		g.breaker.RecordSuccess(breakerKey)
	}
}

func (g *HTTPGateway) recordFailure() {
	if g.breaker != nil {
		g.breaker.RecordFailure(breakerKey)
	}
}

func (g *HTTPGateway) attempt(ctx context.Context, instr Instruction, idempotencyKey string) (wireResponse, error) {
	body, _ := json.Marshal(wireRequest{
		Amount:        instr.Amount,
		RefundAmount:  instr.RefundAmount,
		ReleaseAmount: instr.ReleaseAmount,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(instr), bytes.NewReader(body))
	if err != nil {
		return wireResponse{}, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return wireResponse{}, fmt.Errorf("escrow request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var r wireResponse
		if err := json.Unmarshal(raw, &r); err != nil {
			return wireResponse{}, retry.Permanent(fmt.Errorf("escrow response malformed: %w", err))
		}
		return r, nil
	case resp.StatusCode >= 500:
		return wireResponse{}, fmt.Errorf("escrow service returned %d", resp.StatusCode)
	default:
		// 4xx: insufficient funds, unknown escrow, bad request. Retrying
		// cannot help.
		return wireResponse{}, retry.Permanent(fmt.Errorf("escrow rejected request (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
}

func (g *HTTPGateway) endpoint(instr Instruction) string {
	switch instr.Type {
	case ActionRefund:
		return fmt.Sprintf("%s/escrows/%s/refund", g.baseURL, instr.EscrowID)
	case ActionPartialRefund:
		return fmt.Sprintf("%s/escrows/%s/partial-refund", g.baseURL, instr.EscrowID)
	default:
		return fmt.Sprintf("%s/escrows/%s/release", g.baseURL, instr.EscrowID)
	}
}
