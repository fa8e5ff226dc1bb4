package checkout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/gateway"
)

// PollOutcome is the poller's tri-state answer about a reference.
type PollOutcome string

const (
	PollSuccess PollOutcome = "success"
	PollFailed  PollOutcome = "failed"
	// PollExhausted means every attempt came back pending. The controller
	// resolves this as presumed success.
	PollExhausted PollOutcome = "exhausted"
)

// PollResult is the final word of one verification chain.
type PollResult struct {
	Outcome  PollOutcome
	Message  string
	Attempts int
}

const (
	defaultVerifyAttempts = 3
	defaultVerifyDelay    = 3 * time.Second
)

// Poller drives the gateway verify call with a bounded retry budget.
type Poller struct {
	gw       gateway.Gateway
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

func NewPoller(gw gateway.Gateway, attempts int, delay time.Duration, logger *zap.Logger) *Poller {
	if attempts <= 0 {
		attempts = defaultVerifyAttempts
	}
	if delay <= 0 {
		delay = defaultVerifyDelay
	}
	return &Poller{gw: gw, attempts: attempts, delay: delay, logger: logger}
}

// Poll verifies a reference until it resolves or the attempt budget runs out.
// Pending answers and transport errors burn an attempt and wait out the fixed
// delay; failed/abandoned answers report immediately. onAttempt fires before
// each verify call with the 1-based attempt number.
func (p *Poller) Poll(ctx context.Context, reference string, onAttempt func(attempt int)) PollResult {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if onAttempt != nil {
			onAttempt(attempt)
		}

		result, err := p.gw.Verify(ctx, reference)
		switch {
		case err == nil && result.Status == gateway.StatusSuccess:
			return PollResult{Outcome: PollSuccess, Attempts: attempt}

		case err == nil && (result.Status == gateway.StatusFailed || result.Status == gateway.StatusAbandoned):
			msg := result.Message
			if msg == "" {
				msg = "Payment " + string(result.Status)
			}
			return PollResult{Outcome: PollFailed, Message: msg, Attempts: attempt}

		case err != nil && !retryableVerifyError(err):
			return PollResult{Outcome: PollFailed, Message: err.Error(), Attempts: attempt}

		default:
			// pending, or a transport/server error treated as pending
			if err != nil {
				p.logger.Warn("Verify attempt failed, treating as pending",
					zap.String("reference", reference),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			if attempt == p.attempts {
				return PollResult{Outcome: PollExhausted, Attempts: attempt}
			}
			select {
			case <-ctx.Done():
				return PollResult{Outcome: PollFailed, Message: "verification cancelled", Attempts: attempt}
			case <-time.After(p.delay):
			}
		}
	}
	return PollResult{Outcome: PollExhausted, Attempts: p.attempts}
}

// retryableVerifyError reports whether a verify error should burn an attempt
// and retry. A 4xx decline is a definitive answer; everything else (no
// response, 5xx) might clear up.
func retryableVerifyError(err error) bool {
	var decline *gateway.GatewayDeclineError
	return !errors.As(err, &decline)
}
