package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/gateway"
)

// outcomeRecorder counts every callback invocation across a test.
type outcomeRecorder struct {
	mu        sync.Mutex
	successes []string
	cancels   int
	errors    []string
}

func (r *outcomeRecorder) callbacks() Callbacks {
	return Callbacks{
		OnSuccess: func(reference string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes = append(r.successes, reference)
		},
		OnCancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cancels++
		},
		OnError: func(message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, message)
		},
	}
}

func (r *outcomeRecorder) totals() (successes []string, cancels int, errors []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.successes...), r.cancels, append([]string(nil), r.errors...)
}

func testOrder() OrderSummary {
	return OrderSummary{
		OrderID:          "123",
		AmountMinorUnits: 250000,
		Currency:         "NGN",
		Customer: Customer{
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Obi",
			Phone:     "+2348012345678",
		},
	}
}

func testConfig() Config {
	return Config{
		CallbackDomain: "errandpay.app",
		CallbackURL:    "https://errandpay.app/payment/callback",
		VerifyAttempts: 3,
		VerifyDelay:    time.Millisecond,
	}
}

func newTestController(gw gateway.Gateway, rec *outcomeRecorder) *Controller {
	return NewController(testConfig(), gw, "embedded", rec.callbacks(), zap.NewNop(), nil)
}

func initializedGateway() *fakeGateway {
	return &fakeGateway{
		initResult: &gateway.InitializeResult{
			AuthorizationURL: "https://checkout.paystack.com/abc123",
			Reference:        "errand_123_999",
		},
	}
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().State == want
	}, 2*time.Second, time.Millisecond, "state never reached %s", want)
}

func TestOpen_MountsSurfaceOnAuthorizationURL(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	url, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc123", url)

	s := c.Snapshot()
	assert.Equal(t, StateAwaitingCompletion, s.State)
	assert.Equal(t, "errand_123_999", s.Reference)
	assert.Equal(t, "123", s.OrderID)
	assert.Equal(t, []string{"card"}, gw.lastInit.Channels)
	assert.Equal(t, "ada@example.com", gw.lastInit.Email)
}

func TestOpen_RejectsBadInput(t *testing.T) {
	gw := initializedGateway()
	c := newTestController(gw, &outcomeRecorder{})

	order := testOrder()
	order.AmountMinorUnits = 0
	_, err := c.Open(context.Background(), order, ChannelCard)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.Open(context.Background(), testOrder(), Channel("crypto"))
	assert.ErrorIs(t, err, ErrInvalidChannel)

	assert.Equal(t, 0, gw.initCalls)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestOpen_IsIdempotentWhileOpen(t *testing.T) {
	gw := initializedGateway()
	c := newTestController(gw, &outcomeRecorder{})

	first, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	second, err := c.Open(context.Background(), testOrder(), ChannelBankTransfer)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.initCalls)
	assert.Equal(t, ChannelCard, c.Snapshot().Channel)
}

func TestOpen_RejectedAfterTerminalState(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{succeeded()}
	c := newTestController(gw, &outcomeRecorder{})

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)
	c.ObserveNavigation("https://checkout.paystack.com/close")
	waitForState(t, c, StateSuccess)

	_, err = c.Open(context.Background(), testOrder(), ChannelCard)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestClosePageNavigation_VerifiesThenSucceeds(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{succeeded()}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveNavigation("https://checkout.paystack.com/checkout/xyz")
	assert.Equal(t, StateAwaitingCompletion, c.Snapshot().State)

	c.ObserveNavigation("https://checkout.paystack.com/close")
	waitForState(t, c, StateSuccess)

	s := c.Snapshot()
	assert.False(t, s.Presumed)
	assert.Equal(t, []string{"errand_123_999"}, gw.verifyRefs)

	successes, cancels, errors := rec.totals()
	assert.Equal(t, []string{"errand_123_999"}, successes)
	assert.Zero(t, cancels)
	assert.Empty(t, errors)
}

func TestCancelledNavigation_NoVerification(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveNavigation("https://errandpay.app/payment/callback?status=cancelled")

	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.Equal(t, 0, gw.verifyCount())

	successes, cancels, errors := rec.totals()
	assert.Empty(t, successes)
	assert.Equal(t, 1, cancels)
	assert.Empty(t, errors)
}

func TestExhaustedVerification_PresumesSuccess(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveMessage([]byte(`{"event":"success","data":{"reference":"errand_123_999"}}`))
	waitForState(t, c, StateSuccess)

	s := c.Snapshot()
	assert.True(t, s.Presumed)
	assert.Equal(t, 3, s.VerificationAttempts)

	successes, _, errors := rec.totals()
	assert.Equal(t, []string{"errand_123_999"}, successes)
	assert.Empty(t, errors)
}

func TestVerificationFailure_FiresOnError(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{
		{result: &gateway.VerifyResult{Status: gateway.StatusFailed, Message: "Declined by issuer"}},
	}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveNavigation("https://checkout.paystack.com/close")
	waitForState(t, c, StateFailure)

	assert.Equal(t, "Declined by issuer", c.Snapshot().ErrorMessage)
	successes, cancels, errors := rec.totals()
	assert.Empty(t, successes)
	assert.Zero(t, cancels)
	assert.Equal(t, []string{"Declined by issuer"}, errors)
}

func TestInitializeDecline_SurfacesGatewayMessage(t *testing.T) {
	gw := &fakeGateway{
		initErr: &gateway.GatewayDeclineError{StatusCode: 400, Message: "Invalid key"},
	}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.Error(t, err)

	s := c.Snapshot()
	assert.Equal(t, StateFailure, s.State)
	assert.Equal(t, "Invalid key", s.ErrorMessage)

	_, _, errors := rec.totals()
	assert.Equal(t, []string{"Invalid key"}, errors)
}

func TestInitializeNetworkError_GenericMessage(t *testing.T) {
	gw := &fakeGateway{
		initErr: &gateway.NetworkError{Op: "initialize", Err: context.DeadlineExceeded},
	}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.Error(t, err)

	_, _, errors := rec.totals()
	require.Len(t, errors, 1)
	assert.Equal(t, "Could not reach payment service", errors[0])
}

func TestExactlyOneOutcomePerLifetime(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{succeeded()}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	// Burst of redundant completion signals before and after the terminal one.
	c.ObserveNavigation("https://checkout.paystack.com/close")
	c.ObserveMessage([]byte(`{"event":"success","data":{"reference":"errand_123_999"}}`))
	c.ObserveNavigation("https://errandpay.app/payment/callback?status=cancelled")
	waitForState(t, c, StateSuccess)
	c.ObserveMessage([]byte(`{"event":"error","data":{"message":"late"}}`))

	successes, cancels, errors := rec.totals()
	assert.Len(t, successes, 1)
	assert.Zero(t, cancels)
	assert.Empty(t, errors)
}

func TestClose_FiresNoCallback(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.Close()

	assert.Equal(t, StateIdle, c.Snapshot().State)
	successes, cancels, errors := rec.totals()
	assert.Empty(t, successes)
	assert.Zero(t, cancels)
	assert.Empty(t, errors)

	// Session is reusable after close.
	_, err = c.Open(context.Background(), testOrder(), ChannelCard)
	assert.NoError(t, err)
}

func TestClose_InvalidatesInFlightPoll(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	cfg := testConfig()
	cfg.VerifyDelay = time.Hour
	c := NewController(cfg, gw, "embedded", rec.callbacks(), zap.NewNop(), nil)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveNavigation("https://checkout.paystack.com/close")
	require.Eventually(t, func() bool { return gw.verifyCount() == 1 }, time.Second, time.Millisecond)

	c.Close()

	// The cancelled chain's result must be discarded, not applied.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, c.Snapshot().State)
	successes, cancels, errors := rec.totals()
	assert.Empty(t, successes)
	assert.Zero(t, cancels)
	assert.Empty(t, errors)
}

func TestReset_OnlyFromTerminalState(t *testing.T) {
	gw := initializedGateway()
	c := newTestController(gw, &outcomeRecorder{})

	assert.ErrorIs(t, c.Reset(), ErrResetNotAllowed)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Reset(), ErrResetNotAllowed)

	c.ObserveMessage([]byte(`{"event":"error","data":{"message":"Card declined"}}`))
	waitForState(t, c, StateFailure)

	require.NoError(t, c.Reset())
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestRetryAfterFailure_ReusesOrder(t *testing.T) {
	gw := initializedGateway()
	gw.initErr = &gateway.ServerError{StatusCode: 503}
	rec := &outcomeRecorder{}
	c := newTestController(gw, rec)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.Error(t, err)
	require.Equal(t, StateFailure, c.Snapshot().State)

	gw.mu.Lock()
	gw.initErr = nil
	gw.mu.Unlock()

	url, err := c.RetryAfterFailure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc123", url)

	s := c.Snapshot()
	assert.Equal(t, StateAwaitingCompletion, s.State)
	assert.Equal(t, "123", s.OrderID)
	assert.Equal(t, ChannelCard, s.Channel)
	assert.Equal(t, 2, gw.initCalls)
}

func TestRetryAfterFailure_RejectedOutsideFailure(t *testing.T) {
	gw := initializedGateway()
	c := newTestController(gw, &outcomeRecorder{})

	_, err := c.RetryAfterFailure(context.Background())
	assert.ErrorIs(t, err, ErrRetryNotAllowed)

	_, err = c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)
	_, err = c.RetryAfterFailure(context.Background())
	assert.ErrorIs(t, err, ErrRetryNotAllowed)
}

func TestFallbackTimeout_VerifiesAsPresumed(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{succeeded()}
	rec := &outcomeRecorder{}
	cfg := testConfig()
	cfg.FallbackTimeout = 10 * time.Millisecond
	c := NewController(cfg, gw, "embedded", rec.callbacks(), zap.NewNop(), nil)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	waitForState(t, c, StateSuccess)
	assert.GreaterOrEqual(t, gw.verifyCount(), 1)

	successes, _, _ := rec.totals()
	assert.Equal(t, []string{"errand_123_999"}, successes)
}

func TestWindowSurfaceClosed_Cancels(t *testing.T) {
	gw := initializedGateway()
	rec := &outcomeRecorder{}
	c := NewController(testConfig(), gw, "window", rec.callbacks(), zap.NewNop(), nil)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)

	c.ObserveSurfaceClosed()

	assert.Equal(t, StateIdle, c.Snapshot().State)
	_, cancels, _ := rec.totals()
	assert.Equal(t, 1, cancels)
}

func TestOnChange_ReceivesSnapshots(t *testing.T) {
	gw := initializedGateway()
	gw.verifySteps = []verifyStep{succeeded()}

	var mu sync.Mutex
	var states []State
	onChange := func(s PaymentSession) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s.State)
	}

	rec := &outcomeRecorder{}
	c := NewController(testConfig(), gw, "embedded", rec.callbacks(), zap.NewNop(), onChange)

	_, err := c.Open(context.Background(), testOrder(), ChannelCard)
	require.NoError(t, err)
	c.ObserveNavigation("https://checkout.paystack.com/close")
	waitForState(t, c, StateSuccess)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateInitializing, states[0])
	assert.Contains(t, states, StateAwaitingCompletion)
	assert.Contains(t, states, StateVerifying)
	assert.Equal(t, StateSuccess, states[len(states)-1])
}
