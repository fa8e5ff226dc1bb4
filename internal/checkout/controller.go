package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/gateway"
	"github.com/ronalking182/errandpay/internal/surface"
)

var (
	// ErrInvalidAmount rejects an open with a non-positive charge amount.
	ErrInvalidAmount = errors.New("order amount must be greater than zero")
	// ErrInvalidChannel rejects an open with an unknown payment channel.
	ErrInvalidChannel = errors.New("unknown payment channel")
	// ErrSessionCompleted rejects opening a session that already finished.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrRetryNotAllowed rejects a retry outside the failure state.
	ErrRetryNotAllowed = errors.New("retry is only allowed after a failure")
	// ErrResetNotAllowed rejects a reset outside a terminal state.
	ErrResetNotAllowed = errors.New("reset is only allowed from a terminal state")
	// ErrSessionReset means the session was closed while a call was in flight.
	ErrSessionReset = errors.New("session was reset")
)

// Callbacks are the caller-supplied outcome hooks. Exactly one of them fires
// per completed session lifetime.
type Callbacks struct {
	OnSuccess func(reference string)
	OnCancel  func()
	OnError   func(message string)
}

// Config tunes one controller instance.
type Config struct {
	// CallbackDomain is the host the gateway redirects back to; navigation
	// URLs containing it carry the completion status.
	CallbackDomain string
	// CallbackURL is passed to the gateway at initialization.
	CallbackURL string
	// FallbackTimeout bounds how long the surface waits for any terminal
	// signal before presuming completion. Defaults to 5 minutes.
	FallbackTimeout time.Duration
	VerifyAttempts  int
	VerifyDelay     time.Duration
}

func (c Config) fallbackTimeout() time.Duration {
	if c.FallbackTimeout > 0 {
		return c.FallbackTimeout
	}
	return 5 * time.Minute
}

// Controller is the top-level state machine for one checkout attempt. It owns
// the surface adapter, drives the verification poller, and is the only place
// session state is mutated. Event processing is serialized under its mutex,
// so no two transitions for the same session ever run concurrently; each
// producer stamps its events with the session epoch and stale epochs are
// dropped.
type Controller struct {
	cfg        Config
	gw         gateway.Gateway
	capability surface.Capability
	callbacks  Callbacks
	logger     *zap.Logger

	// onChange, when set, receives a snapshot after every applied transition.
	onChange func(PaymentSession)

	mu           sync.Mutex
	session      PaymentSession
	adapter      surface.Adapter
	epoch        uint64
	cancelPoll   context.CancelFunc
	outcomeFired bool
}

func NewController(
	cfg Config,
	gw gateway.Gateway,
	capability surface.Capability,
	callbacks Callbacks,
	logger *zap.Logger,
	onChange func(PaymentSession),
) *Controller {
	return &Controller{
		cfg:        cfg,
		gw:         gw,
		capability: capability,
		callbacks:  callbacks,
		logger:     logger,
		onChange:   onChange,
		session: PaymentSession{
			ID:    uuid.NewString(),
			State: StateIdle,
		},
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() PaymentSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Open starts a checkout attempt: initialize with the gateway, then mount the
// surface on the returned authorization URL. Opening an already-open session
// is a no-op that returns the existing URL.
func (c *Controller) Open(ctx context.Context, order OrderSummary, channel Channel) (string, error) {
	if order.AmountMinorUnits <= 0 {
		return "", ErrInvalidAmount
	}
	if !channel.Valid() {
		return "", ErrInvalidChannel
	}

	c.mu.Lock()
	switch c.session.State {
	case StateInitializing, StateAwaitingCompletion:
		if c.session.AuthorizationURL != "" {
			url := c.session.AuthorizationURL
			c.mu.Unlock()
			return url, nil
		}
		c.mu.Unlock()
		return "", nil
	case StateVerifying:
		url := c.session.AuthorizationURL
		c.mu.Unlock()
		return url, nil
	case StateSuccess, StateFailure:
		c.mu.Unlock()
		return "", ErrSessionCompleted
	}

	c.session.OrderID = order.OrderID
	c.session.AmountMinorUnits = order.AmountMinorUnits
	c.session.Currency = order.Currency
	c.session.Customer = order.Customer
	c.session.Channel = channel
	c.session.State = StateInitializing
	epoch := c.epoch
	c.notifyChangeLocked()
	c.mu.Unlock()

	result, err := c.gw.Initialize(ctx, gateway.InitializeRequest{
		Email:       order.Customer.Email,
		Amount:      order.AmountMinorUnits,
		Currency:    order.Currency,
		Reference:   candidateReference(order.OrderID),
		CallbackURL: c.cfg.CallbackURL,
		Channels:    []string{string(channel)},
		Metadata: map[string]interface{}{
			"order_id":   order.OrderID,
			"first_name": order.Customer.FirstName,
			"last_name":  order.Customer.LastName,
			"phone":      order.Customer.Phone,
		},
	})
	if err != nil {
		c.applyInitFailure(epoch, err)
		return "", err
	}
	return c.applyInitSuccess(epoch, result)
}

func (c *Controller) applyInitSuccess(epoch uint64, result *gateway.InitializeResult) (string, error) {
	c.mu.Lock()
	if epoch != c.epoch || c.session.State != StateInitializing {
		c.mu.Unlock()
		return "", ErrSessionReset
	}

	// The gateway's reference is authoritative; write-once from here on.
	c.session.Reference = result.Reference
	c.session.AuthorizationURL = result.AuthorizationURL
	c.session.State = StateAwaitingCompletion

	classifier := surface.NewClassifier(c.cfg.CallbackDomain, result.Reference)
	c.adapter = surface.New(c.capability, classifier, &sink{c: c, epoch: epoch}, c.cfg.fallbackTimeout(), c.logger)
	c.adapter.Mount(result.AuthorizationURL)
	sessionID := c.session.ID
	c.notifyChangeLocked()
	c.mu.Unlock()

	c.logger.Info("Checkout session awaiting completion",
		zap.String("session_id", sessionID),
		zap.String("reference", result.Reference))
	return result.AuthorizationURL, nil
}

func (c *Controller) applyInitFailure(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch || c.session.State != StateInitializing {
		c.mu.Unlock()
		return
	}
	c.session.State = StateFailure
	c.session.ErrorMessage = initErrorMessage(err)
	fire := c.takeOutcomeLocked()
	msg := c.session.ErrorMessage
	c.notifyChangeLocked()
	c.mu.Unlock()

	if fire && c.callbacks.OnError != nil {
		c.callbacks.OnError(msg)
	}
}

// sink feeds adapter events back into the controller, pinned to the epoch the
// adapter was mounted under.
type sink struct {
	c     *Controller
	epoch uint64
}

func (s *sink) HandleClassified(cl surface.Classification) {
	s.c.handleClassified(s.epoch, cl)
}

func (s *sink) HandleFallbackTimeout() {
	s.c.handleFallbackTimeout(s.epoch)
}

func (c *Controller) handleClassified(epoch uint64, cl surface.Classification) {
	c.mu.Lock()
	if epoch != c.epoch || c.session.State != StateAwaitingCompletion {
		c.mu.Unlock()
		return
	}

	switch cl.Kind {
	case surface.KindSuccess:
		c.startVerifyingLocked(false)
		c.mu.Unlock()

	case surface.KindCancelled:
		fire := c.takeOutcomeLocked()
		c.unmountLocked()
		c.clearSessionLocked()
		c.notifyChangeLocked()
		c.mu.Unlock()
		if fire && c.callbacks.OnCancel != nil {
			c.callbacks.OnCancel()
		}

	case surface.KindError:
		c.session.State = StateFailure
		c.session.ErrorMessage = cl.Message
		fire := c.takeOutcomeLocked()
		c.unmountLocked()
		c.notifyChangeLocked()
		c.mu.Unlock()
		if fire && c.callbacks.OnError != nil {
			c.callbacks.OnError(cl.Message)
		}

	default:
		c.mu.Unlock()
	}
}

func (c *Controller) handleFallbackTimeout(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.session.State != StateAwaitingCompletion {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("No completion signal before fallback timeout, presuming completion",
		zap.String("session_id", c.session.ID),
		zap.String("reference", c.session.Reference))
	c.startVerifyingLocked(true)
	c.mu.Unlock()
}

// startVerifyingLocked moves to verifying and launches the single poll chain
// for this session. Caller holds the lock.
func (c *Controller) startVerifyingLocked(presumed bool) {
	c.session.State = StateVerifying
	c.session.Presumed = presumed
	c.unmountLocked()
	c.notifyChangeLocked()

	pollCtx, cancel := context.WithCancel(context.Background())
	c.cancelPoll = cancel
	epoch := c.epoch
	reference := c.session.Reference

	poller := NewPoller(c.gw, c.cfg.VerifyAttempts, c.cfg.VerifyDelay, c.logger)
	go func() {
		result := poller.Poll(pollCtx, reference, func(attempt int) {
			c.noteVerifyAttempt(epoch)
		})
		c.applyPollResult(epoch, result)
	}()
}

func (c *Controller) noteVerifyAttempt(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.session.State != StateVerifying {
		return
	}
	c.session.VerificationAttempts++
	c.notifyChangeLocked()
}

func (c *Controller) applyPollResult(epoch uint64, result PollResult) {
	c.mu.Lock()
	if epoch != c.epoch || c.session.State != StateVerifying {
		// Stale chain from before a reset; discard.
		c.mu.Unlock()
		return
	}
	c.cancelPoll = nil

	switch result.Outcome {
	case PollSuccess:
		c.session.State = StateSuccess
		c.session.Presumed = false
		fire := c.takeOutcomeLocked()
		reference := c.session.Reference
		c.notifyChangeLocked()
		c.mu.Unlock()
		if fire && c.callbacks.OnSuccess != nil {
			c.callbacks.OnSuccess(reference)
		}

	case PollExhausted:
		// Every attempt came back pending. Policy: presume success rather
		// than leave the outcome unresolved.
		c.session.State = StateSuccess
		c.session.Presumed = true
		fire := c.takeOutcomeLocked()
		reference := c.session.Reference
		c.notifyChangeLocked()
		c.mu.Unlock()
		c.logger.Warn("Verification retries exhausted, presuming success",
			zap.String("reference", reference),
			zap.Int("attempts", result.Attempts))
		if fire && c.callbacks.OnSuccess != nil {
			c.callbacks.OnSuccess(reference)
		}

	default:
		c.session.State = StateFailure
		c.session.ErrorMessage = result.Message
		fire := c.takeOutcomeLocked()
		c.notifyChangeLocked()
		c.mu.Unlock()
		if fire && c.callbacks.OnError != nil {
			c.callbacks.OnError(result.Message)
		}
	}
}

// ObserveNavigation relays a navigation URL seen by the hosting surface.
func (c *Controller) ObserveNavigation(rawURL string) {
	if a := c.currentAdapter(); a != nil {
		a.ObserveNavigation(rawURL)
	}
}

// ObserveMessage relays a cross-context message from the hosted page.
func (c *Controller) ObserveMessage(payload []byte) {
	if a := c.currentAdapter(); a != nil {
		a.ObserveMessage(payload)
	}
}

// ObserveLoadError relays a top-level document failure.
func (c *Controller) ObserveLoadError(statusCode int) {
	if a := c.currentAdapter(); a != nil {
		a.ObserveLoadError(statusCode)
	}
}

// ObserveSurfaceClosed relays the hosting surface disappearing on its own.
func (c *Controller) ObserveSurfaceClosed() {
	if a := c.currentAdapter(); a != nil {
		a.ObserveClosed()
	}
}

func (c *Controller) currentAdapter() surface.Adapter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapter
}

// Close is the explicit user dismiss: tear everything down and return to idle
// without firing any outcome callback. Legal from any state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
	c.clearSessionLocked()
	c.notifyChangeLocked()
}

// Reset returns a finished session to idle so a new attempt can start.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.State.Terminal() {
		return ErrResetNotAllowed
	}
	c.invalidateLocked()
	c.clearSessionLocked()
	c.notifyChangeLocked()
	return nil
}

// RetryAfterFailure re-enters initialization with the same order and channel.
// Only legal from the failure state.
func (c *Controller) RetryAfterFailure(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.session.State != StateFailure {
		c.mu.Unlock()
		return "", ErrRetryNotAllowed
	}
	order := OrderSummary{
		OrderID:          c.session.OrderID,
		AmountMinorUnits: c.session.AmountMinorUnits,
		Currency:         c.session.Currency,
		Customer:         c.session.Customer,
	}
	channel := c.session.Channel
	c.invalidateLocked()
	c.clearSessionLocked()
	c.mu.Unlock()

	return c.Open(ctx, order, channel)
}

// invalidateLocked bumps the epoch so in-flight producers (poll chains,
// timers, the mounted adapter) have their eventual results discarded, and
// synchronously stops whatever can be stopped. Caller holds the lock.
func (c *Controller) invalidateLocked() {
	c.epoch++
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
	c.unmountLocked()
}

func (c *Controller) unmountLocked() {
	if c.adapter != nil {
		c.adapter.Unmount()
		c.adapter = nil
	}
}

// clearSessionLocked wipes every session field back to idle, keeping only the
// session identity. Caller holds the lock.
func (c *Controller) clearSessionLocked() {
	c.session = PaymentSession{
		ID:    c.session.ID,
		State: StateIdle,
	}
	c.outcomeFired = false
}

// takeOutcomeLocked claims the single outcome slot for this lifetime. Caller
// holds the lock.
func (c *Controller) takeOutcomeLocked() bool {
	if c.outcomeFired {
		return false
	}
	c.outcomeFired = true
	return true
}

func (c *Controller) notifyChangeLocked() {
	if c.onChange != nil {
		c.onChange(c.session)
	}
}

func candidateReference(orderID string) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("errand_%s_%s", orderID, suffix)
}

func initErrorMessage(err error) string {
	var decline *gateway.GatewayDeclineError
	if errors.As(err, &decline) {
		return decline.Message
	}
	var srv *gateway.ServerError
	if errors.As(err, &srv) {
		return "Payment service unavailable"
	}
	var initErr *gateway.InitializationError
	if errors.As(err, &initErr) {
		return initErr.Message
	}
	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		return "Could not reach payment service"
	}
	return err.Error()
}
