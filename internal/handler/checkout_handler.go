package handler

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/checkout"
	"github.com/ronalking182/errandpay/internal/config"
	"github.com/ronalking182/errandpay/internal/gateway"
	"github.com/ronalking182/errandpay/internal/models"
	"github.com/ronalking182/errandpay/internal/notify"
	"github.com/ronalking182/errandpay/internal/repository"
	"github.com/ronalking182/errandpay/internal/surface"
)

// CheckoutHandler exposes the payment session API the mobile/web clients
// drive. It owns the registry of live controllers and wires their outcome
// callbacks into persistence and ops reporting.
type CheckoutHandler struct {
	cfg      *config.Config
	gw       gateway.Gateway
	sessions *repository.SessionRepository
	payments *repository.PaymentRepository
	reporter *notify.Reporter
	logger   *zap.Logger

	mu   sync.RWMutex
	live map[string]*sessionEntry
}

// sessionEntry pairs a live controller with the last non-idle snapshot seen,
// so cancel outcomes can still be attributed after the controller clears.
type sessionEntry struct {
	ctrl     *checkout.Controller
	platform surface.Capability

	mu   sync.Mutex
	last checkout.PaymentSession
}

func (e *sessionEntry) remember(s checkout.PaymentSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.State != checkout.StateIdle {
		e.last = s
	}
}

func (e *sessionEntry) snapshot() checkout.PaymentSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func NewCheckoutHandler(
	cfg *config.Config,
	gw gateway.Gateway,
	sessions *repository.SessionRepository,
	payments *repository.PaymentRepository,
	reporter *notify.Reporter,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		cfg:      cfg,
		gw:       gw,
		sessions: sessions,
		payments: payments,
		reporter: reporter,
		logger:   logger,
		live:     make(map[string]*sessionEntry),
	}
}

type openSessionRequest struct {
	Order    checkout.OrderSummary `json:"order"`
	Channel  checkout.Channel      `json:"channel"`
	Platform string                `json:"platform"` // "embedded" (default) or "window"
}

// OpenSession creates a controller and starts the checkout attempt.
func (h *CheckoutHandler) OpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "invalid request body")
	}

	capability := surface.CapabilityEmbedded
	if req.Platform == string(surface.CapabilityWindow) {
		capability = surface.CapabilityWindow
	}

	entry := &sessionEntry{platform: capability}
	var sessionID string
	callbacks := checkout.Callbacks{
		OnSuccess: func(reference string) {
			snap := entry.snapshot()
			status := models.PaymentStatusSuccess
			if snap.Presumed {
				status = models.PaymentStatusPresumed
			}
			h.recordOutcome(snap, status, "")
			h.drop(sessionID)
		},
		OnCancel: func() {
			h.recordOutcome(entry.snapshot(), models.PaymentStatusCancelled, "")
			h.drop(sessionID)
		},
		// Failed sessions stay registered so the client can retry them.
		OnError: func(message string) {
			h.recordOutcome(entry.snapshot(), models.PaymentStatusFailed, message)
		},
	}

	ctrl := checkout.NewController(
		checkout.Config{
			CallbackDomain:  h.cfg.Gateway.CallbackDomain,
			CallbackURL:     h.cfg.Gateway.CallbackURL,
			FallbackTimeout: h.cfg.Checkout.FallbackTimeout,
			VerifyAttempts:  h.cfg.Checkout.VerifyAttempts,
			VerifyDelay:     h.cfg.Checkout.VerifyDelay,
		},
		h.gw,
		capability,
		callbacks,
		h.logger,
		func(s checkout.PaymentSession) {
			entry.remember(s)
			h.persistSession(s, capability)
		},
	)
	entry.ctrl = ctrl

	sessionID = ctrl.Snapshot().ID
	h.mu.Lock()
	h.live[sessionID] = entry
	h.mu.Unlock()

	url, err := ctrl.Open(c.Request().Context(), req.Order, req.Channel)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidAmount) || errors.Is(err, checkout.ErrInvalidChannel) {
			h.mu.Lock()
			delete(h.live, sessionID)
			h.mu.Unlock()
			return errorResponse(c, err.Error())
		}
		snap := ctrl.Snapshot()
		return c.JSON(http.StatusOK, models.APIResponse{
			Status: false,
			Msg:    snap.ErrorMessage,
			Obj:    sessionView(snap),
		})
	}

	snap := ctrl.Snapshot()
	h.logger.Info("Checkout session opened",
		zap.String("session_id", snap.ID),
		zap.String("order_id", snap.OrderID),
		zap.String("channel", string(snap.Channel)))
	return successResponse(c, "session opened", map[string]interface{}{
		"session_id":        snap.ID,
		"reference":         snap.Reference,
		"authorization_url": url,
		"state":             snap.State,
	})
}

// GetSession returns a state snapshot for the client.
func (h *CheckoutHandler) GetSession(c echo.Context) error {
	if entry, ok := h.entry(c.Param("id")); ok {
		return successResponse(c, "", sessionView(entry.ctrl.Snapshot()))
	}

	// Controller gone (restart); fall back to the persisted row.
	row, err := h.sessions.FindByID(c.Param("id"))
	if err != nil {
		return errorResponse(c, "session not found")
	}
	return successResponse(c, "", row)
}

type navigationRequest struct {
	URL string `json:"url"`
}

// Navigation relays a navigation URL observed by the hosting surface.
func (h *CheckoutHandler) Navigation(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	var req navigationRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "invalid request body")
	}
	entry.ctrl.ObserveNavigation(req.URL)
	return successResponse(c, "", sessionView(entry.ctrl.Snapshot()))
}

// Message relays an injected-script message verbatim.
func (h *CheckoutHandler) Message(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorResponse(c, "invalid request body")
	}
	entry.ctrl.ObserveMessage(payload)
	return successResponse(c, "", sessionView(entry.ctrl.Snapshot()))
}

type loadErrorRequest struct {
	StatusCode int `json:"status_code"`
}

// LoadError relays a top-level document failure from the hosted page.
func (h *CheckoutHandler) LoadError(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	var req loadErrorRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, "invalid request body")
	}
	entry.ctrl.ObserveLoadError(req.StatusCode)
	return successResponse(c, "", sessionView(entry.ctrl.Snapshot()))
}

// SurfaceClosed relays the hosting surface disappearing (popup closed).
func (h *CheckoutHandler) SurfaceClosed(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	entry.ctrl.ObserveSurfaceClosed()
	return successResponse(c, "", sessionView(entry.ctrl.Snapshot()))
}

// CloseSession is the explicit user dismiss. No outcome callback fires.
func (h *CheckoutHandler) CloseSession(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	entry.ctrl.Close()
	return successResponse(c, "session closed", sessionView(entry.ctrl.Snapshot()))
}

// Retry re-enters initialization after a failure.
func (h *CheckoutHandler) Retry(c echo.Context) error {
	entry, ok := h.entry(c.Param("id"))
	if !ok {
		return errorResponse(c, "session not found")
	}
	url, err := entry.ctrl.RetryAfterFailure(c.Request().Context())
	if err != nil {
		if errors.Is(err, checkout.ErrRetryNotAllowed) {
			return errorResponse(c, err.Error())
		}
		snap := entry.ctrl.Snapshot()
		return c.JSON(http.StatusOK, models.APIResponse{
			Status: false,
			Msg:    snap.ErrorMessage,
			Obj:    sessionView(snap),
		})
	}
	snap := entry.ctrl.Snapshot()
	return successResponse(c, "session reopened", map[string]interface{}{
		"session_id":        snap.ID,
		"reference":         snap.Reference,
		"authorization_url": url,
		"state":             snap.State,
	})
}

// DeliverWebhook routes a gateway webhook into the live session owning the
// reference, if this process still holds it. Implements the callback
// handler's SessionRegistry.
func (h *CheckoutHandler) DeliverWebhook(reference string, payload []byte) bool {
	var target *sessionEntry
	h.mu.RLock()
	for _, entry := range h.live {
		snap := entry.ctrl.Snapshot()
		if snap.Reference == reference && snap.State == checkout.StateAwaitingCompletion {
			target = entry
			break
		}
	}
	h.mu.RUnlock()

	if target == nil {
		return false
	}
	target.ctrl.ObserveMessage(payload)
	return true
}

func (h *CheckoutHandler) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.live, id)
}

func (h *CheckoutHandler) entry(id string) (*sessionEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.live[id]
	return entry, ok
}

func (h *CheckoutHandler) persistSession(s checkout.PaymentSession, capability surface.Capability) {
	row := &models.CheckoutSession{
		ID:                   s.ID,
		OrderID:              s.OrderID,
		AmountMinorUnits:     s.AmountMinorUnits,
		Currency:             s.Currency,
		CustomerEmail:        s.Customer.Email,
		CustomerPhone:        s.Customer.Phone,
		CustomerFirstName:    s.Customer.FirstName,
		CustomerLastName:     s.Customer.LastName,
		Channel:              string(s.Channel),
		Reference:            s.Reference,
		AuthorizationURL:     s.AuthorizationURL,
		State:                string(s.State),
		VerificationAttempts: s.VerificationAttempts,
		ErrorMessage:         s.ErrorMessage,
		Presumed:             s.Presumed,
		Platform:             string(capability),
	}
	if err := h.sessions.Upsert(row); err != nil {
		h.logger.Error("Failed to persist session", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (h *CheckoutHandler) recordOutcome(snap checkout.PaymentSession, status, message string) {
	if snap.Reference != "" {
		record := &models.PaymentRecord{
			SessionID:        snap.ID,
			OrderID:          snap.OrderID,
			Reference:        snap.Reference,
			AmountMinorUnits: snap.AmountMinorUnits,
			Currency:         snap.Currency,
			Channel:          string(snap.Channel),
			Status:           status,
			Message:          message,
		}
		if err := h.payments.Record(record); err != nil {
			h.logger.Error("Failed to record payment outcome",
				zap.String("reference", snap.Reference), zap.Error(err))
		}
	}

	h.reporter.ReportPayment(status, snap.OrderID, snap.Reference, snap.AmountMinorUnits, snap.Currency, message)
}

func sessionView(s checkout.PaymentSession) map[string]interface{} {
	return map[string]interface{}{
		"session_id":            s.ID,
		"order_id":              s.OrderID,
		"state":                 s.State,
		"reference":             s.Reference,
		"authorization_url":     s.AuthorizationURL,
		"verification_attempts": s.VerificationAttempts,
		"error_message":         s.ErrorMessage,
		"presumed":              s.Presumed,
	}
}
