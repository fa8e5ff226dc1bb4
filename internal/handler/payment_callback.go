package handler

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ronalking182/errandpay/internal/gateway"
	"github.com/ronalking182/errandpay/internal/models"
	"github.com/ronalking182/errandpay/internal/notify"
	"github.com/ronalking182/errandpay/internal/repository"
)

// PaymentCallbackHandler handles gateway server-to-server webhooks and the
// browser redirect landing page. Webhooks for live sessions are fed into the
// session pipeline; webhooks for sessions this process no longer holds are
// reconciled straight against the persisted rows.
type PaymentCallbackHandler struct {
	gw       gateway.Gateway
	sessions *repository.SessionRepository
	payments *repository.PaymentRepository
	registry SessionRegistry
	reporter *notify.Reporter
	logger   *zap.Logger
}

// SessionRegistry locates a live session pipeline by gateway reference.
type SessionRegistry interface {
	DeliverWebhook(reference string, payload []byte) bool
}

func NewPaymentCallbackHandler(
	gw gateway.Gateway,
	sessions *repository.SessionRepository,
	payments *repository.PaymentRepository,
	registry SessionRegistry,
	reporter *notify.Reporter,
	logger *zap.Logger,
) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		gw:       gw,
		sessions: sessions,
		payments: payments,
		registry: registry,
		reporter: reporter,
		logger:   logger,
	}
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// Webhook processes a gateway event. Always answers 2xx except for an
// unreadable body, so the gateway stops redelivering.
func (h *PaymentCallbackHandler) Webhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if payload.Data.Reference == "" {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	event := strings.ToLower(payload.Event)
	if event != "charge.success" && event != "transfer.success" {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	// A live session gets the event through its own pipeline: the synthetic
	// message classifies as success, which triggers the normal verify chain.
	synthetic, _ := json.Marshal(map[string]interface{}{
		"event": "success",
		"data":  map[string]string{"reference": payload.Data.Reference},
	})
	if h.registry != nil && h.registry.DeliverWebhook(payload.Data.Reference, synthetic) {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	// No live controller (restart, late delivery): reconcile directly.
	h.reconcile(c, payload.Data.Reference)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentCallbackHandler) reconcile(c echo.Context, reference string) {
	result, err := h.gw.Verify(c.Request().Context(), reference)
	if err != nil || result.Status != gateway.StatusSuccess {
		h.logger.Warn("Webhook reference did not verify as success",
			zap.String("reference", reference), zap.Error(err))
		return
	}

	row, err := h.sessions.FindByReference(reference)
	if err != nil {
		h.logger.Warn("Webhook for unknown reference", zap.String("reference", reference))
		return
	}

	if err := h.payments.Record(&models.PaymentRecord{
		SessionID:        row.ID,
		OrderID:          row.OrderID,
		Reference:        reference,
		AmountMinorUnits: row.AmountMinorUnits,
		Currency:         row.Currency,
		Channel:          row.Channel,
		Status:           models.PaymentStatusSuccess,
	}); err != nil {
		h.logger.Error("Failed to record webhook payment", zap.String("reference", reference), zap.Error(err))
		return
	}

	_ = h.sessions.Update(row.ID, map[string]interface{}{
		"state":    "success",
		"presumed": false,
	})

	h.reporter.ReportPayment(models.PaymentStatusSuccess, row.OrderID, reference,
		row.AmountMinorUnits, row.Currency, "confirmed by webhook")
	h.logger.Info("Payment reconciled from webhook", zap.String("reference", reference))
}

// CallbackPage is the browser landing page the gateway redirects to. The
// in-app surface classifies this navigation itself; this page only exists for
// users who end up in a real browser tab.
func (h *PaymentCallbackHandler) CallbackPage(c echo.Context) error {
	reference := c.QueryParam("trxref")
	if reference == "" {
		reference = c.QueryParam("reference")
	}

	title := "Payment received"
	message := "You can close this page and return to the app."
	if c.QueryParam("status") == "cancelled" || c.QueryParam("status") == "cancel" {
		title = "Payment cancelled"
		message = "No charge was made. You can return to the app."
	}

	return renderCallbackPage(c, title, message, reference)
}

var callbackTemplate = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, Helvetica, Arial, sans-serif; background: #f2f2f2; margin: 0; padding: 20px; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        .box { background: #fff; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); padding: 40px; text-align: center; max-width: 400px; width: 100%; }
        h1 { color: #333; margin-bottom: 20px; }
        p { color: #666; margin-bottom: 10px; }
    </style>
</head>
<body>
    <div class="box">
        <h1>{{.Title}}</h1>
        {{if .Reference}}<p>Reference: <span>{{.Reference}}</span></p>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>`))

func renderCallbackPage(c echo.Context, title, message, reference string) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return callbackTemplate.Execute(c.Response().Writer, map[string]interface{}{
		"Title":     title,
		"Message":   message,
		"Reference": reference,
	})
}
