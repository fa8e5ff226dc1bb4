package notify

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Reporter posts payment reports to the ops Telegram channel. A zero-config
// reporter is a no-op, so callers never have to branch on whether ops
// reporting is wired up.
type Reporter struct {
	chatID string
	client *resty.Client
	logger *zap.Logger
}

func NewReporter(token, chatID string, logger *zap.Logger) *Reporter {
	r := &Reporter{chatID: chatID, logger: logger}
	if token != "" && chatID != "" {
		r.client = resty.New().SetBaseURL("https://api.telegram.org/bot" + token)
	}
	return r
}

// ReportPayment posts one terminal payment outcome to the ops channel.
func (r *Reporter) ReportPayment(status, orderID, reference string, amountMinorUnits int64, currency, detail string) {
	text := fmt.Sprintf(
		"💵 Payment %s\n\nOrder: %s\nReference: %s\nAmount: %.2f %s",
		status, orderID, reference, float64(amountMinorUnits)/100, currency,
	)
	if detail != "" {
		text += "\nDetail: " + detail
	}
	r.send(text)
}

func (r *Reporter) send(text string) {
	if r.client == nil {
		return
	}
	_, err := r.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id":    r.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		r.logger.Warn("Failed to send ops report", zap.Error(err))
	}
}
