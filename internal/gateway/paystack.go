package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ronalking182/errandpay/internal/pkg/httpclient"
)

// PaystackGateway implements the Gateway interface for a Paystack-style
// hosted checkout API.
type PaystackGateway struct {
	baseURL   string
	secretKey string
	client    *httpclient.Client
}

func NewPaystackGateway(baseURL, secretKey string) *PaystackGateway {
	return &PaystackGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client: httpclient.New().
			WithTimeout(30 * time.Second).
			WithBearerToken(secretKey).
			WithHeader("Content-Type", "application/json"),
	}
}

func (p *PaystackGateway) Name() string {
	return "paystack"
}

func (p *PaystackGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	resp, err := p.client.Request().
		SetContext(ctx).
		SetBody(req).
		Post(p.baseURL + "/payment/initialize")
	if err != nil {
		return nil, &NetworkError{Op: "initialize", Err: err}
	}

	if resp.StatusCode() >= 500 {
		return nil, &ServerError{StatusCode: resp.StatusCode()}
	}
	if resp.StatusCode() >= 400 {
		return nil, &GatewayDeclineError{
			StatusCode: resp.StatusCode(),
			Message:    extractErrorMessage(resp.Body()),
		}
	}

	var result InitializeResult
	if err := json.Unmarshal(unwrapData(resp.Body()), &result); err != nil {
		return nil, &InitializationError{Message: "unexpected response format"}
	}
	if result.AuthorizationURL == "" || result.Reference == "" {
		return nil, &InitializationError{Message: "no authorization url returned"}
	}

	return &result, nil
}

func (p *PaystackGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	resp, err := p.client.Request().
		SetContext(ctx).
		Get(p.baseURL + "/payment/verify/" + reference)
	if err != nil {
		return nil, &NetworkError{Op: "verify", Err: err}
	}

	if resp.StatusCode() >= 500 {
		return nil, &ServerError{StatusCode: resp.StatusCode()}
	}
	if resp.StatusCode() >= 400 {
		return nil, &GatewayDeclineError{
			StatusCode: resp.StatusCode(),
			Message:    extractErrorMessage(resp.Body()),
		}
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(unwrapData(resp.Body()), &payload); err != nil {
		return nil, &NetworkError{Op: "verify", Err: err}
	}

	return &VerifyResult{
		Status:  normalizeStatus(payload.Status),
		Message: payload.Message,
	}, nil
}

// unwrapData returns the "data" object when the body uses an envelope,
// otherwise the body as-is.
func unwrapData(body []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data
	}
	return body
}

// extractErrorMessage digs the human-readable message out of an error body,
// accepting both {"error":{"message":...}} and {"message":...} shapes.
func extractErrorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Error.Message != "" {
			return nested.Error.Message
		}
		if nested.Message != "" {
			return nested.Message
		}
	}
	return http.StatusText(http.StatusBadRequest)
}

func normalizeStatus(raw string) VerifyStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return StatusSuccess
	case "pending", "queued", "ongoing", "processing", "send_otp", "pay_offline":
		return StatusPending
	case "abandoned":
		return StatusAbandoned
	default:
		return StatusFailed
	}
}
