package gateway

import "context"

// VerifyStatus is the gateway's view of a transaction.
type VerifyStatus string

const (
	StatusSuccess   VerifyStatus = "success"
	StatusPending   VerifyStatus = "pending"
	StatusFailed    VerifyStatus = "failed"
	StatusAbandoned VerifyStatus = "abandoned"
)

// InitializeRequest is the payload for a hosted checkout initialization.
type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"` // minor units
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference"` // candidate; gateway may override
	CallbackURL string                 `json:"callback_url"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Channels    []string               `json:"channels,omitempty"`
}

// InitializeResult contains the hosted checkout handle. Reference is the
// authoritative transaction reference, regardless of what was requested.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// VerifyResult contains the result of a transaction verification.
type VerifyResult struct {
	Status  VerifyStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Gateway defines the interface for hosted-checkout payment gateways.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// Initialize creates a hosted checkout session.
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)

	// Verify fetches the current status of a transaction.
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}
