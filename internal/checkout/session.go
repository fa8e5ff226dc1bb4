package checkout

// State is the controller's position in the session lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StateInitializing       State = "initializing"
	StateAwaitingCompletion State = "awaiting_completion"
	StateVerifying          State = "verifying"
	StateSuccess            State = "success"
	StateFailure            State = "failure"
)

// Terminal reports whether the state is one-way until an explicit reset.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Channel is the payment method selected before initialization.
type Channel string

const (
	ChannelCard         Channel = "card"
	ChannelBankTransfer Channel = "bank_transfer"
	ChannelUSSD         Channel = "ussd"
	ChannelBank         Channel = "bank"
)

// Valid reports whether the channel is one the gateway accepts.
func (c Channel) Valid() bool {
	switch c {
	case ChannelCard, ChannelBankTransfer, ChannelUSSD, ChannelBank:
		return true
	}
	return false
}

// Customer carries the contact fields passed through to the gateway. Never
// mutated by the payment pipeline.
type Customer struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// OrderSummary is what the rest of the app hands the payment pipeline.
type OrderSummary struct {
	OrderID          string   `json:"order_id"`
	AmountMinorUnits int64    `json:"amount_minor_units"`
	Currency         string   `json:"currency"`
	Customer         Customer `json:"customer"`
}

// PaymentSession is the per-checkout-attempt record. Reference and
// AuthorizationURL are write-once for the session lifetime; all mutation
// happens inside the controller.
type PaymentSession struct {
	ID                   string   `json:"id"`
	OrderID              string   `json:"order_id"`
	AmountMinorUnits     int64    `json:"amount_minor_units"`
	Currency             string   `json:"currency"`
	Customer             Customer `json:"customer"`
	Channel              Channel  `json:"channel"`
	Reference            string   `json:"reference"`
	AuthorizationURL     string   `json:"authorization_url"`
	State                State    `json:"state"`
	VerificationAttempts int      `json:"verification_attempts"`
	ErrorMessage         string   `json:"error_message,omitempty"`

	// Presumed marks a success resolved by policy (fallback timeout or
	// exhausted verification retries) rather than a confirmed gateway status.
	Presumed bool `json:"presumed,omitempty"`
}
