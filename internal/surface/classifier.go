package surface

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Kind is the terminal meaning of an observed checkout signal.
type Kind string

const (
	KindSuccess   Kind = "success"
	KindCancelled Kind = "cancelled"
	KindError     Kind = "error"
	KindIgnore    Kind = "ignore"
)

// Classification is the outcome of classifying one navigation URL or one
// injected-script message.
type Classification struct {
	Kind      Kind
	Reference string // set on success
	Message   string // set on error
}

func ignore() Classification                  { return Classification{Kind: KindIgnore} }
func cancelled() Classification               { return Classification{Kind: KindCancelled} }
func success(reference string) Classification { return Classification{Kind: KindSuccess, Reference: reference} }
func failure(message string) Classification   { return Classification{Kind: KindError, Message: message} }

// closePatterns are hosted "close" pages the gateway redirects to when the
// checkout widget finishes. Reaching one without an explicit failure implies
// completion.
var closePatterns = []string{
	"paystack.co/close",
	"checkout.paystack.com/close",
}

// Classifier classifies navigation URLs and cross-context messages for one
// checkout session. The URL rules are an ordered table evaluated top to
// bottom; the first matching rule wins.
type Classifier struct {
	callbackDomain   string
	sessionReference string
	rules            []urlRule
}

type urlRule struct {
	name    string
	match   func(n *navigation) bool
	outcome func(n *navigation) Classification
}

// navigation is a pre-parsed view of an observed URL.
type navigation struct {
	raw   string
	lower string
	query url.Values
}

func NewClassifier(callbackDomain, sessionReference string) *Classifier {
	c := &Classifier{
		callbackDomain:   strings.ToLower(callbackDomain),
		sessionReference: sessionReference,
	}
	c.rules = []urlRule{
		{
			name: "callback success",
			match: func(n *navigation) bool {
				return c.onCallbackDomain(n) &&
					(n.query.Get("status") == "success" || strings.Contains(n.lower, "success"))
			},
			outcome: func(n *navigation) Classification {
				return success(c.referenceFrom(n))
			},
		},
		{
			name: "callback cancelled",
			match: func(n *navigation) bool {
				status := n.query.Get("status")
				return c.onCallbackDomain(n) && (status == "cancelled" || status == "cancel")
			},
			outcome: func(n *navigation) Classification { return cancelled() },
		},
		{
			name: "gateway close page",
			match: func(n *navigation) bool {
				for _, p := range closePatterns {
					if strings.Contains(n.lower, p) {
						return true
					}
				}
				return false
			},
			outcome: func(n *navigation) Classification {
				return success(c.sessionReference)
			},
		},
		{
			name: "cancel token",
			match: func(n *navigation) bool {
				return strings.Contains(n.lower, "cancel")
			},
			outcome: func(n *navigation) Classification { return cancelled() },
		},
		{
			name: "transaction reference",
			match: func(n *navigation) bool {
				return n.query.Get("trxref") != "" || n.query.Get("reference") != ""
			},
			outcome: func(n *navigation) Classification {
				return success(c.referenceFrom(n))
			},
		},
	}
	return c
}

// ClassifyURL classifies an observed navigation URL. Anything it cannot make
// sense of is an ignore: the hosted flow navigates through plenty of
// intermediate pages and a garbled event must not abort the session.
func (c *Classifier) ClassifyURL(rawURL string) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			result = ignore()
		}
	}()

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ignore()
	}

	n := &navigation{raw: rawURL, lower: strings.ToLower(rawURL)}
	if u, err := url.Parse(rawURL); err == nil {
		n.query = u.Query()
	} else {
		n.query = url.Values{}
	}

	for _, rule := range c.rules {
		if rule.match(n) {
			return rule.outcome(n)
		}
	}
	return ignore()
}

// hostedMessage covers both message protocols spoken by the injected script:
// the structured {event, data} form and the legacy flat {type, ...} form.
type hostedMessage struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Message   string `json:"message"`
	} `json:"data"`

	Type      string `json:"type"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// ClassifyMessage classifies a cross-context message from the hosted page.
// Messages carry explicit intent, so they take precedence over URL heuristics
// at the controller level.
func (c *Classifier) ClassifyMessage(payload []byte) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			result = ignore()
		}
	}()

	var msg hostedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ignore()
	}

	switch strings.ToLower(strings.TrimSpace(msg.Event)) {
	case "success":
		ref := msg.Data.Reference
		if ref == "" {
			ref = c.sessionReference
		}
		return success(ref)
	case "cancelled", "cancel":
		return cancelled()
	case "error":
		return failure(nonEmpty(msg.Data.Message, "Payment failed"))
	}

	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "payment_success":
		ref := msg.Reference
		if ref == "" {
			ref = c.sessionReference
		}
		return success(ref)
	case "payment_cancelled":
		return cancelled()
	case "payment_error":
		return failure(nonEmpty(msg.Message, "Payment failed"))
	}

	return ignore()
}

func (c *Classifier) onCallbackDomain(n *navigation) bool {
	return c.callbackDomain != "" && strings.Contains(n.lower, c.callbackDomain)
}

// referenceFrom prefers the reference carried in the URL itself and falls
// back to the session's own reference.
func (c *Classifier) referenceFrom(n *navigation) string {
	if v := n.query.Get("trxref"); v != "" {
		return v
	}
	if v := n.query.Get("reference"); v != "" {
		return v
	}
	return c.sessionReference
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
