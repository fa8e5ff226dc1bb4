package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier() *Classifier {
	return NewClassifier("errandpay.app", "errand_123_abc")
}

func TestClassifyURL_CallbackSuccess(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyURL("https://errandpay.app/payment/callback?status=success&trxref=ref_42")
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "ref_42", got.Reference)
}

func TestClassifyURL_CallbackSuccessWithoutReference(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyURL("https://errandpay.app/payment/success")
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "errand_123_abc", got.Reference)
}

func TestClassifyURL_CallbackCancelled(t *testing.T) {
	c := newTestClassifier()

	for _, u := range []string{
		"https://errandpay.app/payment/callback?status=cancelled",
		"https://errandpay.app/payment/callback?status=cancel",
	} {
		got := c.ClassifyURL(u)
		assert.Equal(t, KindCancelled, got.Kind, u)
	}
}

func TestClassifyURL_GatewayClosePage(t *testing.T) {
	c := newTestClassifier()

	for _, u := range []string{
		"https://standard.paystack.co/close",
		"https://checkout.paystack.com/close",
	} {
		got := c.ClassifyURL(u)
		require.Equal(t, KindSuccess, got.Kind, u)
		assert.Equal(t, "errand_123_abc", got.Reference, u)
	}
}

func TestClassifyURL_CancelToken(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyURL("https://checkout.paystack.com/cancel?ref=xyz")
	assert.Equal(t, KindCancelled, got.Kind)
}

func TestClassifyURL_TransactionReference(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyURL("https://somebank.com/3ds/return?trxref=ref_77")
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "ref_77", got.Reference)

	got = c.ClassifyURL("https://somebank.com/3ds/return?reference=ref_88")
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "ref_88", got.Reference)
}

func TestClassifyURL_RuleOrder(t *testing.T) {
	c := newTestClassifier()

	// Callback rules outrank the generic cancel token.
	got := c.ClassifyURL("https://errandpay.app/payment/callback?status=success&from=cancel_page")
	assert.Equal(t, KindSuccess, got.Kind)

	// Close page outranks the trailing reference rule.
	got = c.ClassifyURL("https://checkout.paystack.com/close?reference=other")
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "errand_123_abc", got.Reference)
}

func TestClassifyURL_Intermediate(t *testing.T) {
	c := newTestClassifier()

	for _, u := range []string{
		"https://checkout.paystack.com/abc123",
		"https://somebank.com/3ds/challenge",
		"about:blank",
		"",
		"   ",
		"::not a url::",
	} {
		got := c.ClassifyURL(u)
		assert.Equal(t, KindIgnore, got.Kind, u)
	}
}

func TestClassifyMessage_StructuredProtocol(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyMessage([]byte(`{"event":"success","data":{"reference":"ref_9"}}`))
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "ref_9", got.Reference)

	got = c.ClassifyMessage([]byte(`{"event":"success","data":{}}`))
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "errand_123_abc", got.Reference)

	got = c.ClassifyMessage([]byte(`{"event":"cancelled"}`))
	assert.Equal(t, KindCancelled, got.Kind)

	got = c.ClassifyMessage([]byte(`{"event":"cancel"}`))
	assert.Equal(t, KindCancelled, got.Kind)

	got = c.ClassifyMessage([]byte(`{"event":"error","data":{"message":"Card declined"}}`))
	require.Equal(t, KindError, got.Kind)
	assert.Equal(t, "Card declined", got.Message)

	got = c.ClassifyMessage([]byte(`{"event":"error","data":{}}`))
	require.Equal(t, KindError, got.Kind)
	assert.Equal(t, "Payment failed", got.Message)
}

func TestClassifyMessage_LegacyProtocol(t *testing.T) {
	c := newTestClassifier()

	got := c.ClassifyMessage([]byte(`{"type":"payment_success","reference":"ref_5"}`))
	require.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "ref_5", got.Reference)

	got = c.ClassifyMessage([]byte(`{"type":"payment_cancelled"}`))
	assert.Equal(t, KindCancelled, got.Kind)

	got = c.ClassifyMessage([]byte(`{"type":"payment_error","message":"Insufficient funds"}`))
	require.Equal(t, KindError, got.Kind)
	assert.Equal(t, "Insufficient funds", got.Message)
}

func TestClassifyMessage_Garbage(t *testing.T) {
	c := newTestClassifier()

	for _, payload := range []string{
		`not json at all`,
		`{"event":"heartbeat"}`,
		`{"type":"resize","height":620}`,
		`{}`,
		``,
		`42`,
	} {
		got := c.ClassifyMessage([]byte(payload))
		assert.Equal(t, KindIgnore, got.Kind, payload)
	}
}
