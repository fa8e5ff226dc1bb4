package surface

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSink collects every delivery the adapter lets through.
type recordingSink struct {
	mu        sync.Mutex
	delivered []Classification
	timeouts  int
}

func (s *recordingSink) HandleClassified(c Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, c)
}

func (s *recordingSink) HandleFallbackTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts++
}

func (s *recordingSink) snapshot() ([]Classification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Classification(nil), s.delivered...), s.timeouts
}

func newMountedAdapter(t *testing.T, capability Capability, fallback time.Duration) (Adapter, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	a := New(capability, newTestClassifier(), sink, fallback, zap.NewNop())
	a.Mount("https://checkout.paystack.com/abc123")
	return a, sink
}

func TestAdapter_DeliversTerminalOnce(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, time.Minute)

	a.ObserveNavigation("https://checkout.paystack.com/step2")
	a.ObserveNavigation("https://checkout.paystack.com/close")
	a.ObserveNavigation("https://errandpay.app/payment/callback?status=cancelled")

	delivered, timeouts := sink.snapshot()
	require.Len(t, delivered, 1)
	assert.Equal(t, KindSuccess, delivered[0].Kind)
	assert.Zero(t, timeouts)
}

func TestAdapter_IgnoresBeforeMount(t *testing.T) {
	sink := &recordingSink{}
	a := New(CapabilityEmbedded, newTestClassifier(), sink, time.Minute, zap.NewNop())

	a.ObserveNavigation("https://checkout.paystack.com/close")

	delivered, _ := sink.snapshot()
	assert.Empty(t, delivered)
}

func TestAdapter_NothingAfterUnmount(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, time.Minute)

	a.Unmount()
	a.ObserveNavigation("https://checkout.paystack.com/close")
	a.ObserveMessage([]byte(`{"event":"success","data":{"reference":"r"}}`))

	delivered, timeouts := sink.snapshot()
	assert.Empty(t, delivered)
	assert.Zero(t, timeouts)
}

func TestAdapter_LoadErrorThreshold(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, time.Minute)

	a.ObserveLoadError(302)
	delivered, _ := sink.snapshot()
	assert.Empty(t, delivered)

	a.ObserveLoadError(503)
	delivered, _ = sink.snapshot()
	require.Len(t, delivered, 1)
	assert.Equal(t, KindError, delivered[0].Kind)
	assert.Equal(t, "Payment service unavailable", delivered[0].Message)
}

func TestAdapter_FallbackTimerFires(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, 10*time.Millisecond)
	defer a.Unmount()

	require.Eventually(t, func() bool {
		_, timeouts := sink.snapshot()
		return timeouts == 1
	}, time.Second, 5*time.Millisecond)

	// A late signal after the timeout is dropped by the terminal latch.
	a.ObserveNavigation("https://checkout.paystack.com/close")
	delivered, timeouts := sink.snapshot()
	assert.Empty(t, delivered)
	assert.Equal(t, 1, timeouts)
}

func TestAdapter_TerminalSignalStopsFallback(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, 20*time.Millisecond)

	a.ObserveMessage([]byte(`{"event":"cancelled"}`))
	time.Sleep(50 * time.Millisecond)

	delivered, timeouts := sink.snapshot()
	require.Len(t, delivered, 1)
	assert.Equal(t, KindCancelled, delivered[0].Kind)
	assert.Zero(t, timeouts)
}

func TestEmbeddedAdapter_ClosedIsNoop(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityEmbedded, time.Minute)

	a.ObserveClosed()

	delivered, _ := sink.snapshot()
	assert.Empty(t, delivered)
}

func TestWindowAdapter_ClosedMeansCancelled(t *testing.T) {
	a, sink := newMountedAdapter(t, CapabilityWindow, time.Minute)

	a.ObserveClosed()

	delivered, _ := sink.snapshot()
	require.Len(t, delivered, 1)
	assert.Equal(t, KindCancelled, delivered[0].Kind)
}
