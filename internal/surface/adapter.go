package surface

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Capability selects which surface implementation hosts the checkout page.
type Capability string

const (
	// CapabilityEmbedded is the in-app browsing surface used on mobile.
	CapabilityEmbedded Capability = "embedded"
	// CapabilityWindow is the separate popup window used on web.
	CapabilityWindow Capability = "window"
)

// Sink receives classified events from an adapter. Adapters are pure
// producers: they never touch session state themselves.
type Sink interface {
	HandleClassified(Classification)
	HandleFallbackTimeout()
}

// Adapter hosts the gateway's authorization URL and classifies every
// observable signal from it. Implementations share one classification
// contract and differ only in what the platform lets them observe.
type Adapter interface {
	Mount(authorizationURL string)
	ObserveNavigation(rawURL string)
	ObserveMessage(payload []byte)
	ObserveLoadError(statusCode int)
	// ObserveClosed reports that the hosting surface disappeared on its own
	// (popup closed by the user). Distinct from an explicit session close.
	ObserveClosed()
	Unmount()
}

// New selects the adapter implementation for the given platform capability.
func New(capability Capability, classifier *Classifier, sink Sink, fallbackAfter time.Duration, logger *zap.Logger) Adapter {
	if capability == CapabilityWindow {
		a := &windowAdapter{}
		a.init(classifier, sink, fallbackAfter, logger)
		return a
	}
	a := &embeddedAdapter{}
	a.init(classifier, sink, fallbackAfter, logger)
	return a
}

// baseAdapter carries the shared fallback timer and single-delivery latch.
type baseAdapter struct {
	classifier    *Classifier
	sink          Sink
	fallbackAfter time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	mounted  bool
	terminal bool
	fallback *time.Timer
}

// init sets the shared fields in place; baseAdapter must never be copied
// once created because it embeds a sync.Mutex.
func (a *baseAdapter) init(classifier *Classifier, sink Sink, fallbackAfter time.Duration, logger *zap.Logger) {
	a.classifier = classifier
	a.sink = sink
	a.fallbackAfter = fallbackAfter
	a.logger = logger
}

func (a *baseAdapter) Mount(authorizationURL string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mounted {
		return
	}
	a.mounted = true
	a.terminal = false
	if a.fallbackAfter > 0 {
		a.fallback = time.AfterFunc(a.fallbackAfter, a.fireFallback)
	}
	a.logger.Debug("Surface mounted", zap.String("url", authorizationURL))
}

func (a *baseAdapter) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mounted = false
	a.stopFallbackLocked()
}

func (a *baseAdapter) ObserveNavigation(rawURL string) {
	a.deliver(a.classifier.ClassifyURL(rawURL))
}

func (a *baseAdapter) ObserveMessage(payload []byte) {
	a.deliver(a.classifier.ClassifyMessage(payload))
}

func (a *baseAdapter) ObserveLoadError(statusCode int) {
	if statusCode < 400 {
		return
	}
	a.deliver(failure("Payment service unavailable"))
}

// deliver forwards a terminal classification to the sink exactly once and
// cancels the fallback timer. Ignores are dropped here.
func (a *baseAdapter) deliver(c Classification) {
	if c.Kind == KindIgnore {
		return
	}

	a.mu.Lock()
	if !a.mounted || a.terminal {
		a.mu.Unlock()
		return
	}
	a.terminal = true
	a.stopFallbackLocked()
	a.mu.Unlock()

	a.sink.HandleClassified(c)
}

func (a *baseAdapter) fireFallback() {
	a.mu.Lock()
	if !a.mounted || a.terminal {
		a.mu.Unlock()
		return
	}
	a.terminal = true
	a.mu.Unlock()

	a.sink.HandleFallbackTimeout()
}

func (a *baseAdapter) stopFallbackLocked() {
	if a.fallback != nil {
		a.fallback.Stop()
		a.fallback = nil
	}
}

// embeddedAdapter observes the full navigation stream of the in-app browsing
// surface plus injected-script messages.
type embeddedAdapter struct {
	baseAdapter
}

// ObserveClosed is a no-op on the embedded surface: dismissing the in-app
// view is reported through the session's explicit close instead.
func (a *embeddedAdapter) ObserveClosed() {}

// windowAdapter observes a separate popup window. Cross-origin pages hide
// their URLs, so only callback-domain and close-page navigations reach it;
// the window vanishing without a terminal signal means the user abandoned it.
type windowAdapter struct {
	baseAdapter
}

func (a *windowAdapter) ObserveClosed() {
	a.deliver(cancelled())
}
