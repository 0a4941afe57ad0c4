package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Degradation alert defaults.
const (
	DegradedErrorRate = 0.5
	AlertDebounce     = 600 * time.Second
)

// Alert describes a degraded quote source.
type Alert struct {
	Source    string    `json:"source"`
	Reason    string    `json:"reason"`
	ErrorRate float64   `json:"error_rate"`
	At        time.Time `json:"at"`
}

const ReasonHighErrorRate = "high_error_rate"

// DegradationNotifier emits an alert when a source's error rate crosses the
// configured threshold, at most once per (source, reason) per debounce
// window. Repeated unhealthy states never spam.
type DegradationNotifier struct {
	mu        sync.Mutex
	store     *Store
	threshold float64
	debounce  time.Duration
	lastFired map[string]time.Time
	sink      func(Alert)
}

// NewDegradationNotifier wires a notifier to a store. sink may be nil, in
// which case alerts only go to the log.
func NewDegradationNotifier(store *Store, sink func(Alert)) *DegradationNotifier {
	return &DegradationNotifier{
		store:     store,
		threshold: DegradedErrorRate,
		debounce:  AlertDebounce,
		lastFired: make(map[string]time.Time),
		sink:      sink,
	}
}

// Check inspects one source and fires an alert if it is degraded and the
// debounce window for (source, reason) has passed.
func (n *DegradationNotifier) Check(source string) {
	n.checkAt(source, time.Now())
}

func (n *DegradationNotifier) checkAt(source string, now time.Time) {
	rate := n.store.ErrorRate(source)
	if rate < n.threshold {
		return
	}

	key := source + "|" + ReasonHighErrorRate
	n.mu.Lock()
	last, seen := n.lastFired[key]
	if seen && now.Sub(last) < n.debounce {
		n.mu.Unlock()
		return
	}
	n.lastFired[key] = now
	n.mu.Unlock()

	alert := Alert{Source: source, Reason: ReasonHighErrorRate, ErrorRate: rate, At: now}
	log.Warn().
		Str("source", source).
		Str("reason", alert.Reason).
		Float64("error_rate", rate).
		Msg("quote source degraded")
	if n.sink != nil {
		n.sink(alert)
	}
}

// CheckAll runs Check for every source currently tracked by the store.
func (n *DegradationNotifier) CheckAll() {
	for source := range n.store.Snapshot() {
		n.Check(source)
	}
}
