package metrics

import (
	"sync"
	"time"
)

// Breaker defaults; overridable through StoreConfig.
const (
	CircuitFailureThreshold = 3
	CircuitCooldown         = 60 * time.Second
)

// StoreConfig tunes circuit breaker behavior for all sources in a store.
type StoreConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// DefaultStoreConfig returns the standard breaker settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		FailureThreshold: CircuitFailureThreshold,
		Cooldown:         CircuitCooldown,
	}
}

// sourceRecord is the per-source mutable state. Guarded by the store mutex.
type sourceRecord struct {
	attempts            int64
	successes           int64
	errors              int64
	skips               int64
	consecutiveFailures int
	circuitOpenedAt     time.Time
	lastError           string
	lastErrorAt         time.Time
	lastSuccessAt       time.Time
}

// SourceSnapshot is a deep, independent copy of one source's counters.
type SourceSnapshot struct {
	Source              string    `json:"source"`
	Attempts            int64     `json:"attempts"`
	Successes           int64     `json:"successes"`
	Errors              int64     `json:"errors"`
	Skips               int64     `json:"skips"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ErrorRate           float64   `json:"error_rate"`
	CircuitOpen         bool      `json:"circuit_open"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
}

// Store keeps per-source attempt/success/error/skip counters and circuit
// breaker state. One instance per process, injected into acquisition; Reset
// exists so tests get a clean slate. All mutation happens under a single
// mutex, counters are monotonically non-decreasing until an explicit reset,
// and breaker transitions are linearizable per source.
type Store struct {
	mu      sync.Mutex
	cfg     StoreConfig
	sources map[string]*sourceRecord
	prom    *promCollectors
}

// NewStore creates a metrics store with the given breaker configuration.
func NewStore(cfg StoreConfig) *Store {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = CircuitFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = CircuitCooldown
	}
	return &Store{
		cfg:     cfg,
		sources: make(map[string]*sourceRecord),
	}
}

func (s *Store) record(source string) *sourceRecord {
	rec, ok := s.sources[source]
	if !ok {
		rec = &sourceRecord{}
		s.sources[source] = rec
	}
	return rec
}

// RecordAttempt counts one attempted call against a source.
func (s *Store) RecordAttempt(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(source).attempts++
	s.promInc(source, outcomeAttempt)
}

// RecordSuccess counts a successful call and clears the consecutive-failure
// streak.
func (s *Store) RecordSuccess(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(source)
	rec.successes++
	rec.consecutiveFailures = 0
	rec.lastSuccessAt = time.Now()
	s.promInc(source, outcomeSuccess)
}

// RecordError counts a failed call. Reaching the failure threshold opens the
// source's circuit for the configured cooldown.
func (s *Store) RecordError(source string, detail string) {
	s.recordErrorAt(source, detail, time.Now())
}

func (s *Store) recordErrorAt(source, detail string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(source)
	rec.errors++
	rec.consecutiveFailures++
	rec.lastError = detail
	rec.lastErrorAt = now
	if rec.consecutiveFailures >= s.cfg.FailureThreshold && rec.circuitOpenedAt.IsZero() {
		rec.circuitOpenedAt = now
		s.promCircuit(source, true)
	}
	s.promInc(source, outcomeError)
}

// RecordSkip counts a call suppressed by an open circuit. Skips do not count
// as attempts.
func (s *Store) RecordSkip(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(source).skips++
	s.promInc(source, outcomeSkip)
}

// IsCircuitOpen reports whether calls to the source should be skipped. Once
// the cooldown has elapsed the breaker auto-resets to closed on this check
// and the consecutive-failure streak starts over; there is no probing
// half-open state.
func (s *Store) IsCircuitOpen(source string) bool {
	return s.isCircuitOpenAt(source, time.Now())
}

func (s *Store) isCircuitOpenAt(source string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sources[source]
	if !ok || rec.circuitOpenedAt.IsZero() {
		return false
	}
	if now.Sub(rec.circuitOpenedAt) >= s.cfg.Cooldown {
		rec.circuitOpenedAt = time.Time{}
		rec.consecutiveFailures = 0
		s.promCircuit(source, false)
		return false
	}
	return true
}

// ErrorRate returns errors/attempts for a source, 0 when nothing was tried.
func (s *Store) ErrorRate(source string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sources[source]
	if !ok || rec.attempts == 0 {
		return 0
	}
	return float64(rec.errors) / float64(rec.attempts)
}

// Snapshot returns deep copies of every source's counters, taken under a
// single lock acquisition so the multi-field view is consistent.
func (s *Store) Snapshot() map[string]SourceSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]SourceSnapshot, len(s.sources))
	for name, rec := range s.sources {
		var rate float64
		if rec.attempts > 0 {
			rate = float64(rec.errors) / float64(rec.attempts)
		}
		out[name] = SourceSnapshot{
			Source:              name,
			Attempts:            rec.attempts,
			Successes:           rec.successes,
			Errors:              rec.errors,
			Skips:               rec.skips,
			ConsecutiveFailures: rec.consecutiveFailures,
			ErrorRate:           rate,
			CircuitOpen:         !rec.circuitOpenedAt.IsZero() && now.Sub(rec.circuitOpenedAt) < s.cfg.Cooldown,
			LastError:           rec.lastError,
			LastErrorAt:         rec.lastErrorAt,
			LastSuccessAt:       rec.lastSuccessAt,
		}
	}
	return out
}

// Reset clears all counters and breaker state. Operator action, also used by
// tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = make(map[string]*sourceRecord)
}
