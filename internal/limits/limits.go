package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
)

// Decision is the outcome of an admission check. Denials carry a
// human-readable reason and the scope of the exhausted cap; admission is
// never partial.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Details string `json:"details,omitempty"`
}

const (
	ReasonAccountLimit = "account_limit"
	ReasonCooldown     = "cooldown"

	ScopeMonthly = "monthly"
	ScopeDaily   = "daily"
)

// entry is one ledger line the store must check (and possibly consume)
// atomically with its siblings.
type entry struct {
	Key    string
	Amount float64
	Cap    float64
	Scope  string
	TTL    time.Duration
}

// violation reports which entry (or the cooldown) blocked admission.
type violation struct {
	Scope    string
	Key      string
	Consumed float64
	Cap      float64
	Cooldown bool
}

// Ledger is the storage behind the guard. Apply must check every entry
// against its cap and, when consume is set and all pass, apply every
// increment in the same atomic step. Two concurrent callers must never
// jointly over-consume a cap.
type Ledger interface {
	Apply(ctx context.Context, cooldownKey string, cooldown time.Duration, now time.Time, entries []entry, consume bool) (*violation, error)
}

// Guard enforces per-venue account limits: a monthly fiat cap, daily
// per-payment-method caps, and an optional cooldown between consumptions on
// the same venue. Period ledgers roll over on UTC calendar boundaries; a new
// month or day starts from zero with no carryover.
type Guard struct {
	cfg    config.AccountLimitsConfig
	ledger Ledger
}

// NewGuard creates a guard over the given ledger. Pass NewMemoryLedger for
// single-process deployments or NewRedisLedger to share caps across
// processes.
func NewGuard(cfg config.AccountLimitsConfig, ledger Ledger) *Guard {
	return &Guard{cfg: cfg, ledger: ledger}
}

// CheckAccountLimit decides whether consuming fiatAmount on the venue (via
// paymentMethod, which may be empty for non-P2P flows) fits within the
// configured caps. With consume set, a passing check updates the ledger in
// the same atomic step. A venue without a configured profile is always
// admitted.
func (g *Guard) CheckAccountLimit(ctx context.Context, venue string, fiatAmount float64, paymentMethod string, now time.Time, consume bool) (Decision, error) {
	profile, ok := g.cfg.Profiles[venue]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	if fiatAmount <= 0 {
		return Decision{Allowed: true}, nil
	}

	now = now.UTC()
	var entries []entry

	if profile.MonthlyFiatLimit > 0 {
		entries = append(entries, entry{
			Key:    fmt.Sprintf("limits:%s:monthly:%s", venue, now.Format("2006-01")),
			Amount: fiatAmount,
			Cap:    profile.MonthlyFiatLimit,
			Scope:  ScopeMonthly,
			TTL:    32 * 24 * time.Hour,
		})
	}
	if paymentMethod != "" {
		if dayCap, ok := profile.DailyMethodCaps[paymentMethod]; ok && dayCap > 0 {
			entries = append(entries, entry{
				Key:    fmt.Sprintf("limits:%s:daily:%s:%s", venue, paymentMethod, now.Format("2006-01-02")),
				Amount: fiatAmount,
				Cap:    dayCap,
				Scope:  ScopeDaily,
				TTL:    48 * time.Hour,
			})
		}
	}
	if len(entries) == 0 && g.cfg.CooldownSeconds <= 0 {
		return Decision{Allowed: true}, nil
	}

	// Cooldown is checked on every call; the timestamp advances only on a
	// passing consuming call.
	cooldown := time.Duration(g.cfg.CooldownSeconds) * time.Second
	cooldownKey := ""
	if cooldown > 0 {
		cooldownKey = fmt.Sprintf("limits:%s:cooldown", venue)
	}

	v, err := g.ledger.Apply(ctx, cooldownKey, cooldown, now, entries, consume)
	if err != nil {
		return Decision{}, fmt.Errorf("account limit check for %s: %w", venue, err)
	}
	if v == nil {
		return Decision{Allowed: true}, nil
	}
	if v.Cooldown {
		return Decision{
			Allowed: false,
			Reason:  ReasonCooldown,
			Details: fmt.Sprintf("venue %s in cooldown (%ds between consumptions)", venue, g.cfg.CooldownSeconds),
		}, nil
	}
	return Decision{
		Allowed: false,
		Reason:  ReasonAccountLimit,
		Scope:   v.Scope,
		Details: fmt.Sprintf("%s cap on %s: consumed %.2f of %.2f, requested %.2f", v.Scope, venue, v.Consumed, v.Cap, fiatAmount),
	}, nil
}
