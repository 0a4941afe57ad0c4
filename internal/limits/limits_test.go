package limits

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/config"
)

func testGuard(cfg config.AccountLimitsConfig) *Guard {
	return NewGuard(cfg, NewMemoryLedger())
}

func TestMonthlyCapEnforced(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {MonthlyFiatLimit: 1000},
		},
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	d, err := g.CheckAccountLimit(ctx, "binancep2p", 700, "", t0, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAccountLimit(ctx, "binancep2p", 400, "", t0.Add(time.Hour), true)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAccountLimit, d.Reason)
	assert.Equal(t, ScopeMonthly, d.Scope)

	// The next calendar month starts from zero, no carryover.
	nextMonth := time.Date(2026, time.April, 1, 0, 0, 1, 0, time.UTC)
	d, err = g.CheckAccountLimit(ctx, "binancep2p", 400, "", nextMonth, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDailyMethodCap(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {
				MonthlyFiatLimit: 100000,
				DailyMethodCaps:  map[string]float64{"MercadoPago": 500},
			},
		},
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC)

	d, err := g.CheckAccountLimit(ctx, "binancep2p", 450, "MercadoPago", t0, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAccountLimit(ctx, "binancep2p", 100, "MercadoPago", t0.Add(time.Minute), true)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeDaily, d.Scope)

	// A different payment method has no configured cap and passes.
	d, err = g.CheckAccountLimit(ctx, "binancep2p", 100, "Uala", t0.Add(time.Minute), true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The UTC day rolls over 30 minutes later.
	d, err = g.CheckAccountLimit(ctx, "binancep2p", 100, "MercadoPago", t0.Add(time.Hour), true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestDailyDenialDoesNotConsumeMonthly(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {
				MonthlyFiatLimit: 1000,
				DailyMethodCaps:  map[string]float64{"MercadoPago": 100},
			},
		},
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	// Monthly would fit, daily denies: nothing may be consumed.
	d, err := g.CheckAccountLimit(ctx, "binancep2p", 600, "MercadoPago", t0, true)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeDaily, d.Scope)

	// The full monthly cap is still available via an uncapped method.
	d, err = g.CheckAccountLimit(ctx, "binancep2p", 1000, "Uala", t0, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestNonConsumingCheckLeavesLedgerUntouched(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {MonthlyFiatLimit: 1000},
		},
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d, err := g.CheckAccountLimit(ctx, "binancep2p", 900, "", t0, false)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := g.CheckAccountLimit(ctx, "binancep2p", 900, "", t0, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCooldownBlocksRapidReuse(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {MonthlyFiatLimit: 10000},
		},
		CooldownSeconds: 300,
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	d, err := g.CheckAccountLimit(ctx, "binancep2p", 100, "", t0, true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAccountLimit(ctx, "binancep2p", 100, "", t0.Add(time.Minute), true)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCooldown, d.Reason)

	d, err = g.CheckAccountLimit(ctx, "binancep2p", 100, "", t0.Add(6*time.Minute), true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestUnknownVenueAlwaysAdmitted(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{})
	d, err := g.CheckAccountLimit(context.Background(), "kraken", 1e9, "", time.Now(), true)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConcurrentConsumeNeverOverCommits(t *testing.T) {
	g := testGuard(config.AccountLimitsConfig{
		Profiles: map[string]config.AccountLimitProfile{
			"binancep2p": {MonthlyFiatLimit: 1000},
		},
	})
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.CheckAccountLimit(ctx, "binancep2p", 100, "", t0, true)
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 50 concurrent 100-unit requests against a 1000 cap: exactly 10 win.
	assert.Equal(t, 10, admitted)
}
