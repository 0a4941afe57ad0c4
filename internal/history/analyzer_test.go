package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siberianok/arbitrage-telebot-sub000/internal/model"
)

type rowsFunc func(ctx context.Context) ([]Row, error)

func (f rowsFunc) Rows(ctx context.Context) ([]Row, error) { return f(ctx) }

func sampleRows() []Row {
	base := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	var rows []Row
	// Six realized cross-spot BTC/USDT rows: modeled 1.0, realized 0.8.
	for i := 0; i < 6; i++ {
		rows = append(rows, Row{
			Timestamp:           base.Add(time.Duration(i) * time.Hour),
			Strategy:            model.StrategyCrossSpot,
			Pair:                "BTC/USDT",
			NetPercent:          1.0,
			EffectiveNetPercent: 0.8,
			HasOutcome:          true,
		})
	}
	// Two detection-only rows on another pair.
	rows = append(rows, Row{
		Timestamp:  base.Add(10 * time.Hour),
		Strategy:   model.StrategyCrossSpot,
		Pair:       "ETH/USDT",
		NetPercent: 0.4,
	}, Row{
		Timestamp:  base.Add(11 * time.Hour),
		Strategy:   model.StrategyCrossSpot,
		Pair:       "ETH/USDT",
		NetPercent: 0.6,
	})
	return rows
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	a := NewAnalyzer(rowsFunc(func(context.Context) ([]Row, error) {
		return sampleRows(), nil
	}), 5, 0)

	snap, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, 8, snap.RowsConsidered)
	assert.InDelta(t, 1.0, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.8, snap.AverageEffectivePercent, 1e-9)

	bucket := model.ThresholdContext{Strategy: model.StrategyCrossSpot, Pair: "BTC/USDT"}.Bucket()
	m, ok := snap.BucketMetrics[bucket]
	require.True(t, ok)
	assert.Equal(t, 6, m.Samples)
	assert.InDelta(t, 1.0, m.HitRateReal, 1e-9)
	assert.InDelta(t, 0.2, m.AvgSlippageDrawdownPercent, 1e-9)

	// Six realized samples clears the minimum; a bucket threshold exists.
	_, ok = snap.ContextThresholds[bucket]
	assert.True(t, ok)

	// The ETH bucket has no realized outcomes and must not steer.
	ethBucket := model.ThresholdContext{Strategy: model.StrategyCrossSpot, Pair: "ETH/USDT"}.Bucket()
	_, ok = snap.ContextThresholds[ethBucket]
	assert.False(t, ok)

	series := snap.PairSeries("ETH/USDT")
	assert.Equal(t, []float64{0.4, 0.6}, series)
	series[0] = 99 // a copy, not the snapshot's backing slice
	assert.Equal(t, []float64{0.4, 0.6}, snap.PairSeries("ETH/USDT"))

	// No capital figure configured, so no quote-currency estimates.
	assert.Zero(t, snap.AverageProfitQuote)
	assert.Zero(t, snap.AverageRealizedProfitQuote)
}

func TestProfitEstimatesScaleWithCapital(t *testing.T) {
	a := NewAnalyzer(rowsFunc(func(context.Context) ([]Row, error) {
		return sampleRows(), nil
	}), 5, 2000)

	snap, err := a.Refresh(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 2000*snap.AverageNetPercent/100, snap.AverageProfitQuote, 1e-9)
	assert.InDelta(t, 2000*0.8/100, snap.AverageRealizedProfitQuote, 1e-9)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	calls := 0
	a := NewAnalyzer(rowsFunc(func(context.Context) ([]Row, error) {
		calls++
		if calls == 1 {
			return sampleRows(), nil
		}
		return nil, errors.New("log corrupted")
	}), 5, 0)

	first, err := a.Refresh(context.Background())
	require.NoError(t, err)

	second, err := a.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, a.Snapshot())
}

func TestResolveThresholdForContext(t *testing.T) {
	a := NewAnalyzer(rowsFunc(func(context.Context) ([]Row, error) { return nil, nil }), 5, 0)

	tc := model.ThresholdContext{Strategy: model.StrategyCrossSpot, Pair: "BTC/USDT"}
	a.snapshot = &Analysis{ContextThresholds: map[string]float64{tc.Bucket(): 0.65}}

	// Exact bucket wins over any defaults.
	assert.InDelta(t, 0.65, a.ResolveThresholdForContext(tc, 1.5, 2.0), 1e-9)
	assert.InDelta(t, 0.65, a.ResolveThresholdForContext(tc, 0, 0.2), 1e-9)

	// Unseen context: dynamic default first, else static unchanged.
	unseen := model.ThresholdContext{Strategy: model.StrategyCrossSpot, Pair: "DOGE/USDT"}
	assert.InDelta(t, 1.5, a.ResolveThresholdForContext(unseen, 1.5, 2.0), 1e-9)
	assert.InDelta(t, 2.0, a.ResolveThresholdForContext(unseen, 0, 2.0), 1e-9)
}

func TestResolveThresholdAppliesRiskyFloor(t *testing.T) {
	a := NewAnalyzer(rowsFunc(func(context.Context) ([]Row, error) { return nil, nil }), 5, 0)

	tc := model.ThresholdContext{Strategy: model.StrategyRoundtrip, Pair: "USDT/ARS", Fiat: "ARS"}
	// The bucket learned an aggressive 0.1; the floor holds.
	a.snapshot = &Analysis{ContextThresholds: map[string]float64{tc.Bucket(): 0.1}}
	got := a.ResolveThresholdForContext(tc, 0, 0.2)
	assert.InDelta(t, riskyRouteFloors[model.StrategyRoundtrip], got, 1e-9)
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.csv")
	data := "timestamp,strategy,pair,fiat,net_percent,effective_net_percent\n" +
		"2026-02-01T00:00:00Z,cross_spot,BTC/USDT,,1.25,0.9\n" +
		"2026-02-01T01:00:00Z,fiat_roundtrip,USDT/ARS,ARS,2.1,\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rows, err := CSVSource{Path: path}.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "cross_spot", rows[0].Strategy)
	assert.True(t, rows[0].HasOutcome)
	assert.InDelta(t, 0.9, rows[0].EffectiveNetPercent, 1e-9)

	assert.Equal(t, "ARS", rows[1].Fiat)
	assert.False(t, rows[1].HasOutcome)
}

func TestCSVSourceMissingFileIsEmptyHistory(t *testing.T) {
	rows, err := CSVSource{Path: filepath.Join(t.TempDir(), "nope.csv")}.Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCSVSourceMalformedRowErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.csv")
	require.NoError(t, os.WriteFile(path, []byte("not-a-timestamp,cross_spot,BTC/USDT,,abc\n"), 0o644))

	_, err := CSVSource{Path: path}.Rows(context.Background())
	assert.Error(t, err)
}
