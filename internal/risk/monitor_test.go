package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"main/internal/portfolio"
	"main/internal/schema"
)

func monitor(t *testing.T, threshold string) *Monitor {
	t.Helper()
	m, err := NewMonitor(decimal.RequireFromString(threshold))
	require.NoError(t, err)
	return m
}

func snapWith(t *testing.T, positions ...schema.Position) portfolio.Snapshot {
	t.Helper()
	return portfolio.Snapshot{OwnerID: "trader_1", Cash: decimal.NewFromInt(100_000), Positions: positions}
}

func TestNewMonitorRejectsBadThreshold(t *testing.T) {
	for _, bad := range []string{"0", "1", "-0.05"} {
		_, err := NewMonitor(decimal.RequireFromString(bad))
		assert.True(t, errors.Is(err, ErrBadConfig), "threshold %s", bad)
	}
}

func TestScanFiresAtOrAboveThreshold(t *testing.T) {
	m := monitor(t, "0.08")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 200, AvgCost: decimal.NewFromInt(100)})

	// 9% drop with an 8% threshold fires.
	breaches := m.Scan("2023-01-05", map[string]decimal.Decimal{"SYM": decimal.NewFromInt(91)}, snap)
	require.Len(t, breaches, 1)
	assert.Equal(t, "trader_1", breaches[0].TraderID)
	assert.Equal(t, int64(200), breaches[0].Position.Quantity)
	assert.True(t, breaches[0].LossPct.Equal(decimal.RequireFromString("0.09")))
}

func TestScanExactThresholdBoundary(t *testing.T) {
	m := monitor(t, "0.08")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 100, AvgCost: decimal.NewFromInt(100)})

	// Exactly 8% fires ("meets or exceeds").
	breaches := m.Scan("2023-01-05", map[string]decimal.Decimal{"SYM": decimal.NewFromInt(92)}, snap)
	assert.Len(t, breaches, 1)

	// 7.99% does not.
	m2 := monitor(t, "0.08")
	breaches = m2.Scan("2023-01-05", map[string]decimal.Decimal{"SYM": decimal.RequireFromString("92.01")}, snap)
	assert.Empty(t, breaches)
}

func TestScanDoesNotDoubleTriggerSameDay(t *testing.T) {
	m := monitor(t, "0.05")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 100, AvgCost: decimal.NewFromInt(100)})
	prices := map[string]decimal.Decimal{"SYM": decimal.NewFromInt(90)}

	require.Len(t, m.Scan("2023-01-05", prices, snap), 1)
	// Second scan same day (e.g. a second price update) is a no-op.
	assert.Empty(t, m.Scan("2023-01-05", prices, snap))
	// A new day may fire again if the position still exists.
	assert.Len(t, m.Scan("2023-01-06", prices, snap), 1)
}

func TestScanSkipsZeroQuantityPositions(t *testing.T) {
	// The second redundant manager scans after liquidation already
	// emptied the position: a no-op, not an error.
	m := monitor(t, "0.05")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 0, AvgCost: decimal.NewFromInt(100)})
	assert.Empty(t, m.Scan("2023-01-05", map[string]decimal.Decimal{"SYM": decimal.NewFromInt(50)}, snap))
}

func TestScanSkipsSymbolsWithoutQuotes(t *testing.T) {
	m := monitor(t, "0.05")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 100, AvgCost: decimal.NewFromInt(100)})
	assert.Empty(t, m.Scan("2023-01-05", nil, snap))
}

func TestScanProfitNeverFires(t *testing.T) {
	m := monitor(t, "0.05")
	snap := snapWith(t, schema.Position{Symbol: "SYM", Quantity: 100, AvgCost: decimal.NewFromInt(100)})
	assert.Empty(t, m.Scan("2023-01-05", map[string]decimal.Decimal{"SYM": decimal.NewFromInt(120)}, snap))
}
