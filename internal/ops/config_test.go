package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/schema"
)

func baseConfig() FileConfig {
	return FileConfig{
		Symbols: []string{"AAPL", "MSFT"},
		Market: MarketConfig{
			CommissionFlat: decimal.NewFromInt(1),
			CommissionRate: decimal.NewFromFloat(0.000008),
		},
		Risk: RiskConfig{
			ConcentrationLimit: decimal.NewFromFloat(0.5),
			StopLossThreshold:  decimal.NewFromFloat(0.08),
		},
		Traders: []TraderConfig{
			{ID: "trader_1", InitialCash: decimal.NewFromInt(250000), Symbols: []string{"AAPL"}},
			{ID: "trader_2", InitialCash: decimal.NewFromInt(250000), Symbols: []string{"MSFT"}},
		},
	}
}

func TestResolveFillsDefaults(t *testing.T) {
	loaded, err := Resolve(baseConfig())
	require.NoError(t, err)

	assert.Equal(t, bus.PolicyBlock, loaded.Policy)
	assert.Equal(t, defaultCapacity, loaded.Capacity)
	assert.Equal(t, defaultManagers, loaded.Managers)
	assert.Equal(t, defaultShortWindow, loaded.Analyst.ShortWindow)
	assert.Equal(t, defaultLongWindow, loaded.Analyst.LongWindow)
	assert.Equal(t, []string{"AAPL", "MSFT"}, loaded.Registry.Symbols())
	require.Len(t, loaded.Traders, 2)
	assert.Equal(t, defaultMinConfidence, loaded.Traders[0].Config.MinConfidence)
	assert.True(t, loaded.Traders[0].Config.Commission.Flat.Equal(decimal.NewFromInt(1)))
	assert.Nil(t, loaded.Kafka)
}

func TestResolveRejectsBadInput(t *testing.T) {
	for name, mutate := range map[string]func(*FileConfig){
		"no symbols":       func(c *FileConfig) { c.Symbols = nil },
		"duplicate symbol": func(c *FileConfig) { c.Symbols = []string{"AAPL", "AAPL"} },
		"no traders":       func(c *FileConfig) { c.Traders = nil },
		"empty trader id":  func(c *FileConfig) { c.Traders[0].ID = "" },
		"duplicate trader": func(c *FileConfig) { c.Traders[1].ID = "trader_1" },
		"unknown symbol":   func(c *FileConfig) { c.Traders[0].Symbols = []string{"TSLA"} },
		"shared symbol":    func(c *FileConfig) { c.Traders[1].Symbols = []string{"AAPL"} },
		"bad policy":       func(c *FileConfig) { c.Bus.Policy = "spill" },
		"bad windows":      func(c *FileConfig) { c.Analyst = AnalystConfig{ShortWindow: 5, LongWindow: 5} },
		"negative fee":     func(c *FileConfig) { c.Market.CommissionFlat = decimal.NewFromInt(-1) },
		"kafka no brokers": func(c *FileConfig) { c.Kafka = &KafkaConfig{} },
		"kafka bad topic":  func(c *FileConfig) { c.Kafka = &KafkaConfig{Brokers: []string{"k:9092"}, Topics: []string{"nope"}} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig()
			mutate(&cfg)
			_, err := Resolve(cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolveKafkaDefaultsTopics(t *testing.T) {
	cfg := baseConfig()
	cfg.Kafka = &KafkaConfig{Brokers: []string{"kafka:9092"}, TopicPrefix: "sim."}

	loaded, err := Resolve(cfg)
	require.NoError(t, err)
	require.NotNil(t, loaded.Kafka)
	assert.Equal(t, "sim.", loaded.Kafka.TopicPrefix)
	assert.Contains(t, loaded.Kafka.Topics, schema.TopicTradeExecutions)
	assert.Contains(t, loaded.Kafka.Topics, schema.TopicStopLossAlerts)
}

func TestLoadReadsJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"symbols": ["AAPL"],
		"bus": {"policy": "drop", "capacity": 64},
		"market": {"commissionFlat": "1", "commissionRate": "0.000008"},
		"risk": {"concentrationLimit": "0.5", "stopLossThreshold": "0.08", "managers": 2},
		"analyst": {"shortWindow": 2, "longWindow": 3},
		"traders": [
			{"id": "trader_1", "initialCash": "250000", "maxPositionValue": "20000", "symbols": ["AAPL"]}
		],
		"data": {"source": "csv", "csvDir": "testdata"}
	}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, bus.PolicyDrop, loaded.Policy)
	assert.Equal(t, 64, loaded.Capacity)
	assert.Equal(t, 2, loaded.Analyst.ShortWindow)
	assert.Equal(t, "csv", loaded.Data.Source)
	require.Len(t, loaded.Traders, 1)
	assert.True(t, loaded.Traders[0].Config.MaxPositionValue.Equal(decimal.NewFromInt(20000)))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
