// Package ops loads and resolves the JSON run configuration into the
// concrete values the simulation wires with.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/agent"
	"main/internal/bridge"
	"main/internal/bus"
	"main/internal/market"
	"main/internal/risk"
	"main/internal/schema"
)

var ErrBadConfig = errors.New("invalid config")

const (
	defaultCapacity      = 1024
	defaultManagers      = 2
	defaultShortWindow   = 3
	defaultLongWindow    = 10
	defaultMinConfidence = 0.6
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Symbols []string       `json:"symbols"`
	Bus     BusConfig      `json:"bus"`
	Market  MarketConfig   `json:"market"`
	Risk    RiskConfig     `json:"risk"`
	Analyst AnalystConfig  `json:"analyst"`
	Traders []TraderConfig `json:"traders"`
	Data    DataConfig     `json:"data"`
	Kafka   *KafkaConfig   `json:"kafka,omitempty"`
	// Journal, when set, records every bus message to this file.
	Journal string `json:"journal,omitempty"`
}

// BusConfig selects the backpressure policy and queue capacity.
type BusConfig struct {
	Policy   string `json:"policy"` // "block" or "drop"
	Capacity int    `json:"capacity"`
}

// MarketConfig carries the commission schedule.
type MarketConfig struct {
	CommissionFlat decimal.Decimal `json:"commissionFlat"`
	CommissionRate decimal.Decimal `json:"commissionRate"`
}

// RiskConfig carries the pre-trade limits and the stop-loss threshold.
type RiskConfig struct {
	ConcentrationLimit decimal.Decimal `json:"concentrationLimit"`
	StopLossThreshold  decimal.Decimal `json:"stopLossThreshold"`
	// Managers is the number of redundant risk managers.
	Managers int `json:"managers"`
}

// AnalystConfig carries the crossover windows shared by all analysts.
type AnalystConfig struct {
	ShortWindow int `json:"shortWindow"`
	LongWindow  int `json:"longWindow"`
}

// TraderConfig declares one trader. Each trader gets a dedicated
// analyst covering the same symbols, which keeps every trader's signal
// stream single-sourced and the run replayable.
type TraderConfig struct {
	ID               string          `json:"id"`
	InitialCash      decimal.Decimal `json:"initialCash"`
	MaxPositionValue decimal.Decimal `json:"maxPositionValue"`
	MinConfidence    *float64        `json:"minConfidence,omitempty"`
	Symbols          []string        `json:"symbols"`
}

// DataConfig selects the price series source.
type DataConfig struct {
	// Source is "csv" or "postgres".
	Source string `json:"source"`
	CSVDir string `json:"csvDir"`
	// PostgresDSN is used when Source is "postgres".
	PostgresDSN string `json:"postgresDsn"`
}

// KafkaConfig enables the bus-to-Kafka mirror when present.
type KafkaConfig struct {
	Brokers        []string `json:"brokers"`
	TopicPrefix    string   `json:"topicPrefix"`
	Topics         []string `json:"topics"`
	BatchTimeoutMS int      `json:"batchTimeoutMs"`
}

// TraderSpec is one resolved trader with its agent config.
type TraderSpec struct {
	ID     string
	Config agent.TraderConfig
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Registry   *schema.Registry
	Policy     bus.Policy
	Capacity   int
	Commission market.CommissionSchedule
	Risk       risk.Config
	StopLoss   decimal.Decimal
	Managers   int
	Analyst    agent.AnalystConfig
	Traders    []TraderSpec
	Data       DataConfig
	Kafka      *bridge.KafkaConfig
	Journal    string
}

// Load reads and resolves a JSON config file.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Symbols)
	if err != nil {
		return Loaded{}, err
	}

	policy, err := parsePolicy(cfg.Bus.Policy)
	if err != nil {
		return Loaded{}, err
	}
	capacity := cfg.Bus.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	managers := cfg.Risk.Managers
	if managers <= 0 {
		managers = defaultManagers
	}

	analyst := agent.AnalystConfig{
		ShortWindow: cfg.Analyst.ShortWindow,
		LongWindow:  cfg.Analyst.LongWindow,
	}
	if analyst.ShortWindow == 0 && analyst.LongWindow == 0 {
		analyst.ShortWindow = defaultShortWindow
		analyst.LongWindow = defaultLongWindow
	}
	if analyst.ShortWindow <= 0 || analyst.LongWindow <= analyst.ShortWindow {
		return Loaded{}, errors.Wrap(ErrBadConfig, "analyst windows must satisfy 0 < short < long")
	}

	commission := market.CommissionSchedule{
		Flat: cfg.Market.CommissionFlat,
		Rate: cfg.Market.CommissionRate,
	}
	if commission.Flat.IsNegative() || commission.Rate.IsNegative() {
		return Loaded{}, errors.Wrap(ErrBadConfig, "negative commission")
	}

	traders, err := resolveTraders(cfg.Traders, registry, commission)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Registry:   registry,
		Policy:     policy,
		Capacity:   capacity,
		Commission: commission,
		Risk:       risk.Config{ConcentrationLimit: cfg.Risk.ConcentrationLimit},
		StopLoss:   cfg.Risk.StopLossThreshold,
		Managers:   managers,
		Analyst:    analyst,
		Traders:    traders,
		Data:       cfg.Data,
		Journal:    cfg.Journal,
	}
	if cfg.Kafka != nil {
		kafka, err := resolveKafka(*cfg.Kafka)
		if err != nil {
			return Loaded{}, err
		}
		loaded.Kafka = &kafka
	}
	return loaded, nil
}

func buildRegistry(symbols []string) (*schema.Registry, error) {
	if len(symbols) == 0 {
		return nil, errors.Wrap(ErrBadConfig, "no symbols")
	}
	registry := schema.NewRegistry()
	for _, symbol := range symbols {
		if err := registry.Add(symbol); err != nil {
			return nil, errors.Wrap(ErrBadConfig, err.Error())
		}
	}
	return registry, nil
}

func parsePolicy(name string) (bus.Policy, error) {
	switch name {
	case "", "block":
		return bus.PolicyBlock, nil
	case "drop":
		return bus.PolicyDrop, nil
	default:
		return bus.PolicyBlock, errors.Wrap(ErrBadConfig, "unknown bus policy: "+name)
	}
}

func resolveTraders(configs []TraderConfig, registry *schema.Registry, commission market.CommissionSchedule) ([]TraderSpec, error) {
	if len(configs) == 0 {
		return nil, errors.Wrap(ErrBadConfig, "no traders")
	}
	seen := make(map[string]struct{}, len(configs))
	claimed := make(map[string]string)
	out := make([]TraderSpec, 0, len(configs))
	for _, tc := range configs {
		if tc.ID == "" {
			return nil, errors.Wrap(ErrBadConfig, "trader with empty id")
		}
		if _, dup := seen[tc.ID]; dup {
			return nil, errors.Wrap(ErrBadConfig, "duplicate trader id: "+tc.ID)
		}
		seen[tc.ID] = struct{}{}
		if len(tc.Symbols) == 0 {
			return nil, errors.Wrap(ErrBadConfig, tc.ID+": no symbols")
		}
		for _, symbol := range tc.Symbols {
			if !registry.Has(symbol) {
				return nil, errors.Wrap(ErrBadConfig, tc.ID+": unregistered symbol "+symbol)
			}
			// Disjoint books keep each symbol's order flow
			// single-sourced.
			if owner, taken := claimed[symbol]; taken {
				return nil, errors.Wrap(ErrBadConfig,
					symbol+" assigned to both "+owner+" and "+tc.ID)
			}
			claimed[symbol] = tc.ID
		}
		minConfidence := defaultMinConfidence
		if tc.MinConfidence != nil {
			minConfidence = *tc.MinConfidence
		}
		out = append(out, TraderSpec{
			ID: tc.ID,
			Config: agent.TraderConfig{
				InitialCash:      tc.InitialCash,
				MaxPositionValue: tc.MaxPositionValue,
				MinConfidence:    minConfidence,
				Commission:       commission,
				Symbols:          tc.Symbols,
			},
		})
	}
	return out, nil
}

func resolveKafka(cfg KafkaConfig) (bridge.KafkaConfig, error) {
	if len(cfg.Brokers) == 0 {
		return bridge.KafkaConfig{}, errors.Wrap(ErrBadConfig, "kafka enabled without brokers")
	}
	topics := make([]schema.Topic, 0, len(cfg.Topics))
	for _, name := range cfg.Topics {
		topic := schema.Topic(name)
		if !topic.IsAvailable() {
			return bridge.KafkaConfig{}, errors.Wrap(ErrBadConfig, "unknown kafka topic: "+name)
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		topics = []schema.Topic{
			schema.TopicTradeExecutions,
			schema.TopicStopLossAlerts,
			schema.TopicRejectedOrders,
			schema.TopicPortfolioUpdates,
		}
	}
	return bridge.KafkaConfig{
		Brokers:      cfg.Brokers,
		TopicPrefix:  cfg.TopicPrefix,
		Topics:       topics,
		BatchTimeout: time.Duration(cfg.BatchTimeoutMS) * time.Millisecond,
	}, nil
}
