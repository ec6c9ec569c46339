// Package mdg generates deterministic synthetic daily OHLCV series
// for development runs and load tests. The same seed always produces
// the same series.
package mdg

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var ErrBadGenConfig = errors.New("invalid generator config")

// Config shapes the random walk.
type Config struct {
	Seed       int64
	Start      schema.Day
	Days       int
	BasePrice  float64
	Drift      float64 // mean daily return
	Volatility float64 // daily return stddev
	BaseVolume int64
}

// Generator produces one series per symbol. Each symbol's walk is
// seeded from the shared seed plus the symbol name, so adding a symbol
// never changes the others.
type Generator struct {
	cfg Config
}

// NewGenerator validates the config.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Days <= 0 {
		return nil, errors.Wrap(ErrBadGenConfig, "days must be > 0")
	}
	if cfg.BasePrice <= 0 {
		return nil, errors.Wrap(ErrBadGenConfig, "base price must be > 0")
	}
	if cfg.Volatility < 0 {
		return nil, errors.Wrap(ErrBadGenConfig, "negative volatility")
	}
	if cfg.Start == "" {
		cfg.Start = "2024-01-02"
	}
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = 100_000
	}
	return &Generator{cfg: cfg}, nil
}

// Series generates the symbol's bars, weekdays only.
func (g *Generator) Series(symbol string) ([]schema.PriceBar, error) {
	if symbol == "" {
		return nil, errors.Wrap(ErrBadGenConfig, "empty symbol")
	}
	rng := rand.New(rand.NewSource(g.cfg.Seed ^ symbolSeed(symbol)))

	bars := make([]schema.PriceBar, 0, g.cfg.Days)
	day := nextTradingDay(g.cfg.Start.Time())
	prevClose := g.cfg.BasePrice
	for i := 0; i < g.cfg.Days; i++ {
		open := prevClose
		ret := g.cfg.Drift + g.cfg.Volatility*rng.NormFloat64()
		close := open * (1 + ret)
		if close < 0.01 {
			close = 0.01
		}
		span := math.Abs(close-open) + open*g.cfg.Volatility*rng.Float64()
		high := math.Max(open, close) + span/2
		low := math.Min(open, close) - span/2
		if low < 0.01 {
			low = 0.01
		}
		volume := g.cfg.BaseVolume + rng.Int63n(g.cfg.BaseVolume)

		bar, err := schema.NewPriceBar(symbol, schema.DayOf(day),
			round2(open), round2(high), round2(low), round2(close), volume)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)

		prevClose = close
		day = nextTradingDay(day.AddDate(0, 0, 1))
	}
	return bars, nil
}

func round2(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func nextTradingDay(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
