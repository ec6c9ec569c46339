// Package market drives simulated time forward one trading day at a
// time over a replayed historical series, publishes price updates, and
// fills approved orders at the day's close.
package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/schema"
)

var (
	ErrDataUnavailable = errors.New("no price data for symbol on current day")
	ErrNotApproved     = errors.New("order is not approved")
	ErrSeriesOrder     = errors.New("price series dates must be strictly increasing")
	ErrNoData          = errors.New("empty price series")
)

const publisherID = "market"

// CommissionSchedule computes the commission for a fill as a flat fee
// plus a fraction of notional. Either part may be zero.
type CommissionSchedule struct {
	Flat decimal.Decimal
	Rate decimal.Decimal
}

// For returns the commission for the given notional.
func (c CommissionSchedule) For(notional decimal.Decimal) decimal.Decimal {
	return c.Flat.Add(notional.Mul(c.Rate))
}

// Market is the clock and price feed. It is driven by the simulation
// loop only; agents query it but never advance it.
type Market struct {
	bus        *bus.Bus
	metrics    *obs.Metrics
	commission CommissionSchedule

	timeline []schema.Day
	bars     map[schema.Day]map[string]schema.PriceBar

	// mu covers idx and current: agents query prices from their own
	// goroutines while Advance publishes a new day.
	mu      sync.RWMutex
	idx     int
	current map[string]decimal.Decimal
}

// New validates the series and builds the trading-day timeline (the
// sorted union of all symbols' dates).
func New(b *bus.Bus, metrics *obs.Metrics, commission CommissionSchedule, series map[string][]schema.PriceBar) (*Market, error) {
	if len(series) == 0 {
		return nil, ErrNoData
	}

	bars := make(map[schema.Day]map[string]schema.PriceBar)
	daySet := make(map[schema.Day]struct{})
	for symbol, symbolBars := range series {
		if len(symbolBars) == 0 {
			return nil, errors.Wrap(ErrNoData, symbol)
		}
		prev := schema.Day("")
		for _, bar := range symbolBars {
			if bar.Symbol != symbol {
				return nil, errors.New("bar symbol mismatch: " + symbol + " vs " + bar.Symbol)
			}
			if prev != "" && !prev.Before(bar.Day) {
				return nil, errors.Wrap(ErrSeriesOrder,
					symbol+": "+string(prev)+" then "+string(bar.Day))
			}
			prev = bar.Day
			if _, ok := bars[bar.Day]; !ok {
				bars[bar.Day] = make(map[string]schema.PriceBar)
			}
			bars[bar.Day][symbol] = bar
			daySet[bar.Day] = struct{}{}
		}
	}

	timeline := make([]schema.Day, 0, len(daySet))
	for day := range daySet {
		timeline = append(timeline, day)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i] < timeline[j] })

	return &Market{
		bus:        b,
		metrics:    metrics,
		commission: commission,
		timeline:   timeline,
		bars:       bars,
		idx:        -1,
		current:    make(map[string]decimal.Decimal),
	}, nil
}

// Days returns the number of trading days in the timeline.
func (m *Market) Days() int {
	return len(m.timeline)
}

// Day returns the current trading day; false before the first advance.
func (m *Market) Day() (schema.Day, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.idx < 0 || m.idx >= len(m.timeline) {
		return "", false
	}
	return m.timeline[m.idx], true
}

// Advance moves to the next trading day, publishes one price update
// per symbol traded that day, then blocks on the bus quiescence
// barrier: day N+1 never starts while day N messages are in flight.
// Returns false when the timeline is exhausted.
func (m *Market) Advance(ctx context.Context) (schema.Day, bool, error) {
	if m.idx+1 >= len(m.timeline) {
		return "", false, nil
	}
	m.mu.Lock()
	m.idx++
	day := m.timeline[m.idx]

	dayBars := m.bars[day]
	symbols := make([]string, 0, len(dayBars))
	for symbol := range dayBars {
		symbols = append(symbols, symbol)
		m.current[symbol] = dayBars[symbol].Close
	}
	m.mu.Unlock()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		if err := m.bus.Publish(ctx, publisherID, schema.TopicPriceUpdates, dayBars[symbol]); err != nil {
			return day, false, errors.Wrap(err, "publish price update")
		}
	}

	start := time.Now()
	if err := m.bus.Drain(ctx); err != nil {
		return day, false, errors.Wrap(err, "day barrier")
	}
	m.metrics.ObserveDayDrain(time.Since(start))

	logs.Debugf("market advanced to %s, %d symbols updated", day, len(symbols))
	return day, true, nil
}

// Price returns the latest close for a symbol.
func (m *Market) Price(symbol string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.current[symbol]
	return price, ok
}

// Prices returns a copy of the latest close per symbol.
func (m *Market) Prices() map[string]decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(m.current))
	for symbol, price := range m.current {
		out[symbol] = price
	}
	return out
}

// PriceOn answers historical queries against the loaded series.
func (m *Market) PriceOn(symbol string, day schema.Day) (decimal.Decimal, bool) {
	bar, ok := m.bars[day][symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	return bar.Close, true
}

// Fill executes an approved order at the current day's close price, no
// slippage. A gap in the series for the symbol yields
// ErrDataUnavailable so the caller can reject with DATA_UNAVAILABLE.
func (m *Market) Fill(order schema.Order) (schema.Trade, error) {
	if order.Status != schema.OrderStatusApproved {
		return schema.Trade{}, errors.Wrap(ErrNotApproved, order.ID)
	}
	day, ok := m.Day()
	if !ok {
		return schema.Trade{}, errors.Wrap(ErrDataUnavailable, "market not started")
	}
	bar, ok := m.bars[day][order.Symbol]
	if !ok {
		return schema.Trade{}, errors.Wrap(ErrDataUnavailable, order.Symbol+" on "+string(day))
	}

	notional := bar.Close.Mul(decimal.NewFromInt(order.Quantity))
	commission := m.commission.For(notional)
	trade, err := schema.NewTrade(order, bar.Close, commission, day)
	if err != nil {
		return schema.Trade{}, err
	}
	m.metrics.IncFill()
	return trade, nil
}
