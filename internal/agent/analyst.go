package agent

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

var ErrBadAgentConfig = errors.New("invalid agent config")

// AnalystConfig tunes the moving-average crossover strategy.
type AnalystConfig struct {
	// ShortWindow and LongWindow are SMA lengths in trading days,
	// 0 < short < long.
	ShortWindow int `json:"shortWindow"`
	LongWindow  int `json:"longWindow"`
}

// Analyst watches price updates for its assigned symbols and publishes
// at most one signal per symbol per day: BUY on a golden cross, SELL
// on a death cross, HOLD otherwise. Confidence grows with the
// separation of the averages and a rising short-term volume.
type Analyst struct {
	loop
	id      string
	cfg     AnalystConfig
	symbols map[string]struct{}
	windows map[string][]schema.PriceBar
}

// NewAnalyst creates an analyst responsible for the given symbols.
func NewAnalyst(id string, b *bus.Bus, symbols []string, cfg AnalystConfig) (*Analyst, error) {
	if id == "" {
		return nil, errors.Wrap(ErrBadAgentConfig, "empty analyst id")
	}
	if len(symbols) == 0 {
		return nil, errors.Wrap(ErrBadAgentConfig, id+": no symbols assigned")
	}
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= cfg.ShortWindow {
		return nil, errors.Wrap(ErrBadAgentConfig, id+": windows must satisfy 0 < short < long")
	}

	owned := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		owned[symbol] = struct{}{}
	}
	return &Analyst{
		loop:    loop{bus: b},
		id:      id,
		cfg:     cfg,
		symbols: owned,
		windows: make(map[string][]schema.PriceBar),
	}, nil
}

func (a *Analyst) ID() string { return a.id }

// Start subscribes to price updates and begins evaluating.
func (a *Analyst) Start(ctx context.Context) {
	a.sub = a.bus.Subscribe(a.id, schema.TopicPriceUpdates)
	a.run(ctx, func(m bus.Message) { a.handle(ctx, m) })
	logs.Debugf("%s started, symbols=%d short=%d long=%d",
		a.id, len(a.symbols), a.cfg.ShortWindow, a.cfg.LongWindow)
}

func (a *Analyst) handle(ctx context.Context, m bus.Message) {
	bar, ok := bus.Payload[schema.PriceBar](m)
	if !ok {
		logs.Warnf("%s: malformed payload on %s", a.id, m.Topic)
		return
	}
	if _, owned := a.symbols[bar.Symbol]; !owned {
		return
	}

	w := append(a.windows[bar.Symbol], bar)
	if max := a.cfg.LongWindow + 1; len(w) > max {
		w = w[len(w)-max:]
	}
	a.windows[bar.Symbol] = w

	if len(w) < a.cfg.LongWindow+1 {
		return
	}
	a.emit(ctx, bar, w)
}

// emit evaluates the crossover on a full window and publishes exactly
// one signal for the bar's day.
func (a *Analyst) emit(ctx context.Context, bar schema.PriceBar, w []schema.PriceBar) {
	curShort := closeSMA(w[len(w)-a.cfg.ShortWindow:])
	curLong := closeSMA(w[len(w)-a.cfg.LongWindow:])
	prev := w[:len(w)-1]
	prevShort := closeSMA(prev[len(prev)-a.cfg.ShortWindow:])
	prevLong := closeSMA(prev[len(prev)-a.cfg.LongWindow:])

	kind := schema.SignalKindHold
	reason := "no crossover"
	switch {
	case prevShort.LessThanOrEqual(prevLong) && curShort.GreaterThan(curLong):
		kind = schema.SignalKindBuy
		reason = "golden cross"
	case prevShort.GreaterThanOrEqual(prevLong) && curShort.LessThan(curLong):
		kind = schema.SignalKindSell
		reason = "death cross"
	}

	sig, err := schema.NewSignal(a.id, bar.Symbol, kind, a.confidence(kind, curShort, curLong, w), reason, bar.Day)
	if err != nil {
		logs.Errorf("%s: build signal for %s: %v", a.id, bar.Symbol, err)
		return
	}
	if err := a.bus.Publish(ctx, a.id, schema.TopicAnalystSignals, sig); err != nil {
		logs.Warnf("%s: publish signal: %v", a.id, err)
	}
}

// confidence is deterministic: a HOLD is always 0.3; a cross starts at
// 0.5, gains up to 0.3 with the separation of the averages and 0.1
// more when short-term volume outruns long-term volume, capped at 1.
func (a *Analyst) confidence(kind schema.SignalKind, short, long decimal.Decimal, w []schema.PriceBar) float64 {
	if kind == schema.SignalKindHold {
		return 0.3
	}
	sep := short.Sub(long).Abs().Div(long).InexactFloat64()
	conf := 0.5 + math.Min(0.3, sep*20)
	if volumeSMA(w[len(w)-a.cfg.ShortWindow:]) > volumeSMA(w[len(w)-a.cfg.LongWindow:]) {
		conf += 0.1
	}
	return math.Min(conf, 1)
}

func closeSMA(bars []schema.PriceBar) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

func volumeSMA(bars []schema.PriceBar) float64 {
	var sum int64
	for _, b := range bars {
		sum += b.Volume
	}
	return float64(sum) / float64(len(bars))
}
