// Package sim wires the bus, market and agents from a resolved config
// and runs the trading-day loop.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/agent"
	"main/internal/bridge"
	"main/internal/bus"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/recorder"
	"main/internal/schema"
)

// Result is everything a run produces: the aggregated report, the
// final per-trader books and the metrics snapshot.
type Result struct {
	Report     agent.Report
	Portfolios []portfolio.Snapshot
	Metrics    obs.Snapshot
}

// Sim is one fully wired simulation. Build with New, run once with
// Run.
type Sim struct {
	cfg     ops.Loaded
	metrics *obs.Metrics
	bus     *bus.Bus
	market  *market.Market

	analysts []*agent.Analyst
	traders  []*agent.Trader
	managers []*agent.Manager
	reporter *agent.Reporter
	bridge   *bridge.Bridge
	journal  *recorder.Journal

	mu       sync.Mutex
	cancel   context.CancelFunc
	fatalErr error
}

// New wires a simulation over the given price series. Series symbols
// not in the registry are rejected; registry symbols with no series
// are allowed and simply never trade.
func New(cfg ops.Loaded, series map[string][]schema.PriceBar) (*Sim, error) {
	for symbol := range series {
		if !cfg.Registry.Has(symbol) {
			return nil, errors.New("series for unregistered symbol: " + symbol)
		}
	}

	s := &Sim{cfg: cfg, metrics: obs.NewMetrics()}
	s.bus = bus.New(cfg.Policy, cfg.Capacity, s.metrics)

	mkt, err := market.New(s.bus, s.metrics, cfg.Commission, series)
	if err != nil {
		return nil, errors.Wrap(err, "build market")
	}
	s.market = mkt

	initialCash := make(map[string]decimal.Decimal, len(cfg.Traders))
	for i, spec := range cfg.Traders {
		trader, err := agent.NewTrader(spec.ID, s.bus, mkt, spec.Config, s.metrics, s.fail)
		if err != nil {
			return nil, errors.Wrap(err, "build trader")
		}
		s.traders = append(s.traders, trader)
		initialCash[spec.ID] = spec.Config.InitialCash

		// One analyst per trader: each trader's signal stream has a
		// single source, so replays order identically.
		analyst, err := agent.NewAnalyst(fmt.Sprintf("analyst_%d", i+1), s.bus, spec.Config.Symbols, cfg.Analyst)
		if err != nil {
			return nil, errors.Wrap(err, "build analyst")
		}
		s.analysts = append(s.analysts, analyst)
	}

	for i := 0; i < cfg.Managers; i++ {
		manager, err := agent.NewManager(fmt.Sprintf("risk_%d", i+1), s.bus, mkt, agent.ManagerConfig{
			Risk:              cfg.Risk,
			StopLossThreshold: cfg.StopLoss,
			InitialCash:       initialCash,
		}, s.metrics, s.fail)
		if err != nil {
			return nil, errors.Wrap(err, "build risk manager")
		}
		s.managers = append(s.managers, manager)
	}

	s.reporter = agent.NewReporter("reporter", s.bus)
	if cfg.Kafka != nil {
		s.bridge = bridge.NewKafka(s.bus, *cfg.Kafka)
	}
	return s, nil
}

// fail records the first fatal invariant violation and aborts the day
// loop.
func (s *Sim) fail(err error) {
	s.mu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	cancel := s.cancel
	s.mu.Unlock()

	logs.Errorf("fatal invariant violation: %v", err)
	if cancel != nil {
		cancel()
	}
}

func (s *Sim) fatal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Run replays the whole timeline and returns the final result. Only
// completed days are reported: each day ends at the bus quiescence
// barrier before the next begins.
func (s *Sim) Run(ctx context.Context) (Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.cfg.Journal != "" {
		journal, err := recorder.Attach(runCtx, s.bus, s.cfg.Journal)
		if err != nil {
			return Result{}, errors.Wrap(err, "open journal")
		}
		s.journal = journal
	}
	s.reporter.Start(runCtx)
	for _, manager := range s.managers {
		manager.Start(runCtx)
	}
	for _, trader := range s.traders {
		trader.Start(runCtx)
	}
	for _, analyst := range s.analysts {
		analyst.Start(runCtx)
	}
	if s.bridge != nil {
		s.bridge.Start(runCtx)
	}

	logs.Infof("simulation started: %d days, %d traders, %d managers",
		s.market.Days(), len(s.traders), len(s.managers))

	days := 0
	for {
		day, ok, err := s.market.Advance(runCtx)
		if err != nil {
			if fatal := s.fatal(); fatal != nil {
				s.stop()
				return Result{}, fatal
			}
			s.stop()
			return Result{}, errors.Wrap(err, "advance")
		}
		if !ok {
			break
		}
		days++

		// The barrier inside Advance already ran: the day is fully
		// processed, so the books are quiescent and safe to publish.
		for _, trader := range s.traders {
			trader.PublishSnapshot(runCtx, day)
		}
		if err := s.bus.Drain(runCtx); err != nil {
			if fatal := s.fatal(); fatal != nil {
				s.stop()
				return Result{}, fatal
			}
			s.stop()
			return Result{}, errors.Wrap(err, "snapshot drain")
		}
		logs.Debugf("day %s complete", day)
	}

	s.stop()
	if fatal := s.fatal(); fatal != nil {
		return Result{}, fatal
	}

	result := Result{
		Report:  s.reporter.Snapshot(),
		Metrics: s.metrics.Snapshot(),
	}
	for _, trader := range s.traders {
		result.Portfolios = append(result.Portfolios, trader.Snapshot())
	}
	logs.Infof("simulation finished: %d days, %d trades, %d stop-losses",
		days, result.Report.TradeCount, result.Report.StopLossCount)
	return result, nil
}

// stop shuts agents down in dependency order: producers first, the
// reporter last so it sees every outcome.
func (s *Sim) stop() {
	for _, analyst := range s.analysts {
		analyst.Stop()
	}
	for _, trader := range s.traders {
		trader.Stop()
	}
	for _, manager := range s.managers {
		manager.Stop()
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			logs.Warnf("close kafka bridge: %v", err)
		}
	}
	s.reporter.Stop()
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logs.Warnf("close journal: %v", err)
		}
		s.journal = nil
	}
	s.bus.Close()
}
