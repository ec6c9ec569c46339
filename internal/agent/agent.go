// Package agent holds the four agent roles of the simulation:
// analysts turn price history into signals, traders turn signals into
// orders and own their portfolio, risk managers validate orders and
// watch for stop-loss breaches, and the reporter aggregates outcomes.
// Every agent runs a single goroutine draining one bus subscription,
// so per-agent state never needs a lock.
package agent

import (
	"context"
	"sync"

	"main/internal/bus"
)

// Agent is a bus participant with its own consume loop.
type Agent interface {
	ID() string
	Start(ctx context.Context)
	Stop()
}

// loop is the shared subscribe-and-consume machinery.
type loop struct {
	bus *bus.Bus
	sub *bus.Subscription
	wg  sync.WaitGroup
}

func (l *loop) run(ctx context.Context, handler func(bus.Message)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.sub.Run(ctx, handler)
	}()
}

// Stop unsubscribes and waits for the consume loop to finish the
// message in hand.
func (l *loop) Stop() {
	if l.sub != nil {
		l.bus.Unsubscribe(l.sub)
	}
	l.wg.Wait()
}
