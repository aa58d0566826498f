// Package dispatcher implements the single inbound-event fan-out task
// (§4.D): it pops InboundEvent values off the engine's outbound queue and
// hands each one to every registered manager concurrently.
package dispatcher

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/command"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

var log = logging.Logger("dispatcher")

// Dispatcher is the single task that owns the engine's outbound queue.
type Dispatcher struct {
	outbound <-chan engine.InboundEvent
	managers []command.Manager
	cli      client.Client
	pres     *presentation.Loop
}

// New builds a Dispatcher.
func New(eng *engine.Engine, managers []command.Manager, cli client.Client, pres *presentation.Loop) *Dispatcher {
	return &Dispatcher{outbound: eng.Outbound(), managers: managers, cli: cli, pres: pres}
}

// Run is the dispatcher's single task loop. Events are processed strictly
// in arrival order; within one event, manager handlers run concurrently
// and are all awaited before the next event is popped (§4.D).
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.outbound:
			d.dispatch(ctx, evt)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, evt engine.InboundEvent) {
	d.bookkeepListeners(evt)

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range d.managers {
		m := m
		g.Go(func() error {
			if err := m.HandleInboundEvent(gctx, evt, d.cli, d.pres); err != nil {
				log.Warnf("manager %s: handle event: %v", m.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// bookkeepListeners performs the listener-map accounting the client facade
// exposes but does not maintain itself (§4.D).
func (d *Dispatcher) bookkeepListeners(evt engine.InboundEvent) {
	switch {
	case evt.NewListenAddr != nil:
		d.cli.AppendListenerAddr(evt.NewListenAddr.ListenerID, evt.NewListenAddr.Address)
	case evt.ListenerClosed != nil:
		d.cli.RemoveListenerAddrs(evt.ListenerClosed.ListenerID, evt.ListenerClosed.Addresses)
	}
}
