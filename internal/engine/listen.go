package engine

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/event"
	ma "github.com/multiformats/go-multiaddr"
)

// listenAddrFound is funneled from watchLocalAddresses into the run loop so
// only the run loop attributes a freshly observed address to a listener id.
type listenAddrFound struct {
	Address string
}

func (e *Engine) doStartListen(ctx context.Context, c *startListenCmd) {
	id := e.allocListenerID()
	if err := e.host.Network().Listen(c.Addr); err != nil {
		trySendStartListen(c.Reply, startListenResult{Err: fmt.Errorf("engine: listen on %s: %w", c.Addr, err)})
		return
	}
	e.listenSession = id
	e.listeners[id] = nil
	trySendStartListen(c.Reply, startListenResult{ListenerID: id})
}

func (e *Engine) doStopListen(ctx context.Context, c *stopListenCmd) {
	for _, id := range c.IDs {
		addrs, ok := e.listeners[id]
		if !ok {
			log.Warnf("stop listen: unknown listener id %d", id)
			continue
		}
		for _, raw := range addrs {
			if maddr, err := ma.NewMultiaddr(raw); err == nil {
				_ = e.host.Network().ListenClose(maddr)
			}
		}
		delete(e.listeners, id)
		e.emit(ctx, InboundEvent{ListenerClosed: &ListenerClosedEvent{ListenerID: id, Addresses: addrs}})
	}
	trySend(c.Reply, nil)
}

// watchLocalAddresses attributes every address libp2p reports as newly
// active to whichever listener is currently in session. libp2p has no
// per-Listen-call address callback, so this approximates one the way the
// client's own new-group slot approximates a two-phase handshake.
func (e *Engine) watchLocalAddresses(ctx context.Context, sub event.Subscription) {
	defer e.wg.Done()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.Out():
			if !ok {
				return
			}
			evt, ok := raw.(event.EvtLocalAddressesUpdated)
			if !ok {
				continue
			}
			for _, update := range evt.Current {
				if update.Action != event.Added {
					continue
				}
				addr := update.Address.String()
				select {
				case e.internal <- listenAddrFound{Address: addr}:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func trySendStartListen(ch chan<- startListenResult, r startListenResult) {
	select {
	case ch <- r:
	default:
	}
}
