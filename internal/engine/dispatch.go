package engine

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nyxlink/p2pchat/internal/model"
)

// internal event kinds fed into e.internal by helper goroutines. Only the
// run-loop goroutine (handleInternal) ever reads these and mutates
// pendingDial/pendingRequest, keeping the engine the sole mutator of its
// own state (§5 "Ownership and mutation").
type dialCompleted struct {
	Peer model.PeerId
	Err  error
}

type requestCompleted struct {
	ID     uint64
	Result requestResult
}

type mdnsFound struct {
	Peer model.PeerId
}

func (e *Engine) handleCommand(ctx context.Context, cmd command) {
	switch {
	case cmd.startListen != nil:
		e.doStartListen(ctx, cmd.startListen)
	case cmd.stopListen != nil:
		e.doStopListen(ctx, cmd.stopListen)
	case cmd.dial != nil:
		e.doDial(ctx, cmd.dial)
	case cmd.request != nil:
		e.doRequest(ctx, cmd.request)
	case cmd.response != nil:
		e.doResponse(ctx, cmd.response)
	case cmd.publish != nil:
		e.doPublish(ctx, cmd.publish)
	case cmd.subscribe != nil:
		e.doSubscribe(ctx, cmd.subscribe)
	case cmd.unsubscribe != nil:
		e.doUnsubscribe(ctx, cmd.unsubscribe)
	case cmd.connPeers != nil:
		e.doConnectedPeers(cmd.connPeers)
	}
}

func (e *Engine) handleInternal(ctx context.Context, evt any) {
	switch v := evt.(type) {
	case dialCompleted:
		if ch, ok := e.takePendingDial(v.Peer); ok {
			trySend(ch, v.Err)
		}
	case requestCompleted:
		if ch, ok := e.takePendingRequest(v.ID); ok {
			trySendRequest(ch, v.Result)
		}
	case mdnsFound:
		peerID := v.Peer
		if _, known := e.knownPeers[peerID]; !known {
			e.knownPeers[peerID] = struct{}{}
			e.emit(ctx, InboundEvent{PeerDiscovered: &peerID})
		}
		e.lastSeen[peerID] = time.Now()
	case listenAddrFound:
		e.emit(ctx, InboundEvent{NewListenAddr: &ListenAddrEvent{ListenerID: e.listenSession, Address: v.Address}})
		e.listeners[e.listenSession] = append(e.listeners[e.listenSession], v.Address)
	}
}

func (e *Engine) doConnectedPeers(c *connectedPeersCmd) {
	ids := e.host.Network().Peers()
	out := make([]model.PeerId, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.NewPeerId(id))
	}
	trySendPeers(c.Reply, out)
}

func (e *Engine) doDial(ctx context.Context, c *dialCmd) {
	if _, exists := e.pendingDial[c.Peer]; exists {
		log.Warnf("dial to %s already pending, dropping duplicate", c.Peer)
		return
	}
	e.pendingDial[c.Peer] = c.Reply

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		info := peer.AddrInfo{ID: c.Peer.Raw()}
		if c.Addr != nil {
			info.Addrs = append(info.Addrs, c.Addr)
		}
		err := e.host.Connect(ctx, info)
		select {
		case e.internal <- dialCompleted{Peer: c.Peer, Err: err}:
		case <-ctx.Done():
		}
	}()
}

func trySend(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
		// Reply receiver dropped the channel; the command's side effect
		// already applied (§5 "Cancellation").
	}
}

func trySendRequest(ch chan<- requestResult, r requestResult) {
	select {
	case ch <- r:
	default:
	}
}

func trySendPeers(ch chan<- []model.PeerId, peers []model.PeerId) {
	select {
	case ch <- peers:
	default:
	}
}
