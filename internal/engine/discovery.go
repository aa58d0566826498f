package engine

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nyxlink/p2pchat/internal/model"
)

// mdnsNotifee adapts link-local discovery callbacks into the engine's
// internal queue, mirroring the teacher's state.PeerTable update-on-sight
// pattern from internal/app/run.go but routed through the run loop instead
// of a shared mutex.
type mdnsNotifee struct {
	engine *Engine
}

// HandlePeerFound is invoked by the mdns service on a background goroutine
// for every peer advertisement seen, including repeat sightings of peers
// already known.
func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.engine.host.ID() {
		return
	}
	n.engine.host.Peerstore().AddAddrs(info.ID, info.Addrs, time.Hour)

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.engine.host.Connect(dialCtx, info); err != nil {
		log.Debugf("mdns: connect to %s failed: %v", info.ID, err)
	}

	select {
	case n.engine.internal <- mdnsFound{Peer: model.NewPeerId(info.ID)}:
	case <-n.engine.shutdownSignal():
	}
}

// expirePeers sweeps known peers against presenceTTL and emits PeerExpired
// for any that have gone silent, synthesizing the expiry signal mdns itself
// does not provide (§6 "Discovery").
func (e *Engine) expirePeers(ctx context.Context) {
	now := time.Now()
	for p := range e.knownPeers {
		seen, ok := e.lastSeen[p]
		if !ok || now.Sub(seen) < e.presenceTTL {
			continue
		}
		delete(e.knownPeers, p)
		delete(e.lastSeen, p)
		_ = e.host.Network().ClosePeer(p.Raw())
		expired := p
		e.emit(ctx, InboundEvent{PeerExpired: &expired})
	}
}
