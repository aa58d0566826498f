// Package client implements the cloneable facade (§4.C) that managers and
// the command surface use to talk to the network engine. A Client value is
// cheap to copy: every mutable field is a pointer or reference type, so
// copies share the same engine handle, listener map, and pending-new-group
// slot the way a cloned Arc<Mutex<_>> would in the source design.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/wire"
)

type pendingGroupSlot struct {
	set  bool
	id   model.GroupId
	desc model.GroupDescriptor
}

// Client is the handle every manager and the command surface hold to reach
// the engine. It owns the listener map and the pending-new-group slot;
// neither is the engine's source of truth (§5 "Ownership and mutation").
type Client struct {
	eng       *engine.Engine
	localPeer model.PeerId

	mu        *sync.Mutex
	listeners map[model.ListenerId][]string
	pending   *pendingGroupSlot
}

// New builds a Client bound to an already-constructed Engine.
func New(eng *engine.Engine) Client {
	return Client{
		eng:       eng,
		localPeer: eng.LocalPeerID(),
		mu:        &sync.Mutex{},
		listeners: make(map[model.ListenerId][]string),
		pending:   &pendingGroupSlot{},
	}
}

// NewDetached builds a Client with no engine attached, for unit tests that
// exercise a manager's own bookkeeping (pending-group slot, listener map)
// without standing up a real libp2p host. Any call that reaches the engine
// (Dial, Request, Publish, ...) panics on the nil engine handle.
func NewDetached(localPeer model.PeerId) Client {
	return Client{
		localPeer: localPeer,
		mu:        &sync.Mutex{},
		listeners: make(map[model.ListenerId][]string),
		pending:   &pendingGroupSlot{},
	}
}

// LocalPeerID returns the local node's identity.
func (c Client) LocalPeerID() model.PeerId { return c.localPeer }

func (c Client) StartListen(ctx context.Context, addr ma.Multiaddr) (model.ListenerId, error) {
	return c.eng.StartListen(ctx, addr)
}

func (c Client) StopListen(ctx context.Context, ids []model.ListenerId) error {
	return c.eng.StopListen(ctx, ids)
}

// Dial parses a multiaddr that must terminate in a /p2p/<peerid> component
// (§7 InvalidAddress), splits off the peer id, and issues Dial on the
// remaining transport address.
func (c Client) Dial(ctx context.Context, addr ma.Multiaddr) error {
	peerID, transport, err := splitPeerAddr(addr)
	if err != nil {
		return err
	}
	return c.eng.Dial(ctx, peerID, transport)
}

func (c Client) Request(ctx context.Context, peer model.PeerId, req wire.Request) (wire.Response, error) {
	return c.eng.Request(ctx, peer, req)
}

func (c Client) Respond(ctx context.Context, resp wire.Response, ch *engine.ResponseChannel) error {
	return c.eng.Respond(ctx, resp, ch)
}

func (c Client) PublishMessage(ctx context.Context, topic model.TopicHash, payload model.MessagePayload) (string, error) {
	return c.eng.Publish(ctx, topic, payload)
}

func (c Client) Subscribe(ctx context.Context, topic model.TopicHash) error {
	return c.eng.Subscribe(ctx, topic)
}

func (c Client) Unsubscribe(ctx context.Context, topic model.TopicHash) error {
	return c.eng.Unsubscribe(ctx, topic)
}

func (c Client) ConnectedPeers(ctx context.Context) ([]model.PeerId, error) {
	return c.eng.ConnectedPeers(ctx)
}

// Uptime reports how long the underlying engine has been running, for the
// diagnostics command surface (§4.H).
func (c Client) Uptime() time.Duration {
	return time.Since(c.eng.StartedAt())
}

// NewGroup is the composite operation (§4.C): it mints a GroupId, records
// the pending-new-group slot, and subscribes to the group's topic. The
// engine's self-injected Subscribed event is what the group manager reads
// the slot against.
func (c Client) NewGroup(ctx context.Context, desc model.GroupDescriptor) (model.GroupId, error) {
	id := model.NewGroupId()
	c.SetPendingGroup(id, desc)
	if err := c.Subscribe(ctx, id.Topic()); err != nil {
		c.TakePendingGroup() // don't leave a stale slot behind on failure
		return model.GroupId{}, err
	}
	return id, nil
}

// SetPendingGroup records the (GroupId, GroupDescriptor) a subsequent
// self-Subscribed event should adopt. A second call before the slot is
// taken silently overwrites the first (P7).
func (c Client) SetPendingGroup(id model.GroupId, desc model.GroupDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.set = true
	c.pending.id = id
	c.pending.desc = desc
}

// TakePendingGroup clears and returns the pending slot, ok is false if it
// was already empty.
func (c Client) TakePendingGroup() (model.GroupId, model.GroupDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending.set {
		return model.GroupId{}, model.GroupDescriptor{}, false
	}
	id, desc := c.pending.id, c.pending.desc
	*c.pending = pendingGroupSlot{}
	return id, desc, true
}

// AppendListenerAddr records a freshly observed address for a listener.
// Called by the dispatcher on NewListenAddr (§4.D).
func (c Client) AppendListenerAddr(id model.ListenerId, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[id] = append(c.listeners[id], addr)
}

// RemoveListenerAddrs removes the named addresses from a listener's set,
// dropping the entry entirely once empty. Called by the dispatcher on
// ListenerClosed (§4.D).
func (c Client) RemoveListenerAddrs(id model.ListenerId, addrs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining, ok := c.listeners[id]
	if !ok {
		return
	}
	drop := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		drop[a] = struct{}{}
	}
	kept := remaining[:0]
	for _, a := range remaining {
		if _, gone := drop[a]; !gone {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(c.listeners, id)
		return
	}
	c.listeners[id] = kept
}

// GetListeners returns a snapshot of the observed listener map (P6).
func (c Client) GetListeners() map[model.ListenerId][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.ListenerId][]string, len(c.listeners))
	for id, addrs := range c.listeners {
		cp := make([]string, len(addrs))
		copy(cp, addrs)
		out[id] = cp
	}
	return out
}

func splitPeerAddr(addr ma.Multiaddr) (model.PeerId, ma.Multiaddr, error) {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil || len(info.Addrs) == 0 {
		return model.PeerId{}, nil, model.InvalidAddress(addr.String())
	}
	return model.NewPeerId(info.ID), info.Addrs[0], nil
}
