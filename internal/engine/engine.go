// Package engine implements the single-owner network engine (§4.B): it
// drives the libp2p host, gossipsub, and mDNS discovery behind a command
// queue and an inbound-event queue, the way internal/p2p/node.go in the
// teacher drives the same stack directly — generalized here so the state
// machine is serialized through one select loop instead of ad-hoc callers.
package engine

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/nyxlink/p2pchat/internal/model"
)

var log = logging.Logger("engine")

func init() {
	logging.SetLogLevel("swarm2", "error")
}

// ProtocolID is the wire protocol name identifier for the request/response
// substream (§6 "Wire protocol").
const ProtocolID = protocol.ID("file-exchange-protocol")

// MdnsTag is the service tag used for link-local peer discovery (§6
// "Discovery").
const MdnsTag = "p2pchat-mdns"

// QueueCapacity bounds every command and event queue (§5 "Backpressure").
const QueueCapacity = 100

// Config configures a new Engine.
type Config struct {
	// PrivateKey is the node's identity key. If nil, one is freshly
	// randomized (§6 "Identity").
	PrivateKey crypto.PrivKey
	// PresenceTTL governs how long a discovered peer is considered
	// present without a fresh mDNS sighting before PeerExpired fires.
	PresenceTTL time.Duration
}

// DeterministicKey builds the Ed25519 identity key the spec describes for
// tests: the secret key is the 32-byte array whose first byte is seed and
// remaining bytes are zero (§6 "Identity").
func DeterministicKey(seed byte) (crypto.PrivKey, error) {
	raw := make([]byte, ed25519.SeedSize)
	raw[0] = seed
	expanded := ed25519.NewKeyFromSeed(raw)
	priv, err := crypto.UnmarshalEd25519PrivateKey(expanded)
	if err != nil {
		return nil, fmt.Errorf("engine: build deterministic key: %w", err)
	}
	return priv, nil
}

// Engine is the single-owner driver of the peer-to-peer state machine. No
// goroutine other than run touches pendingDial, pendingRequest, or the
// libp2p host's mutable registrations directly — everything arrives as a
// command or as an internally queued swarm event.
type Engine struct {
	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	localPeer model.PeerId

	commands chan command
	internal chan any // swarm activity funneled in from helper goroutines
	outbound chan InboundEvent

	topics map[model.TopicHash]*pubsub.Topic
	subs   map[model.TopicHash]*pubsub.Subscription

	pendingDial    map[model.PeerId]chan<- error
	pendingRequest map[uint64]chan<- requestResult
	nextRequestID  uint64

	listeners     map[model.ListenerId][]string
	nextListener  uint64
	listenSession model.ListenerId // listener currently being started, for address attribution

	presenceTTL time.Duration
	lastSeen    map[model.PeerId]time.Time
	knownPeers  map[model.PeerId]struct{}

	startedAt time.Time

	closed chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Engine. It registers the file-exchange-protocol stream
// handler and starts mDNS discovery but does not yet run the event loop —
// call Run for that.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	priv := cfg.PrivateKey
	var err error
	if priv == nil {
		priv, _, err = crypto.GenerateEd25519Key(nil)
		if err != nil {
			return nil, fmt.Errorf("engine: generate identity: %w", err)
		}
	}

	h, err := libp2p.New(libp2p.Identity(priv))
	if err != nil {
		return nil, fmt.Errorf("engine: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
		pubsub.WithMessageIdFn(messageIDFn),
		pubsub.WithHeartbeatInterval(10*time.Second),
	)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("engine: create pubsub: %w", err)
	}

	presenceTTL := cfg.PresenceTTL
	if presenceTTL <= 0 {
		presenceTTL = 30 * time.Second
	}

	e := &Engine{
		host:           h,
		ps:             ps,
		localPeer:      model.NewPeerId(h.ID()),
		commands:       make(chan command, QueueCapacity),
		internal:       make(chan any, QueueCapacity),
		outbound:       make(chan InboundEvent, QueueCapacity),
		topics:         make(map[model.TopicHash]*pubsub.Topic),
		subs:           make(map[model.TopicHash]*pubsub.Subscription),
		pendingDial:    make(map[model.PeerId]chan<- error),
		pendingRequest: make(map[uint64]chan<- requestResult),
		listeners:      make(map[model.ListenerId][]string),
		presenceTTL:    presenceTTL,
		lastSeen:       make(map[model.PeerId]time.Time),
		knownPeers:     make(map[model.PeerId]struct{}),
		closed:         make(chan struct{}),
		startedAt:      time.Now(),
	}

	h.SetStreamHandler(ProtocolID, e.handleInboundStream)

	md := mdns.NewMdnsService(h, MdnsTag, &mdnsNotifee{engine: e})
	if err := md.Start(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("engine: start mdns: %w", err)
	}
	e.mdns = md

	sub, err := h.EventBus().Subscribe(new(event.EvtLocalAddressesUpdated))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("engine: subscribe address events: %w", err)
	}
	e.wg.Add(1)
	go e.watchLocalAddresses(ctx, sub)

	return e, nil
}

// LocalPeerID returns the engine's own PeerId.
func (e *Engine) LocalPeerID() model.PeerId { return e.localPeer }

// StartedAt returns when the engine was constructed, for uptime reporting
// (the diagnostics command surface, §4.H).
func (e *Engine) StartedAt() time.Time { return e.startedAt }

// Outbound returns the channel the dispatcher reads InboundEvent values
// from.
func (e *Engine) Outbound() <-chan InboundEvent { return e.outbound }

// Run is the engine's single select loop. It returns only when ctx is
// cancelled; the command queue is never closed, so commands ceasing to
// arrive leaves the loop running.
func (e *Engine) Run(ctx context.Context) {
	defer e.shutdown()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)
		case evt := <-e.internal:
			e.handleInternal(ctx, evt)
		case <-ticker.C:
			e.expirePeers(ctx)
		}
	}
}

func (e *Engine) shutdown() {
	close(e.closed)
	_ = e.mdns.Close()
	e.wg.Wait()
	_ = e.host.Close()
}

func (e *Engine) emit(ctx context.Context, evt InboundEvent) {
	select {
	case e.outbound <- evt:
	case <-ctx.Done():
	}
}

// --- command send helpers used by the client facade ---

func (e *Engine) send(ctx context.Context, c command) error {
	select {
	case e.commands <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending map accessors, only ever called from the run-loop goroutine.

func (e *Engine) takePendingDial(p model.PeerId) (chan<- error, bool) {
	ch, ok := e.pendingDial[p]
	if ok {
		delete(e.pendingDial, p)
	}
	return ch, ok
}

func (e *Engine) takePendingRequest(id uint64) (chan<- requestResult, bool) {
	ch, ok := e.pendingRequest[id]
	if ok {
		delete(e.pendingRequest, id)
	}
	return ch, ok
}

func (e *Engine) allocListenerID() model.ListenerId {
	id := atomic.AddUint64(&e.nextListener, 1)
	return model.ListenerId(id)
}

func (e *Engine) allocRequestID() uint64 {
	return atomic.AddUint64(&e.nextRequestID, 1)
}
