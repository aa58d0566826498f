package engine

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/wire"
)

// InboundEvent is the tagged union the engine emits onto its outbound
// queue for the dispatcher to fan out (§4.B "Inbound classification").
type InboundEvent struct {
	Message         *MessageEvent
	Subscribed      *SubscriptionEvent
	Unsubscribed    *SubscriptionEvent
	PeerDiscovered  *model.PeerId
	PeerExpired     *model.PeerId
	InboundRequest  *InboundRequestEvent
	NewListenAddr   *ListenAddrEvent
	ListenerClosed  *ListenerClosedEvent
}

type MessageEvent struct {
	Topic   model.TopicHash
	Message model.GroupMessage
}

type SubscriptionEvent struct {
	Peer  model.PeerId
	Topic model.TopicHash
}

type InboundRequestEvent struct {
	From    model.PeerId // the peer that opened the stream
	Req     wire.Request
	Channel *ResponseChannel
}

type ListenAddrEvent struct {
	ListenerID model.ListenerId
	Address    string
}

type ListenerClosedEvent struct {
	ListenerID model.ListenerId
	Addresses  []string
}

// ResponseChannel wraps an inbound request's stream so ownership of the
// "answer this" capability can be transferred exactly once. A second Take
// yields ok=false (§4.B InboundRequest).
type ResponseChannel struct {
	once   sync.Once
	taken  bool
	stream network.Stream
}

func newResponseChannel(s network.Stream) *ResponseChannel {
	return &ResponseChannel{stream: s}
}

// Take hands over the underlying stream exactly once.
func (c *ResponseChannel) Take() (network.Stream, bool) {
	var s network.Stream
	taken := false
	c.once.Do(func() {
		s = c.stream
		taken = true
		c.taken = true
	})
	return s, taken
}
