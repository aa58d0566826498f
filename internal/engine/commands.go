package engine

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/wire"
)

// command is the internal envelope the engine's run loop selects on
// alongside raw swarm activity. Every public command method in api.go
// builds one of these and sends it to the engine's command queue.
type command struct {
	startListen *startListenCmd
	stopListen  *stopListenCmd
	dial        *dialCmd
	request     *requestCmd
	response    *responseCmd
	publish     *publishCmd
	subscribe   *subscribeCmd
	unsubscribe *unsubscribeCmd
	connPeers   *connectedPeersCmd
}

type startListenCmd struct {
	Addr  ma.Multiaddr
	Reply chan<- startListenResult
}

type startListenResult struct {
	ListenerID model.ListenerId
	Err        error
}

type stopListenCmd struct {
	IDs   []model.ListenerId
	Reply chan<- error
}

type dialCmd struct {
	Peer  model.PeerId
	Addr  ma.Multiaddr
	Reply chan<- error
}

type requestCmd struct {
	Peer  model.PeerId
	Req   wire.Request
	Reply chan<- requestResult
}

type requestResult struct {
	Resp wire.Response
	Err  error
}

type responseCmd struct {
	Resp    wire.Response
	Channel *ResponseChannel
	Reply   chan<- error
}

type publishCmd struct {
	Topic   model.TopicHash
	Payload model.MessagePayload
	Reply   chan<- publishResult
}

type publishResult struct {
	MessageID string
	Err       error
}

type subscribeCmd struct {
	Topic model.TopicHash
	Reply chan<- error
}

type unsubscribeCmd struct {
	Topic model.TopicHash
	Reply chan<- error
}

type connectedPeersCmd struct {
	Reply chan<- []model.PeerId
}
