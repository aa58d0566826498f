package engine

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/wire"
)

// handleInboundStream is registered against ProtocolID. It owns decoding
// the request and handing the stream off as a ResponseChannel the
// dispatcher's consumers answer exactly once (§4.B InboundRequest).
func (e *Engine) handleInboundStream(s network.Stream) {
	req, err := wire.ReadRequest(s)
	if err != nil {
		log.Warnf("request: malformed inbound frame from %s: %v", s.Conn().RemotePeer(), err)
		_ = s.Reset()
		return
	}

	from := model.NewPeerId(s.Conn().RemotePeer())
	evt := InboundEvent{InboundRequest: &InboundRequestEvent{
		From:    from,
		Req:     req,
		Channel: newResponseChannel(s),
	}}

	select {
	case e.outbound <- evt:
	case <-e.shutdownSignal():
		_ = s.Reset()
	}
}

func (e *Engine) doRequest(ctx context.Context, c *requestCmd) {
	id := e.allocRequestID()
	e.pendingRequest[id] = c.Reply

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		resp, err := e.roundTrip(ctx, c.Peer, c.Req)
		select {
		case e.internal <- requestCompleted{ID: id, Result: requestResult{Resp: resp, Err: err}}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) roundTrip(ctx context.Context, peerID model.PeerId, req wire.Request) (wire.Response, error) {
	s, err := e.host.NewStream(ctx, peerID.Raw(), ProtocolID)
	if err != nil {
		return wire.Response{}, fmt.Errorf("engine: open stream to %s: %w", peerID, err)
	}
	defer s.Close()

	if err := wire.WriteRequest(closeWriter{s}, req); err != nil {
		_ = s.Reset()
		return wire.Response{}, fmt.Errorf("engine: write request: %w", err)
	}
	resp, err := wire.ReadResponse(s)
	if err != nil {
		_ = s.Reset()
		return wire.Response{}, fmt.Errorf("engine: read response: %w", err)
	}
	return resp, nil
}

// closeWriter lets roundTrip reuse wire.WriteRequest's half-close semantics
// (it writes then calls CloseWrite so the peer sees EOF on its read half)
// without closing the whole stream before the response arrives.
type closeWriter struct {
	network.Stream
}

func (c closeWriter) Close() error { return c.Stream.CloseWrite() }

func (e *Engine) doResponse(ctx context.Context, c *responseCmd) {
	s, ok := c.Channel.Take()
	if !ok {
		trySend(c.Reply, fmt.Errorf("engine: response channel already used"))
		return
	}
	defer s.Close()
	if err := wire.WriteResponse(closeWriter{s}, c.Resp); err != nil {
		_ = s.Reset()
		trySend(c.Reply, fmt.Errorf("engine: write response: %w", err))
		return
	}
	trySend(c.Reply, nil)
}

// shutdownSignal lets handleInboundStream, which runs on a libp2p-owned
// goroutine rather than the run loop, avoid blocking forever on outbound
// once the engine is tearing down. The channel is closed by shutdown, which
// Run defers, so it fires once the context passed to Run is cancelled. The
// stream handler is registered in New, so it can also run before Run has
// started; its events then wait in the buffered outbound queue.
func (e *Engine) shutdownSignal() <-chan struct{} {
	return e.closed
}
