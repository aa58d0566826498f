package engine

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/wire"
)

// The methods in this file are the engine's public command surface (§4.B):
// each allocates a one-shot reply channel, enqueues a command, and awaits
// the reply or ctx cancellation. The client facade (§4.C) is built on top
// of these.

func (e *Engine) StartListen(ctx context.Context, addr ma.Multiaddr) (model.ListenerId, error) {
	reply := make(chan startListenResult, 1)
	if err := e.send(ctx, command{startListen: &startListenCmd{Addr: addr, Reply: reply}}); err != nil {
		return 0, err
	}
	select {
	case r := <-reply:
		return r.ListenerID, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *Engine) StopListen(ctx context.Context, ids []model.ListenerId) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, command{stopListen: &stopListenCmd{IDs: ids, Reply: reply}}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Dial(ctx context.Context, peer model.PeerId, addr ma.Multiaddr) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, command{dial: &dialCmd{Peer: peer, Addr: addr, Reply: reply}}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Request(ctx context.Context, peer model.PeerId, req wire.Request) (wire.Response, error) {
	reply := make(chan requestResult, 1)
	if err := e.send(ctx, command{request: &requestCmd{Peer: peer, Req: req, Reply: reply}}); err != nil {
		return wire.Response{}, err
	}
	select {
	case r := <-reply:
		return r.Resp, r.Err
	case <-ctx.Done():
		return wire.Response{}, ctx.Err()
	}
}

// Respond answers a previously captured InboundRequest via its
// ResponseChannel.
func (e *Engine) Respond(ctx context.Context, resp wire.Response, ch *ResponseChannel) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, command{response: &responseCmd{Resp: resp, Channel: ch, Reply: reply}}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Publish(ctx context.Context, topic model.TopicHash, payload model.MessagePayload) (string, error) {
	reply := make(chan publishResult, 1)
	if err := e.send(ctx, command{publish: &publishCmd{Topic: topic, Payload: payload, Reply: reply}}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.MessageID, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *Engine) Subscribe(ctx context.Context, topic model.TopicHash) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, command{subscribe: &subscribeCmd{Topic: topic, Reply: reply}}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Unsubscribe(ctx context.Context, topic model.TopicHash) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, command{unsubscribe: &unsubscribeCmd{Topic: topic, Reply: reply}}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) ConnectedPeers(ctx context.Context) ([]model.PeerId, error) {
	reply := make(chan []model.PeerId, 1)
	if err := e.send(ctx, command{connPeers: &connectedPeersCmd{Reply: reply}}); err != nil {
		return nil, err
	}
	select {
	case peers := <-reply:
		return peers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
