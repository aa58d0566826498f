package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsub_pb "github.com/libp2p/go-libp2p-pubsub/pb"

	"github.com/nyxlink/p2pchat/internal/model"
)

// messageIDFn derives a gossipsub message id as the decimal string of the
// 64-bit FNV-1a hash of the raw payload (§6 "Wire protocol").
func messageIDFn(pmsg *pubsub_pb.Message) string {
	h := fnv.New64a()
	h.Write(pmsg.Data)
	return strconv.FormatUint(h.Sum64(), 10)
}

func (e *Engine) doPublish(ctx context.Context, c *publishCmd) {
	topic, ok := e.topics[c.Topic]
	if !ok {
		trySendPublish(c.Reply, publishResult{Err: fmt.Errorf("engine: publish to unsubscribed topic %s", c.Topic)})
		return
	}

	msg := model.GroupMessage{
		Source:    e.localPeer,
		Timestamp: model.NowSeconds(),
		Payload:   c.Payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		trySendPublish(c.Reply, publishResult{Err: fmt.Errorf("engine: encode message: %w", err)})
		return
	}

	if err := topic.Publish(ctx, data); err != nil {
		trySendPublish(c.Reply, publishResult{Err: fmt.Errorf("engine: publish: %w", err)})
		return
	}

	// Re-inject the send so the local node sees its own message the same
	// way it sees any other subscriber's (§4.B Publish).
	e.emit(ctx, InboundEvent{Message: &MessageEvent{Topic: c.Topic, Message: msg}})

	h := fnv.New64a()
	h.Write(data)
	trySendPublish(c.Reply, publishResult{MessageID: strconv.FormatUint(h.Sum64(), 10)})
}

func (e *Engine) doSubscribe(ctx context.Context, c *subscribeCmd) {
	if _, already := e.subs[c.Topic]; already {
		trySend(c.Reply, nil)
		return
	}

	topic, err := e.ps.Join(string(c.Topic))
	if err != nil {
		trySend(c.Reply, fmt.Errorf("engine: join topic %s: %w", c.Topic, err))
		return
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		trySend(c.Reply, fmt.Errorf("engine: subscribe to %s: %w", c.Topic, err))
		return
	}
	evts, err := topic.EventHandler()
	if err != nil {
		sub.Cancel()
		_ = topic.Close()
		trySend(c.Reply, fmt.Errorf("engine: topic events for %s: %w", c.Topic, err))
		return
	}

	e.topics[c.Topic] = topic
	e.subs[c.Topic] = sub

	e.wg.Add(2)
	go e.readTopicMessages(ctx, c.Topic, sub)
	go e.readTopicEvents(ctx, c.Topic, evts)

	e.emit(ctx, InboundEvent{Subscribed: &SubscriptionEvent{Peer: e.localPeer, Topic: c.Topic}})
	trySend(c.Reply, nil)
}

func (e *Engine) doUnsubscribe(ctx context.Context, c *unsubscribeCmd) {
	sub, ok := e.subs[c.Topic]
	if !ok {
		trySend(c.Reply, nil)
		return
	}
	sub.Cancel()
	delete(e.subs, c.Topic)
	if topic, ok := e.topics[c.Topic]; ok {
		_ = topic.Close()
		delete(e.topics, c.Topic)
	}
	e.emit(ctx, InboundEvent{Unsubscribed: &SubscriptionEvent{Peer: e.localPeer, Topic: c.Topic}})
	trySend(c.Reply, nil)
}

// readTopicMessages drains one subscription until it is cancelled, decoding
// each delivery into a GroupMessage. Self-originated deliveries are skipped
// because Publish already re-injected them synchronously.
func (e *Engine) readTopicMessages(ctx context.Context, topic model.TopicHash, sub *pubsub.Subscription) {
	defer e.wg.Done()
	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if raw.ReceivedFrom == e.host.ID() {
			continue
		}
		var msg model.GroupMessage
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			// Every peer on this topic runs the same engine and encodes
			// GroupMessage the same way; a payload that doesn't decode means
			// the wire contract itself is broken, not a transient fluke, so
			// this is fatal rather than logged-and-skipped (§4.B).
			log.Fatalf("pubsub: malformed message on %s, decode failed: %v", topic, err)
		}
		e.emit(ctx, InboundEvent{Message: &MessageEvent{Topic: topic, Message: msg}})
	}
}

// readTopicEvents translates real peer join/leave notifications into
// Subscribed/Unsubscribed events for peers other than the local node, which
// announces itself synthetically from doSubscribe/doUnsubscribe instead.
func (e *Engine) readTopicEvents(ctx context.Context, topic model.TopicHash, evts *pubsub.TopicEventHandler) {
	defer e.wg.Done()
	defer evts.Cancel()
	for {
		pe, err := evts.NextPeerEvent(ctx)
		if err != nil {
			return
		}
		if pe.Peer == e.host.ID() {
			continue
		}
		who := model.NewPeerId(pe.Peer)
		switch pe.Type {
		case pubsub.PeerJoin:
			e.emit(ctx, InboundEvent{Subscribed: &SubscriptionEvent{Peer: who, Topic: topic}})
		case pubsub.PeerLeave:
			e.emit(ctx, InboundEvent{Unsubscribed: &SubscriptionEvent{Peer: who, Topic: topic}})
		}
	}
}

func trySendPublish(ch chan<- publishResult, r publishResult) {
	select {
	case ch <- r:
	default:
	}
}
