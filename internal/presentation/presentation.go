// Package presentation implements the outward-facing event loop (§4.G): a
// single task that forwards FrontendEvent values to an external sink under
// a fixed event-name convention, preserving per-event-name order.
package presentation

import (
	"context"
	"fmt"

	"github.com/nyxlink/p2pchat/internal/model"
)

// Sink is the external surface the loop forwards named events to — a UI
// bridge, a test recorder, anything that can take an event name and its
// JSON-able payload.
type Sink interface {
	Handle(name string, evt FrontendEvent)
}

// FrontendEvent is the tagged union the presentation loop forwards. Exactly
// one field is set.
type FrontendEvent struct {
	Listen           *ListenEvent
	Message          *MessageEvent
	Subscribed       *SubscriptionEvent
	Unsubscribed     *SubscriptionEvent
	GroupUpdate      *GroupUpdateEvent
	GroupStateUpdate *GroupStateUpdateEvent
	UserUpdate       *UserUpdateEvent
	Error            *ErrorEvent
}

// Name returns the fixed event-name convention the loop forwards under.
func (e FrontendEvent) Name() string {
	switch {
	case e.Listen != nil:
		return "listen"
	case e.Message != nil:
		return "message"
	case e.Subscribed != nil:
		return "subscribed"
	case e.Unsubscribed != nil:
		return "unsubscribed"
	case e.GroupUpdate != nil:
		return "group-update"
	case e.GroupStateUpdate != nil:
		return "group-state-update"
	case e.UserUpdate != nil:
		return "user-update"
	case e.Error != nil:
		return "error"
	default:
		return ""
	}
}

type ListenEvent struct {
	ListenerID model.ListenerId `json:"listener_id"`
	Address    string           `json:"address"`
}

type MessageEvent struct {
	GroupID model.GroupId      `json:"group_id"`
	Message model.GroupMessage `json:"message"`
}

type SubscriptionEvent struct {
	GroupID model.GroupId `json:"group_id"`
	Peer    model.PeerId  `json:"peer"`
}

type GroupUpdateEvent struct {
	GroupID    model.GroupId          `json:"group_id"`
	Descriptor model.GroupDescriptor  `json:"descriptor"`
}

type GroupStateUpdateEvent struct {
	GroupID model.GroupId    `json:"group_id"`
	State   model.GroupState `json:"state"`
}

type UserUpdateEvent struct {
	Peer    model.PeerId      `json:"peer"`
	Profile model.UserProfile `json:"profile"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func Err(format string, args ...any) FrontendEvent {
	return FrontendEvent{Error: &ErrorEvent{Message: fmt.Sprintf(format, args...)}}
}

// Loop is the single-task presentation event loop. Emit applies backpressure
// by blocking the caller when the queue is full (S6), rather than dropping.
type Loop struct {
	sink  Sink
	queue chan FrontendEvent
}

// NewLoop builds a Loop with the given queue capacity (§5 "Backpressure").
func NewLoop(sink Sink, capacity int) *Loop {
	return &Loop{sink: sink, queue: make(chan FrontendEvent, capacity)}
}

// Emit enqueues evt, blocking until there is room or ctx is done.
func (l *Loop) Emit(ctx context.Context, evt FrontendEvent) error {
	select {
	case l.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue and forwards each event to the sink in arrival
// order, one event-name stream at a time (§4.G ordering guarantee is
// trivially satisfied by the single-consumer loop).
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-l.queue:
			l.sink.Handle(evt.Name(), evt)
		}
	}
}
