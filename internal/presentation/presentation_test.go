package presentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nyxlink/p2pchat/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	names  []string
	events []FrontendEvent
}

func (s *recordingSink) Handle(name string, evt FrontendEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.events = append(s.events, evt)
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func TestFrontendEventName(t *testing.T) {
	cases := []struct {
		evt  FrontendEvent
		want string
	}{
		{FrontendEvent{Listen: &ListenEvent{}}, "listen"},
		{FrontendEvent{Message: &MessageEvent{}}, "message"},
		{FrontendEvent{Subscribed: &SubscriptionEvent{}}, "subscribed"},
		{FrontendEvent{Unsubscribed: &SubscriptionEvent{}}, "unsubscribed"},
		{FrontendEvent{GroupUpdate: &GroupUpdateEvent{}}, "group-update"},
		{FrontendEvent{GroupStateUpdate: &GroupStateUpdateEvent{}}, "group-state-update"},
		{FrontendEvent{UserUpdate: &UserUpdateEvent{}}, "user-update"},
		{Err("boom %d", 1), "error"},
	}
	for _, c := range cases {
		if got := c.evt.Name(); got != c.want {
			t.Errorf("Name() = %q, want %q", got, c.want)
		}
	}
}

func TestLoopForwardsInOrder(t *testing.T) {
	sink := &recordingSink{}
	loop := NewLoop(sink, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)

	id := model.NewGroupId()
	events := []FrontendEvent{
		{GroupUpdate: &GroupUpdateEvent{GroupID: id}},
		{Message: &MessageEvent{GroupID: id}},
		{Subscribed: &SubscriptionEvent{GroupID: id}},
	}
	for _, evt := range events {
		if err := loop.Emit(ctx, evt); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for {
		if len(sink.snapshot()) == len(events) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %v", sink.snapshot())
		case <-time.After(time.Millisecond):
		}
	}

	want := []string{"group-update", "message", "subscribed"}
	got := sink.snapshot()
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("event %d: got %q, want %q (full: %v)", i, got[i], name, got)
		}
	}
}

func TestEmitBlocksWhenFullUntilContextDone(t *testing.T) {
	loop := NewLoop(&recordingSink{}, 1)
	// Fill the queue without a consumer running.
	if err := loop.Emit(context.Background(), FrontendEvent{Error: &ErrorEvent{Message: "first"}}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := loop.Emit(ctx, FrontendEvent{Error: &ErrorEvent{Message: "second"}})
	if err == nil {
		t.Fatal("expected Emit to block until the context was done, got nil error")
	}
}
