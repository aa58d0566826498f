package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/command"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

type countingManager struct {
	name string
	mu   *sync.Mutex
	seen *int
}

func newCountingManager(name string, mu *sync.Mutex, seen *int) countingManager {
	return countingManager{name: name, mu: mu, seen: seen}
}

func (m countingManager) Name() string { return m.name }

func (m countingManager) HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error {
	m.mu.Lock()
	*m.seen++
	m.mu.Unlock()
	return nil
}

func (m countingManager) Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	return nil, model.InvalidAction(action)
}

type erroringManager struct{ name string }

func (m erroringManager) Name() string { return m.name }

func (m erroringManager) HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error {
	return context.DeadlineExceeded
}

func (m erroringManager) Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	return nil, model.InvalidAction(action)
}

func TestDispatchFansOutToEveryManager(t *testing.T) {
	var mu sync.Mutex
	seenA, seenB := 0, 0

	outbound := make(chan engine.InboundEvent, 1)
	d := &Dispatcher{
		outbound: outbound,
		managers: []command.Manager{
			newCountingManager("a", &mu, &seenA),
			newCountingManager("b", &mu, &seenB),
		},
		cli: client.NewDetached(model.NewPeerId("local")),
	}

	d.dispatch(context.Background(), engine.InboundEvent{Message: &engine.MessageEvent{}})

	mu.Lock()
	defer mu.Unlock()
	if seenA != 1 || seenB != 1 {
		t.Fatalf("expected both managers to see the event once, got a=%d b=%d", seenA, seenB)
	}
}

func TestDispatchOneManagerErrorDoesNotBlockOthers(t *testing.T) {
	var mu sync.Mutex
	seen := 0

	d := &Dispatcher{
		managers: []command.Manager{
			erroringManager{name: "broken"},
			newCountingManager("ok", &mu, &seen),
		},
		cli: client.NewDetached(model.NewPeerId("local")),
	}

	done := make(chan struct{})
	go func() {
		d.dispatch(context.Background(), engine.InboundEvent{Message: &engine.MessageEvent{}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return; a manager error appears to have blocked the others")
	}

	mu.Lock()
	defer mu.Unlock()
	if seen != 1 {
		t.Fatalf("expected the healthy manager to still run, got seen=%d", seen)
	}
}

func TestBookkeepListenersAppendsAndRemoves(t *testing.T) {
	cli := client.NewDetached(model.NewPeerId("local"))
	d := &Dispatcher{cli: cli}

	id := model.ListenerId(1)
	d.bookkeepListeners(engine.InboundEvent{NewListenAddr: &engine.ListenAddrEvent{ListenerID: id, Address: "/ip4/127.0.0.1/tcp/4001"}})

	got := cli.GetListeners()
	if len(got[id]) != 1 {
		t.Fatalf("expected the address to be recorded, got %v", got[id])
	}

	d.bookkeepListeners(engine.InboundEvent{ListenerClosed: &engine.ListenerClosedEvent{ListenerID: id, Addresses: []string{"/ip4/127.0.0.1/tcp/4001"}}})
	got = cli.GetListeners()
	if _, exists := got[id]; exists {
		t.Fatalf("expected the listener entry to be dropped, got %v", got[id])
	}
}
