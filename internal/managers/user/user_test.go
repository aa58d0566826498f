package user

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

type recordingSink struct {
	mu     sync.Mutex
	events []presentation.FrontendEvent
}

func (s *recordingSink) Handle(name string, evt presentation.FrontendEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

// drain emits a marker event and waits until the loop has delivered it.
// The loop forwards in order, so every event emitted before the marker has
// reached the sink by then; drain returns those events.
func drain(t *testing.T, loop *presentation.Loop, sink *recordingSink) []presentation.FrontendEvent {
	t.Helper()
	marker := presentation.Err("drain marker")
	if err := loop.Emit(context.Background(), marker); err != nil {
		t.Fatalf("emit drain marker: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.events)
		if n > 0 && sink.events[n-1].Error == marker.Error {
			out := make([]presentation.FrontendEvent, n-1)
			copy(out, sink.events[:n-1])
			sink.mu.Unlock()
			return out
		}
		sink.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for presentation events")
		}
		time.Sleep(time.Millisecond)
	}
}

// testPeerID builds a PeerId from a fresh Ed25519 key, so its textual form
// survives the JSON round trip that get_user_info params go through.
func testPeerID(t *testing.T) model.PeerId {
	t.Helper()
	_, pub, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatal(err)
	}
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return model.NewPeerId(id)
}

func newTestLoop() (*presentation.Loop, *recordingSink, func()) {
	sink := &recordingSink{}
	loop := presentation.NewLoop(sink, 100)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	return loop, sink, cancel
}

func TestDiscoveredLocalPeerSynthesizesProfileWithoutRequest(t *testing.T) {
	local := testPeerID(t)
	cli := client.NewDetached(local)

	m := New(model.LocalProfile{Name: "nile"})
	loop, _, cancel := newTestLoop()
	defer cancel()

	evt := engine.InboundEvent{PeerDiscovered: &local}
	if err := m.HandleInboundEvent(context.Background(), evt, cli, loop); err != nil {
		t.Fatalf("HandleInboundEvent: %v", err)
	}

	raw, err := m.Invoke(context.Background(), "get_user_info", mustJSON(t, map[string]any{"peer": local}))
	if err != nil {
		t.Fatalf("Invoke get_user_info: %v", err)
	}
	var profile model.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		t.Fatalf("unmarshal profile: %v", err)
	}
	if profile.Name != "nile" {
		t.Fatalf("expected the local profile name, got %q", profile.Name)
	}
}

func TestPeerExpiredTransitionsToOffline(t *testing.T) {
	local := model.NewPeerId("local")
	peerID := model.NewPeerId("remote")
	cli := client.NewDetached(local)

	m := New(model.LocalProfile{Name: "nile"})
	// Seed a known online profile the way a prior discovery would.
	m.mu.Lock()
	m.users[peerID] = model.UserProfile{Name: "friend", Status: model.StatusOnline}
	m.mu.Unlock()

	loop, sink, cancel := newTestLoop()
	defer cancel()

	evt := engine.InboundEvent{PeerExpired: &peerID}
	if err := m.HandleInboundEvent(context.Background(), evt, cli, loop); err != nil {
		t.Fatalf("HandleInboundEvent: %v", err)
	}

	m.mu.Lock()
	got := m.users[peerID]
	m.mu.Unlock()
	if got.Status != model.StatusOffline {
		t.Fatalf("expected status offline after expiry, got %v", got.Status)
	}

	found := false
	for _, e := range drain(t, loop, sink) {
		if e.UserUpdate != nil && e.UserUpdate.Peer == peerID && e.UserUpdate.Profile.Status == model.StatusOffline {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a user-update presentation event reporting offline status")
	}
}

func TestGetUserInfoUnknownPeer(t *testing.T) {
	m := New(model.LocalProfile{Name: "nile"})
	unknown := testPeerID(t)
	_, err := m.Invoke(context.Background(), "get_user_info", mustJSON(t, map[string]any{"peer": unknown}))
	if err == nil {
		t.Fatal("expected PeerNotExist for an unknown peer")
	}
	me, ok := model.AsManagerError(err)
	if !ok || me.Kind != model.KindPeerNotExist {
		t.Fatalf("expected PeerNotExist, got %v", err)
	}
}

func TestInvokeInvalidAction(t *testing.T) {
	m := New(model.LocalProfile{Name: "nile"})
	_, err := m.Invoke(context.Background(), "frobnicate", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	me, ok := model.AsManagerError(err)
	if !ok || me.Kind != model.KindInvalidAction {
		t.Fatalf("expected InvalidAction, got %v", err)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
