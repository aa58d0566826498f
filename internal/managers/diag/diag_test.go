package diag

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/model"
)

func TestInvokeInvalidAction(t *testing.T) {
	m := New(client.NewDetached(model.NewPeerId("local")))
	_, err := m.Invoke(context.Background(), "frobnicate", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	me, ok := model.AsManagerError(err)
	if !ok || me.Kind != model.KindInvalidAction {
		t.Fatalf("expected InvalidAction, got %v", err)
	}
}

func TestName(t *testing.T) {
	m := New(client.NewDetached(model.NewPeerId("local")))
	if m.Name() != "diagnostics" {
		t.Fatalf("expected name %q, got %q", "diagnostics", m.Name())
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	// Snapshot itself (not Invoke, which needs a live engine for
	// ConnectedPeers/Uptime) should round-trip through JSON with the field
	// names the command surface promises.
	snap := Snapshot{
		PeerID:         model.NewPeerId("local"),
		ConnectedPeers: 3,
		ListenAddrs:    []string{"/ip4/127.0.0.1/tcp/4001"},
		UptimeSeconds:  42,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"peer_id", "connected_peers", "listen_addrs", "uptime_seconds"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("expected key %q in diagnostics snapshot, got %v", key, got)
		}
	}
}
