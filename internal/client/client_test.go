package client

import (
	"sync"
	"testing"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/nyxlink/p2pchat/internal/model"
)

// newTestClient builds a Client with no engine attached, for exercising the
// facade's own bookkeeping (listener map, pending-group slot) in isolation.
func newTestClient() Client {
	return Client{
		mu:        &sync.Mutex{},
		listeners: make(map[model.ListenerId][]string),
		pending:   &pendingGroupSlot{},
	}
}

func TestSplitPeerAddrValid(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/9000/p2p/QmZ4P4TT8Lo7AJ8yzdEj8KV1sEUfSXHv3YQJk6Gm7H2C5u")
	if err != nil {
		t.Fatalf("parse test multiaddr: %v", err)
	}
	peerID, transport, err := splitPeerAddr(addr)
	if err != nil {
		t.Fatalf("splitPeerAddr: %v", err)
	}
	if peerID.IsZero() {
		t.Fatal("expected a non-zero peer id")
	}
	if transport == nil {
		t.Fatal("expected a non-nil transport multiaddr")
	}
}

func TestSplitPeerAddrMissingPeerID(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/9000")
	if err != nil {
		t.Fatalf("parse test multiaddr: %v", err)
	}
	_, _, err = splitPeerAddr(addr)
	if err == nil {
		t.Fatal("expected an error for an address with no /p2p component")
	}
	var netErr *model.NetworkError
	if !asNetworkError(err, &netErr) {
		t.Fatalf("expected *model.NetworkError, got %T: %v", err, err)
	}
}

func asNetworkError(err error, target **model.NetworkError) bool {
	if e, ok := err.(*model.NetworkError); ok {
		*target = e
		return true
	}
	return false
}

func TestPendingGroupSlotSingular(t *testing.T) {
	c := newTestClient()

	if _, _, ok := c.TakePendingGroup(); ok {
		t.Fatal("expected an empty slot before any SetPendingGroup call")
	}

	id1 := model.NewGroupId()
	c.SetPendingGroup(id1, model.GroupDescriptor{Name: "first"})

	// A second Set before Take overwrites the first (P7).
	id2 := model.NewGroupId()
	c.SetPendingGroup(id2, model.GroupDescriptor{Name: "second"})

	gotID, desc, ok := c.TakePendingGroup()
	if !ok {
		t.Fatal("expected the slot to be set")
	}
	if gotID != id2 || desc.Name != "second" {
		t.Fatalf("expected the second set to win, got id=%v desc=%+v", gotID, desc)
	}

	if _, _, ok := c.TakePendingGroup(); ok {
		t.Fatal("expected Take to clear the slot")
	}
}

func TestListenerBookkeeping(t *testing.T) {
	c := newTestClient()
	id := model.ListenerId(1)

	c.AppendListenerAddr(id, "/ip4/127.0.0.1/tcp/4001")
	c.AppendListenerAddr(id, "/ip4/192.168.1.5/tcp/4001")

	got := c.GetListeners()
	if len(got[id]) != 2 {
		t.Fatalf("expected 2 addresses, got %v", got[id])
	}

	c.RemoveListenerAddrs(id, []string{"/ip4/127.0.0.1/tcp/4001"})
	got = c.GetListeners()
	if len(got[id]) != 1 || got[id][0] != "/ip4/192.168.1.5/tcp/4001" {
		t.Fatalf("expected the remaining address only, got %v", got[id])
	}

	c.RemoveListenerAddrs(id, []string{"/ip4/192.168.1.5/tcp/4001"})
	got = c.GetListeners()
	if _, exists := got[id]; exists {
		t.Fatalf("expected the listener entry to be dropped once empty, got %v", got[id])
	}
}

func TestGetListenersSnapshotIsIndependent(t *testing.T) {
	c := newTestClient()
	id := model.ListenerId(1)
	c.AppendListenerAddr(id, "/ip4/127.0.0.1/tcp/4001")

	snap := c.GetListeners()
	snap[id][0] = "mutated"

	got := c.GetListeners()
	if got[id][0] != "/ip4/127.0.0.1/tcp/4001" {
		t.Fatalf("mutating a snapshot affected internal state: %v", got[id])
	}
}
