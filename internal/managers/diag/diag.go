// Package diag implements the diagnostic snapshot command surface, a
// stripped-down version of the teacher's p2p.Node.DiagSnapshot: connected
// peer count, listener addresses, and uptime, reachable through the same
// invoke_manager surface every other manager answers (§4.H).
package diag

import (
	"context"
	"encoding/json"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

const Name = "diagnostics"

// Manager answers get_diagnostics. It does not react to inbound events —
// it only reports the live state the client facade already tracks.
type Manager struct {
	cli client.Client
}

func New(cli client.Client) *Manager {
	return &Manager{cli: cli}
}

func (m *Manager) Name() string { return Name }

func (m *Manager) HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error {
	return nil
}

// Snapshot is the get_diagnostics result shape, mirroring the fields of the
// teacher's DiagSnapshot that still make sense without a relay/UI layer.
type Snapshot struct {
	PeerID         model.PeerId `json:"peer_id"`
	ConnectedPeers int          `json:"connected_peers"`
	ListenAddrs    []string     `json:"listen_addrs"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
}

func (m *Manager) Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	switch action {
	case "get_diagnostics":
		peers, err := m.cli.ConnectedPeers(ctx)
		if err != nil {
			return nil, err
		}

		var listenAddrs []string
		for _, addrs := range m.cli.GetListeners() {
			listenAddrs = append(listenAddrs, addrs...)
		}

		snap := Snapshot{
			PeerID:         m.cli.LocalPeerID(),
			ConnectedPeers: len(peers),
			ListenAddrs:    listenAddrs,
			UptimeSeconds:  int64(m.cli.Uptime().Seconds()),
		}
		return json.Marshal(snap)

	default:
		return nil, model.InvalidAction(action)
	}
}
