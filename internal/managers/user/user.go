// Package user implements the user manager (§4.F): it mirrors peer
// identity and presence, eagerly fetching a profile the first time a peer
// is seen and tracking which groups each peer is known to subscribe to.
package user

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
	"github.com/nyxlink/p2pchat/internal/wire"
)

var log = logging.Logger("user-manager")

const Name = "user"

// LocalProfile is supplied at construction so the manager can answer
// requests about the local peer without a round trip (§4.F).
type Manager struct {
	local model.LocalProfile

	mu            sync.Mutex
	users         map[model.PeerId]model.UserProfile
	subscriptions map[model.PeerId]map[model.TopicHash]struct{}
}

func New(local model.LocalProfile) *Manager {
	return &Manager{
		local:         local,
		users:         make(map[model.PeerId]model.UserProfile),
		subscriptions: make(map[model.PeerId]map[model.TopicHash]struct{}),
	}
}

func (m *Manager) Name() string { return Name }

func (m *Manager) HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error {
	switch {
	case evt.InboundRequest != nil && evt.InboundRequest.Req.User != nil:
		return m.handleUserRequest(ctx, evt.InboundRequest, cli)
	case evt.PeerDiscovered != nil:
		return m.handleDiscovered(ctx, *evt.PeerDiscovered, cli, pres)
	case evt.PeerExpired != nil:
		return m.handleExpired(ctx, *evt.PeerExpired, pres)
	case evt.Subscribed != nil:
		return m.handleSubscribed(ctx, evt.Subscribed, cli, pres)
	case evt.Unsubscribed != nil:
		return m.handleUnsubscribed(evt.Unsubscribed)
	}
	return nil
}

func (m *Manager) handleUserRequest(ctx context.Context, req *engine.InboundRequestEvent, cli client.Client) error {
	target := *req.Req.User

	if target == cli.LocalPeerID() {
		return cli.Respond(ctx, wire.UserResponse(m.local.ToProfile()), req.Channel)
	}

	m.mu.Lock()
	profile, ok := m.users[target]
	m.mu.Unlock()
	if !ok {
		log.Debugf("user request for unknown peer %s, dropping", target)
		return nil
	}
	return cli.Respond(ctx, wire.UserResponse(profile), req.Channel)
}

// ensureProfile fetches and records a peer's profile if not already known,
// synthesizing it directly for the local peer (§4.F).
func (m *Manager) ensureProfile(ctx context.Context, peer model.PeerId, cli client.Client, pres *presentation.Loop) error {
	m.mu.Lock()
	_, known := m.users[peer]
	m.mu.Unlock()
	if known {
		return nil
	}

	var profile model.UserProfile
	if peer == cli.LocalPeerID() {
		profile = m.local.ToProfile()
	} else {
		resp, err := cli.Request(ctx, peer, wire.UserRequest(peer))
		if err != nil {
			return fmt.Errorf("user: fetch profile for %s: %w", peer, err)
		}
		if resp.User == nil {
			return fmt.Errorf("user: peer %s answered non-user response", peer)
		}
		profile = *resp.User
	}

	m.mu.Lock()
	m.users[peer] = profile
	m.mu.Unlock()

	return pres.Emit(ctx, presentation.FrontendEvent{UserUpdate: &presentation.UserUpdateEvent{Peer: peer, Profile: profile}})
}

func (m *Manager) handleDiscovered(ctx context.Context, peer model.PeerId, cli client.Client, pres *presentation.Loop) error {
	m.mu.Lock()
	_, known := m.users[peer]
	m.mu.Unlock()
	if known {
		return nil
	}
	return m.ensureProfile(ctx, peer, cli, pres)
}

func (m *Manager) handleExpired(ctx context.Context, peer model.PeerId, pres *presentation.Loop) error {
	m.mu.Lock()
	profile, ok := m.users[peer]
	if ok {
		profile.Status = model.StatusOffline
		m.users[peer] = profile
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return pres.Emit(ctx, presentation.FrontendEvent{UserUpdate: &presentation.UserUpdateEvent{Peer: peer, Profile: profile}})
}

func (m *Manager) handleSubscribed(ctx context.Context, evt *engine.SubscriptionEvent, cli client.Client, pres *presentation.Loop) error {
	if err := m.ensureProfile(ctx, evt.Peer, cli, pres); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[evt.Peer]; !ok {
		return model.PeerNotExist(evt.Peer)
	}
	subs, ok := m.subscriptions[evt.Peer]
	if !ok {
		subs = make(map[model.TopicHash]struct{})
		m.subscriptions[evt.Peer] = subs
	}
	subs[evt.Topic] = struct{}{}
	return nil
}

func (m *Manager) handleUnsubscribed(evt *engine.SubscriptionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscriptions[evt.Peer]; ok {
		delete(subs, evt.Topic)
	}
	return nil
}

// --- command surface (§4.F) ---

type getUserInfoParams struct {
	Peer model.PeerId `json:"peer"`
}

func (m *Manager) Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	switch action {
	case "get_user_info":
		var p getUserInfoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, model.InvalidParams(err)
		}
		m.mu.Lock()
		profile, ok := m.users[p.Peer]
		m.mu.Unlock()
		if !ok {
			return nil, model.PeerNotExist(p.Peer)
		}
		return json.Marshal(profile)

	case "get_users":
		m.mu.Lock()
		snapshot := make(map[string]model.UserProfile, len(m.users))
		for peer, profile := range m.users {
			snapshot[peer.String()] = profile
		}
		m.mu.Unlock()
		return json.Marshal(snapshot)

	default:
		return nil, model.InvalidAction(action)
	}
}
