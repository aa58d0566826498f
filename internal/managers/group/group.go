// Package group implements the group manager (§4.E): it learns group
// descriptors either from a local new_group call or by pulling them from
// whoever subscribed, maintains each group's append-only history and
// subscriber set, and answers the group command surface.
package group

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

var log = logging.Logger("group-manager")

const Name = "group"

// Manager owns the two maps §4.E describes, each behind its own mutex so
// readers never block on an unrelated write.
type Manager struct {
	descMu sync.Mutex
	groups map[model.GroupId]model.GroupDescriptor

	stateMu sync.Mutex
	states  map[model.GroupId]*model.GroupState
}

func New() *Manager {
	return &Manager{
		groups: make(map[model.GroupId]model.GroupDescriptor),
		states: make(map[model.GroupId]*model.GroupState),
	}
}

func (m *Manager) Name() string { return Name }

func (m *Manager) HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error {
	switch {
	case evt.InboundRequest != nil && evt.InboundRequest.Req.Group != nil:
		return m.handleGroupRequest(ctx, evt.InboundRequest, cli)
	case evt.Message != nil:
		return m.handleMessage(ctx, evt.Message, pres)
	case evt.Subscribed != nil:
		return m.handleSubscribed(ctx, evt.Subscribed, cli, pres)
	case evt.Unsubscribed != nil:
		return m.handleUnsubscribed(ctx, evt.Unsubscribed, pres)
	}
	return nil
}

func (m *Manager) handleGroupRequest(ctx context.Context, req *engine.InboundRequestEvent, cli client.Client) error {
	topic := *req.Req.Group
	id, desc, ok := m.lookupByTopic(topic)
	if !ok {
		log.Debugf("group request for unknown topic %s, dropping", topic)
		return nil
	}
	return cli.Respond(ctx, wire.GroupResponseOf(id, desc), req.Channel)
}

func (m *Manager) handleMessage(ctx context.Context, evt *engine.MessageEvent, pres *presentation.Loop) error {
	id, ok := m.topicToID(evt.Topic)
	if !ok {
		return nil // unknown group: another manager's concern, don't block
	}
	state := m.stateFor(id)
	m.stateMu.Lock()
	state.History = append(state.History, evt.Message)
	m.stateMu.Unlock()

	return pres.Emit(ctx, presentation.FrontendEvent{Message: &presentation.MessageEvent{GroupID: id, Message: evt.Message}})
}

func (m *Manager) handleSubscribed(ctx context.Context, evt *engine.SubscriptionEvent, cli client.Client, pres *presentation.Loop) error {
	id, known := m.topicToID(evt.Topic)
	if !known {
		var desc model.GroupDescriptor
		var err error
		id, desc, err = m.learnGroup(ctx, evt, cli)
		if err != nil {
			return fmt.Errorf("group: learn group for topic %s: %w", evt.Topic, err)
		}
		m.descMu.Lock()
		m.groups[id] = desc
		m.descMu.Unlock()
		if err := pres.Emit(ctx, presentation.FrontendEvent{GroupUpdate: &presentation.GroupUpdateEvent{GroupID: id, Descriptor: desc}}); err != nil {
			return err
		}
	}

	state := m.stateFor(id)
	m.stateMu.Lock()
	if _, already := state.Subscribers[evt.Peer]; already {
		m.stateMu.Unlock()
		return nil
	}
	state.Subscribers[evt.Peer] = struct{}{}
	snapshot := state.Clone()
	m.stateMu.Unlock()

	if err := pres.Emit(ctx, presentation.FrontendEvent{GroupStateUpdate: &presentation.GroupStateUpdateEvent{GroupID: id, State: snapshot}}); err != nil {
		return err
	}
	return pres.Emit(ctx, presentation.FrontendEvent{Subscribed: &presentation.SubscriptionEvent{GroupID: id, Peer: evt.Peer}})
}

// learnGroup resolves a never-seen topic's (GroupId, GroupDescriptor),
// either by adopting the client's pending-new-group slot (self-subscribe
// after new_group) or by pulling the descriptor from the subscribing peer.
func (m *Manager) learnGroup(ctx context.Context, evt *engine.SubscriptionEvent, cli client.Client) (model.GroupId, model.GroupDescriptor, error) {
	if evt.Peer == cli.LocalPeerID() {
		if id, desc, ok := cli.TakePendingGroup(); ok {
			return id, desc, nil
		}
	}

	resp, err := cli.Request(ctx, evt.Peer, wire.GroupRequest(evt.Topic))
	if err != nil {
		return model.GroupId{}, model.GroupDescriptor{}, err
	}
	if resp.Group == nil {
		return model.GroupId{}, model.GroupDescriptor{}, fmt.Errorf("group: peer answered non-group response for %s", evt.Topic)
	}
	return resp.Group.ID, resp.Group.Descriptor, nil
}

func (m *Manager) handleUnsubscribed(ctx context.Context, evt *engine.SubscriptionEvent, pres *presentation.Loop) error {
	id, ok := m.topicToID(evt.Topic)
	if !ok {
		return nil
	}
	state := m.stateFor(id)
	m.stateMu.Lock()
	_, existed := state.Subscribers[evt.Peer]
	delete(state.Subscribers, evt.Peer)
	m.stateMu.Unlock()
	if !existed {
		return nil // P5: idempotent unsubscribe emits nothing
	}
	return pres.Emit(ctx, presentation.FrontendEvent{Unsubscribed: &presentation.SubscriptionEvent{GroupID: id, Peer: evt.Peer}})
}

func (m *Manager) stateFor(id model.GroupId) *model.GroupState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	s, ok := m.states[id]
	if !ok {
		s = model.NewGroupState()
		m.states[id] = s
	}
	return s
}

func (m *Manager) lookupByTopic(topic model.TopicHash) (model.GroupId, model.GroupDescriptor, bool) {
	m.descMu.Lock()
	defer m.descMu.Unlock()
	for id, desc := range m.groups {
		if id.Topic() == topic {
			return id, desc, true
		}
	}
	return model.GroupId{}, model.GroupDescriptor{}, false
}

func (m *Manager) topicToID(topic model.TopicHash) (model.GroupId, bool) {
	m.descMu.Lock()
	defer m.descMu.Unlock()
	for id := range m.groups {
		if id.Topic() == topic {
			return id, true
		}
	}
	return model.GroupId{}, false
}

// --- command surface (§4.E) ---

type getGroupStateParams struct {
	GroupID model.GroupId `json:"group_id"`
}

func (m *Manager) Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error) {
	switch action {
	case "get_groups":
		m.descMu.Lock()
		snapshot := make(map[string]model.GroupDescriptor, len(m.groups))
		for id, desc := range m.groups {
			snapshot[id.String()] = desc
		}
		m.descMu.Unlock()
		return json.Marshal(snapshot)

	case "get_group_state":
		var p getGroupStateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, model.InvalidParams(err)
		}
		m.stateMu.Lock()
		s, ok := m.states[p.GroupID]
		var snapshot model.GroupState
		if ok {
			snapshot = s.Clone()
		}
		m.stateMu.Unlock()
		if !ok {
			return nil, model.GroupNotExist(p.GroupID)
		}
		return json.Marshal(snapshot)

	default:
		return nil, model.InvalidAction(action)
	}
}
