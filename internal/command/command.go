// Package command implements the polymorphic manager surface (§4.H): every
// manager handles inbound engine events and answers named invocations, and
// the facade here dispatches invoke_manager calls by manager name.
package command

import (
	"context"
	"encoding/json"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

// Manager is implemented by every component the dispatcher fans inbound
// events out to and the facade can invoke by name.
type Manager interface {
	Name() string
	HandleInboundEvent(ctx context.Context, evt engine.InboundEvent, cli client.Client, pres *presentation.Loop) error
	Invoke(ctx context.Context, action string, params json.RawMessage) (json.RawMessage, error)
}

// Facade carries the name → manager map invoke_manager dispatches through.
type Facade struct {
	managers map[string]Manager
	order    []string
}

// NewFacade builds a Facade over the given managers, keyed by Name().
func NewFacade(managers ...Manager) *Facade {
	f := &Facade{managers: make(map[string]Manager, len(managers))}
	for _, m := range managers {
		f.managers[m.Name()] = m
		f.order = append(f.order, m.Name())
	}
	return f
}

// InvokeManager looks up name and forwards to its Invoke. An unknown name
// fails with CommandNotFound (§4.H).
func (f *Facade) InvokeManager(ctx context.Context, name, action string, params json.RawMessage) (json.RawMessage, error) {
	m, ok := f.managers[name]
	if !ok {
		return nil, model.CommandNotFound(name)
	}
	return m.Invoke(ctx, action, params)
}

// GetManagers returns every registered manager's name (the get_managers
// command surface, §4.H).
func (f *Facade) GetManagers() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Managers returns the registered managers in registration order, for the
// dispatcher's per-event fan-out.
func (f *Facade) Managers() []Manager {
	out := make([]Manager, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.managers[name])
	}
	return out
}
