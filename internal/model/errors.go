package model

import (
	"errors"
	"fmt"
)

// NetworkError is the tagged taxonomy of network failures. Every kind
// renders as a human-readable string; the tag survives errors.As for
// callers that want to branch. Only KindInvalidAddress is constructed in
// this module (by client.Dial); the engine's command replies carry plain
// wrapped errors, not NetworkError values.
type NetworkError struct {
	Kind NetworkErrorKind
	Err  error
}

type NetworkErrorKind string

const (
	KindTransport      NetworkErrorKind = "transport"
	KindPublish        NetworkErrorKind = "publish"
	KindSubscription   NetworkErrorKind = "subscription"
	KindRequest        NetworkErrorKind = "request"
	KindInvalidAddress NetworkErrorKind = "invalid_address"
	KindOther          NetworkErrorKind = "other"
)

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func NewNetworkError(kind NetworkErrorKind, err error) *NetworkError {
	return &NetworkError{Kind: kind, Err: err}
}

// InvalidAddress reports that a multiaddr did not terminate in a peer ID
// where the operation requires one (dial, per §6 `dial`).
func InvalidAddress(addr string) *NetworkError {
	return NewNetworkError(KindInvalidAddress, fmt.Errorf("address %q does not end in a peer id", addr))
}

// CommandError is returned from invoke_manager / command-surface lookups
// that fail before reaching a manager at all (§4.H).
type CommandError struct {
	Kind CommandErrorKind
	Name string
}

type CommandErrorKind string

const (
	KindCommandNotFound CommandErrorKind = "command_not_found"
)

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %q", e.Kind, e.Name)
}

func CommandNotFound(name string) *CommandError {
	return &CommandError{Kind: KindCommandNotFound, Name: name}
}

// ManagerError is the error taxonomy managers (§4.E, §4.F) return from
// both event handlers and Invoke.
type ManagerError struct {
	Kind    ManagerErrorKind
	GroupID *GroupId
	PeerID  *PeerId
	Action  string
	Err     error
}

type ManagerErrorKind string

const (
	KindGroupNotExist ManagerErrorKind = "group_not_exist"
	KindPeerNotExist  ManagerErrorKind = "peer_not_exist"
	KindInvalidParams ManagerErrorKind = "invalid_params"
	KindInvalidAction ManagerErrorKind = "invalid_action"
)

func (e *ManagerError) Error() string {
	switch e.Kind {
	case KindGroupNotExist:
		return fmt.Sprintf("group does not exist: %s", e.GroupID)
	case KindPeerNotExist:
		return fmt.Sprintf("peer does not exist: %s", e.PeerID)
	case KindInvalidParams:
		return fmt.Sprintf("invalid params: %v", e.Err)
	case KindInvalidAction:
		return fmt.Sprintf("invalid action: %q", e.Action)
	default:
		return "manager error"
	}
}

func (e *ManagerError) Unwrap() error { return e.Err }

func GroupNotExist(g GroupId) *ManagerError {
	return &ManagerError{Kind: KindGroupNotExist, GroupID: &g}
}

func PeerNotExist(p PeerId) *ManagerError {
	return &ManagerError{Kind: KindPeerNotExist, PeerID: &p}
}

func InvalidParams(err error) *ManagerError {
	return &ManagerError{Kind: KindInvalidParams, Err: err}
}

func InvalidAction(action string) *ManagerError {
	return &ManagerError{Kind: KindInvalidAction, Action: action}
}

// SettingError collects configuration validation failures (§7). It is
// returned whole so a caller sees every problem in one pass, not just the
// first.
type SettingError struct {
	Problems []string
}

func (e *SettingError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid setting: %s", e.Problems[0])
	}
	return fmt.Sprintf("invalid settings (%d problems): %v", len(e.Problems), e.Problems)
}

func (e *SettingError) Add(problem string) {
	e.Problems = append(e.Problems, problem)
}

func (e *SettingError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// AsManagerError is a small convenience wrapper around errors.As for
// callers that need to branch on the manager error kind.
func AsManagerError(err error) (*ManagerError, bool) {
	var me *ManagerError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
