package model

import "time"

// GroupDescriptor is the immutable, opaque metadata a group's creator
// mints and that every other peer learns by request/response. Once
// observed locally it never changes for the life of the process.
type GroupDescriptor struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// GroupMessage is one entry in a group's append-only history.
type GroupMessage struct {
	Source    PeerId          `json:"source"`
	Timestamp int64           `json:"timestamp"` // seconds since epoch
	Payload   MessagePayload  `json:"payload"`
}

// MessagePayload is the tagged union carried by a GroupMessage: either a
// plain text body or a reference to a file available from the source peer.
type MessagePayload struct {
	Text *string   `json:"text,omitempty"`
	File *FileInfo `json:"file,omitempty"`
}

// TextMessage builds a text-carrying payload.
func TextMessage(s string) MessagePayload { return MessagePayload{Text: &s} }

// FileMessage builds a file-carrying payload.
func FileMessage(f FileInfo) MessagePayload { return MessagePayload{File: &f} }

// FileInfo describes a file offered by a peer. Name-only equality (I4) is
// provided by FileKey: two FileInfo values with the same Name collide in
// any set or map keyed by FileKey(), and the later one wins. Go's == on
// FileInfo itself compares every field, including the pointer fields.
type FileInfo struct {
	Name        string  `json:"name"`
	Size        uint64  `json:"size"`
	MediaType   *string `json:"media_type,omitempty"`
	ContentHash *string `json:"content_hash,omitempty"`
}

// FileKey returns the map/set key for a FileInfo per the name-only
// equality rule (I4).
func (f FileInfo) FileKey() string { return f.Name }

// UserStatus is a user's last-known presence.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

// UserProfile is the local mirror of what's known about a peer's identity.
type UserProfile struct {
	Name   string     `json:"name"`
	Avatar *string    `json:"avatar,omitempty"`
	Status UserStatus `json:"status"`
}

// LocalProfile is the local node's own identity; it projects to a
// UserProfile on request (InboundRequest(User(local))), per §4.F.
type LocalProfile struct {
	Name   string
	Avatar *string
}

// ToProfile synthesizes the UserProfile the local node answers with when
// asked about itself. The local peer is always reported Online.
func (l LocalProfile) ToProfile() UserProfile {
	return UserProfile{Name: l.Name, Avatar: l.Avatar, Status: StatusOnline}
}

// GroupState is the local mirror of one group's append-only history and
// current subscriber set.
type GroupState struct {
	History     []GroupMessage
	Subscribers map[PeerId]struct{}
}

// NewGroupState returns an empty GroupState ready to accumulate history
// and subscribers.
func NewGroupState() *GroupState {
	return &GroupState{Subscribers: make(map[PeerId]struct{})}
}

// Clone returns a value copy safe to hand to a caller outside the lock
// that protects the live GroupState.
func (s *GroupState) Clone() GroupState {
	history := make([]GroupMessage, len(s.History))
	copy(history, s.History)
	subs := make(map[PeerId]struct{}, len(s.Subscribers))
	for p := range s.Subscribers {
		subs[p] = struct{}{}
	}
	return GroupState{History: history, Subscribers: subs}
}

// NowSeconds returns the current wall-clock time as seconds since epoch,
// the unit GroupMessage.Timestamp is stamped with.
func NowSeconds() int64 { return time.Now().Unix() }
