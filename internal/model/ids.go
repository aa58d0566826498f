// Package model holds the shared record types that cross component
// boundaries: identifiers, descriptors, messages, and the error taxonomy.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerId is the opaque cryptographic identity of a node. It wraps the
// libp2p peer.ID; Raw returns the wrapped value for code that calls libp2p
// directly.
type PeerId struct {
	id peer.ID
}

// NewPeerId wraps a raw libp2p peer.ID.
func NewPeerId(id peer.ID) PeerId { return PeerId{id: id} }

// ParsePeerId decodes the base58/CID textual form used on the wire.
func ParsePeerId(s string) (PeerId, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("parse peer id %q: %w", s, err)
	}
	return PeerId{id: id}, nil
}

func (p PeerId) Raw() peer.ID   { return p.id }
func (p PeerId) String() string { return p.id.String() }
func (p PeerId) IsZero() bool   { return p.id == "" }

// Less gives PeerId a total order so it can be used as a map key in sorted
// output and in tests that assert on deterministic ordering.
func (p PeerId) Less(other PeerId) bool { return p.id < other.id }

func (p PeerId) MarshalText() ([]byte, error) { return []byte(p.id.String()), nil }

func (p *PeerId) UnmarshalText(b []byte) error {
	id, err := peer.Decode(string(b))
	if err != nil {
		return fmt.Errorf("unmarshal peer id: %w", err)
	}
	p.id = id
	return nil
}

// GroupId is an opaque 128-bit identifier freshly minted by a group's
// creator. Its string form deterministically yields a TopicHash.
type GroupId struct {
	id uuid.UUID
}

// NewGroupId mints a fresh GroupId.
func NewGroupId() GroupId { return GroupId{id: uuid.New()} }

// ParseGroupId decodes the textual form of a GroupId.
func ParseGroupId(s string) (GroupId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GroupId{}, fmt.Errorf("parse group id %q: %w", s, err)
	}
	return GroupId{id: id}, nil
}

func (g GroupId) String() string { return g.id.String() }
func (g GroupId) IsZero() bool   { return g.id == uuid.Nil }

func (g GroupId) MarshalText() ([]byte, error) { return []byte(g.id.String()), nil }

func (g *GroupId) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return fmt.Errorf("unmarshal group id: %w", err)
	}
	g.id = id
	return nil
}

// TopicHash is the routing key the pub/sub layer uses for a group. It is
// derived deterministically from a GroupId's string form so that every
// peer independently computes the same topic for the same group.
type TopicHash string

// Topic returns the TopicHash a GroupId routes to.
func (g GroupId) Topic() TopicHash {
	sum := sha256.Sum256([]byte(g.id.String()))
	return TopicHash("grp/" + hex.EncodeToString(sum[:16]))
}

func (t TopicHash) String() string { return string(t) }

// ListenerId is an opaque token identifying one listening socket.
type ListenerId uint64
