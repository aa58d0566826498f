// Package wire implements the length-prefixed request/response codec used
// on the file-exchange-protocol substream (§4.A). Every frame is a 4-byte
// big-endian length prefix followed by a short ASCII tag, a single space,
// and a type-dependent body.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nyxlink/p2pchat/internal/model"
)

const (
	// MaxRequestBody bounds the body of a Request frame.
	MaxRequestBody = 1_000_000
	// MaxResponseBody bounds the body of a Response frame.
	MaxResponseBody = 500_000_000

	tagFile  = "/file"
	tagGroup = "/group"
	tagUser  = "/user"
	tagError = "/error"
)

// ErrEmptyFrame is returned when a frame's length prefix is zero — an
// unexpected-EOF condition per §4.A.
var ErrEmptyFrame = fmt.Errorf("wire: empty frame (unexpected eof)")

// ErrInvalidTag is returned when a frame's tag does not match any known
// request/response variant.
type ErrInvalidTag struct{ Tag string }

func (e *ErrInvalidTag) Error() string { return fmt.Sprintf("wire: invalid tag %q", e.Tag) }

// Request is the tagged union sent to pull metadata or bytes from a peer.
type Request struct {
	File  *model.FileInfo
	Group *model.TopicHash
	User  *model.PeerId
}

// FileRequest builds a Request for a file by its FileInfo.
func FileRequest(f model.FileInfo) Request { return Request{File: &f} }

// GroupRequest builds a Request for a group descriptor by topic.
func GroupRequest(t model.TopicHash) Request { return Request{Group: &t} }

// UserRequest builds a Request for a user profile by peer ID.
func UserRequest(p model.PeerId) Request { return Request{User: &p} }

// groupResponseBody is the wire tuple (GroupId, GroupDescriptor),
// marshaled as a 2-element JSON array to match the Rust source's tuple
// serialization.
type groupResponseBody struct {
	ID         model.GroupId
	Descriptor model.GroupDescriptor
}

func (b groupResponseBody) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{b.ID, b.Descriptor})
}

func (b *groupResponseBody) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &b.ID); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &b.Descriptor)
}

// Response is the tagged union answering a Request, or a generic error.
type Response struct {
	File  []byte
	Group *GroupResponse
	User  *model.UserProfile
	Error string // non-empty iff this is a /error response
}

// GroupResponse is the (GroupId, GroupDescriptor) pair a Group request
// resolves to.
type GroupResponse struct {
	ID         model.GroupId
	Descriptor model.GroupDescriptor
}

func FileResponse(b []byte) Response { return Response{File: b} }

func GroupResponseOf(id model.GroupId, d model.GroupDescriptor) Response {
	return Response{Group: &GroupResponse{ID: id, Descriptor: d}}
}

func UserResponse(p model.UserProfile) Response { return Response{User: &p} }

func ErrorResponse(msg string) Response { return Response{Error: msg} }

// WriteRequest frames and writes r to w, then closes w — writers must
// close the underlying substream after the frame (§4.A).
func WriteRequest(w io.WriteCloser, r Request) error {
	payload, err := encodeRequest(r)
	if err != nil {
		_ = w.Close()
		return err
	}
	err = writeFrame(w, payload)
	_ = w.Close()
	return err
}

func encodeRequest(r Request) ([]byte, error) {
	switch {
	case r.File != nil:
		body, err := json.Marshal(r.File)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal file request: %w", err)
		}
		return tagged(tagFile, body), nil
	case r.Group != nil:
		return tagged(tagGroup, []byte(*r.Group)), nil
	case r.User != nil:
		body, err := json.Marshal(r.User)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal user request: %w", err)
		}
		return tagged(tagUser, body), nil
	default:
		return nil, fmt.Errorf("wire: empty request variant")
	}
}

// ReadRequest reads and decodes one framed Request from r.
func ReadRequest(r io.Reader) (Request, error) {
	tag, body, err := readTagged(r, MaxRequestBody)
	if err != nil {
		return Request{}, err
	}
	switch tag {
	case tagFile:
		var f model.FileInfo
		if err := json.Unmarshal(body, &f); err != nil {
			return Request{}, fmt.Errorf("wire: unmarshal file request: %w", err)
		}
		return FileRequest(f), nil
	case tagGroup:
		return GroupRequest(model.TopicHash(body)), nil
	case tagUser:
		var p model.PeerId
		if err := json.Unmarshal(body, &p); err != nil {
			return Request{}, fmt.Errorf("wire: unmarshal user request: %w", err)
		}
		return UserRequest(p), nil
	default:
		return Request{}, &ErrInvalidTag{Tag: tag}
	}
}

// WriteResponse frames and writes resp to w, then closes w.
func WriteResponse(w io.WriteCloser, resp Response) error {
	payload, err := encodeResponse(resp)
	if err != nil {
		_ = w.Close()
		return err
	}
	err = writeFrame(w, payload)
	_ = w.Close()
	return err
}

func encodeResponse(resp Response) ([]byte, error) {
	switch {
	case resp.Error != "":
		return tagged(tagError, []byte(resp.Error)), nil
	case resp.File != nil:
		return tagged(tagFile, resp.File), nil
	case resp.Group != nil:
		body, err := json.Marshal(groupResponseBody{ID: resp.Group.ID, Descriptor: resp.Group.Descriptor})
		if err != nil {
			return nil, fmt.Errorf("wire: marshal group response: %w", err)
		}
		return tagged(tagGroup, body), nil
	case resp.User != nil:
		body, err := json.Marshal(resp.User)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal user response: %w", err)
		}
		return tagged(tagUser, body), nil
	default:
		return nil, fmt.Errorf("wire: empty response variant")
	}
}

// ReadResponse reads and decodes one framed Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	tag, body, err := readTagged(r, MaxResponseBody)
	if err != nil {
		return Response{}, err
	}
	switch tag {
	case tagError:
		return ErrorResponse(string(body)), nil
	case tagFile:
		return FileResponse(body), nil
	case tagGroup:
		var b groupResponseBody
		if err := json.Unmarshal(body, &b); err != nil {
			return Response{}, fmt.Errorf("wire: unmarshal group response: %w", err)
		}
		return GroupResponseOf(b.ID, b.Descriptor), nil
	case tagUser:
		var p model.UserProfile
		if err := json.Unmarshal(body, &p); err != nil {
			return Response{}, fmt.Errorf("wire: unmarshal user response: %w", err)
		}
		return UserResponse(p), nil
	default:
		return Response{}, &ErrInvalidTag{Tag: tag}
	}
}

func tagged(tag string, body []byte) []byte {
	out := make([]byte, 0, len(tag)+1+len(body))
	out = append(out, tag...)
	out = append(out, ' ')
	out = append(out, body...)
	return out
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// readTagged reads one length-prefixed frame and splits it into its tag
// and body, enforcing maxBody on the decoded payload.
func readTagged(r io.Reader, maxBody int) (tag string, body []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", nil, ErrEmptyFrame
		}
		return "", nil, fmt.Errorf("wire: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return "", nil, ErrEmptyFrame
	}
	if int64(n) > int64(maxBody)+16 { // +16 for tag+space slack before body bound applies
		return "", nil, fmt.Errorf("wire: frame of %d bytes exceeds bound", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	sp := indexByte(payload, ' ')
	if sp < 0 {
		return "", nil, &ErrInvalidTag{Tag: string(payload)}
	}
	tag = string(payload[:sp])
	body = payload[sp+1:]
	if len(body) > maxBody {
		return "", nil, fmt.Errorf("wire: body of %d bytes exceeds bound %d", len(body), maxBody)
	}
	return tag, body, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
