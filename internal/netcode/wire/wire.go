// Package wire implements the control-layer protocol: a one-byte tag
// prefixed to every message, and the typed payload shape for each tag.
// It is deliberately thin, an encode/decode pair per tag built on
// packet.Writer/Reader, with no transport or session concerns of its
// own (those live in internal/netcode/session and the controller
// packages).
package wire

import (
	"github.com/pkg/errors"

	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

// Tag identifies a control message's payload shape. Values are stable:
// they are the wire protocol.
type Tag uint8

const (
	TagCommand           Tag = 1
	TagSync              Tag = 2
	TagGameStateRequest  Tag = 3
	TagGameStateResponse Tag = 4
	TagHashCheck         Tag = 5
	TagAddEntity         Tag = 6
	TagRemoveEntity      Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagCommand:
		return "COMMAND"
	case TagSync:
		return "SYNC"
	case TagGameStateRequest:
		return "GAME_STATE_REQUEST"
	case TagGameStateResponse:
		return "GAME_STATE_RESPONSE"
	case TagHashCheck:
		return "HASH_CHECK"
	case TagAddEntity:
		return "ADD_ENTITY"
	case TagRemoveEntity:
		return "REMOVE_ENTITY"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownTag is returned by PeekTag when the leading byte does not
// match any known Tag.
var ErrUnknownTag = errors.New("wire: unknown tag")

// EncodeCommand writes a command as
// {player_id, frame, kind, payload_len, payload}. Authoritativeness is
// never written — any command a client receives from the server is
// authoritative by definition, and the server never sends its own
// non-authoritative commands back out.
func EncodeCommand(cmd sim.Command) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagCommand))
	w.WriteI32(cmd.PlayerID)
	w.WriteI64(int64(cmd.Frame))
	w.WriteI32(cmd.Kind)
	w.WriteBlob(cmd.Payload)
	return w.Bytes()
}

// DecodeCommand parses a COMMAND message body (tag already consumed).
// The returned command is always marked authoritative: only the server
// originates commands on the wire toward a client.
func DecodeCommand(r *packet.Reader) (sim.Command, error) {
	playerID, err := r.ReadI32()
	if err != nil {
		return sim.Command{}, errors.Wrap(err, "wire: decode command player_id")
	}
	frame, err := r.ReadI64()
	if err != nil {
		return sim.Command{}, errors.Wrap(err, "wire: decode command frame")
	}
	kind, err := r.ReadI32()
	if err != nil {
		return sim.Command{}, errors.Wrap(err, "wire: decode command kind")
	}
	payload, err := r.ReadBlob()
	if err != nil {
		return sim.Command{}, errors.Wrap(err, "wire: decode command payload")
	}
	return sim.Command{
		PlayerID:      playerID,
		Frame:         sim.Frame(frame),
		Kind:          kind,
		Payload:       payload,
		Authoritative: true,
	}, nil
}

// Sync is the SYNC payload, sent client->server as a frame probe and
// echoed back server->client with the server's own current frame.
type Sync struct {
	EchoedFrame sim.Frame
	ServerFrame sim.Frame
}

// EncodeSyncRequest writes a client->server SYNC probe. ServerFrame is
// unused by the sender and always encoded as zero; the server fills it
// in when it replies.
func EncodeSyncRequest(localFrame sim.Frame) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagSync))
	w.WriteI64(int64(localFrame))
	w.WriteI64(0)
	return w.Bytes()
}

// EncodeSyncReply writes the server's SYNC echo.
func EncodeSyncReply(s Sync) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagSync))
	w.WriteI64(int64(s.EchoedFrame))
	w.WriteI64(int64(s.ServerFrame))
	return w.Bytes()
}

// DecodeSync parses a SYNC message body (tag already consumed).
func DecodeSync(r *packet.Reader) (Sync, error) {
	echoed, err := r.ReadI64()
	if err != nil {
		return Sync{}, errors.Wrap(err, "wire: decode sync echoed_frame")
	}
	server, err := r.ReadI64()
	if err != nil {
		return Sync{}, errors.Wrap(err, "wire: decode sync server_frame")
	}
	return Sync{EchoedFrame: sim.Frame(echoed), ServerFrame: sim.Frame(server)}, nil
}

// EncodeGameStateRequest writes a bare GAME_STATE_REQUEST; it carries no
// payload.
func EncodeGameStateRequest() []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagGameStateRequest))
	return w.Bytes()
}

// EncodeGameStateResponse writes a GAME_STATE_RESPONSE carrying the
// already-serialized leading snapshot bytes (see sim.Snapshot.Serialize).
func EncodeGameStateResponse(serializedSnapshot []byte) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagGameStateResponse))
	w.WriteBlob(serializedSnapshot)
	return w.Bytes()
}

// DecodeGameStateResponse returns the embedded serialized snapshot bytes,
// ready to be handed to sim.Deserialize via a fresh packet.Reader.
func DecodeGameStateResponse(r *packet.Reader) ([]byte, error) {
	blob, err := r.ReadBlob()
	if err != nil {
		return nil, errors.Wrap(err, "wire: decode game_state_response")
	}
	return blob, nil
}

// HashCheck is the HASH_CHECK payload, broadcast periodically by the
// server so clients can detect drift against their own trailing snapshot.
type HashCheck struct {
	TrailingFrame sim.Frame
	Hash          uint32
}

// EncodeHashCheck writes a HASH_CHECK message.
func EncodeHashCheck(hc HashCheck) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagHashCheck))
	w.WriteI64(int64(hc.TrailingFrame))
	w.WriteU32(hc.Hash)
	return w.Bytes()
}

// DecodeHashCheck parses a HASH_CHECK message body (tag already consumed).
func DecodeHashCheck(r *packet.Reader) (HashCheck, error) {
	frame, err := r.ReadI64()
	if err != nil {
		return HashCheck{}, errors.Wrap(err, "wire: decode hash_check trailing_frame")
	}
	hash, err := r.ReadU32()
	if err != nil {
		return HashCheck{}, errors.Wrap(err, "wire: decode hash_check hash")
	}
	return HashCheck{TrailingFrame: sim.Frame(frame), Hash: hash}, nil
}

// EncodeAddEntity writes an ADD_ENTITY broadcast: frame plus the
// entity's (kind, serialized-bytes) pair, identical to the shape a
// Snapshot writes for one entity in Serialize, so the receiver can feed
// it straight to the matching EntityFactory.
func EncodeAddEntity(frame sim.Frame, kind uint8, serializedEntity []byte) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagAddEntity))
	w.WriteI64(int64(frame))
	w.WriteU8(kind)
	w.WriteBlob(serializedEntity)
	return w.Bytes()
}

// AddEntity is the decoded form of an ADD_ENTITY message.
type AddEntity struct {
	Frame            sim.Frame
	Kind             uint8
	SerializedEntity []byte
}

// DecodeAddEntity parses an ADD_ENTITY message body (tag already
// consumed).
func DecodeAddEntity(r *packet.Reader) (AddEntity, error) {
	frame, err := r.ReadI64()
	if err != nil {
		return AddEntity{}, errors.Wrap(err, "wire: decode add_entity frame")
	}
	kind, err := r.ReadU8()
	if err != nil {
		return AddEntity{}, errors.Wrap(err, "wire: decode add_entity kind")
	}
	blob, err := r.ReadBlob()
	if err != nil {
		return AddEntity{}, errors.Wrap(err, "wire: decode add_entity payload")
	}
	return AddEntity{Frame: sim.Frame(frame), Kind: kind, SerializedEntity: blob}, nil
}

// EncodeRemoveEntity writes a REMOVE_ENTITY broadcast.
func EncodeRemoveEntity(frame sim.Frame, id sim.EntityID) []byte {
	w := packet.NewWriter()
	w.WriteU8(uint8(TagRemoveEntity))
	w.WriteI64(int64(frame))
	w.WriteI64(int64(id))
	return w.Bytes()
}

// RemoveEntity is the decoded form of a REMOVE_ENTITY message.
type RemoveEntity struct {
	Frame sim.Frame
	ID    sim.EntityID
}

// DecodeRemoveEntity parses a REMOVE_ENTITY message body (tag already
// consumed).
func DecodeRemoveEntity(r *packet.Reader) (RemoveEntity, error) {
	frame, err := r.ReadI64()
	if err != nil {
		return RemoveEntity{}, errors.Wrap(err, "wire: decode remove_entity frame")
	}
	rawID, err := r.ReadI64()
	if err != nil {
		return RemoveEntity{}, errors.Wrap(err, "wire: decode remove_entity entity_id")
	}
	return RemoveEntity{Frame: sim.Frame(frame), ID: sim.EntityID(rawID)}, nil
}

// PeekTag reads only the leading tag byte without consuming anything
// beyond it from a fresh reader positioned at the start of a message,
// letting a dispatcher route to the right Decode* function.
func PeekTag(raw []byte) (Tag, *packet.Reader, error) {
	r := packet.NewReader(raw)
	b, err := r.ReadU8()
	if err != nil {
		return 0, nil, errors.Wrap(err, "wire: decode tag")
	}
	t := Tag(b)
	switch t {
	case TagCommand, TagSync, TagGameStateRequest, TagGameStateResponse, TagHashCheck, TagAddEntity, TagRemoveEntity:
		return t, r, nil
	default:
		return 0, nil, errors.Wrapf(ErrUnknownTag, "tag %d", b)
	}
}
