package sim

import "spacelock/internal/netcode/packet"

// NewAddEntityCommand wraps a fully-constructed entity as the special
// add_entity command. playerID is the originating player for
// bookkeeping only (the command log orders on it but it has no gameplay
// meaning for add/remove commands); authoritative should be true
// whenever the caller is the server or is replaying a server broadcast.
func NewAddEntityCommand(playerID int32, frame Frame, authoritative bool, e Entity) Command {
	w := packet.NewWriter()
	w.WriteU8(e.Kind())
	inner := packet.NewWriter()
	e.Serialize(inner)
	w.WritePacket(inner)
	return Command{
		PlayerID:      playerID,
		Frame:         frame,
		Authoritative: authoritative,
		Kind:          KindAddEntity,
		Payload:       w.Bytes(),
	}
}

// NewAddEntityCommandFromBytes builds an add_entity command directly from
// an already-serialized (kind, entity bytes) pair, the shape a client
// receives off the wire in an ADD_ENTITY broadcast, without ever
// decoding the entity itself — the command log and replay only need the
// bytes, not a live Entity value.
func NewAddEntityCommandFromBytes(playerID int32, frame Frame, authoritative bool, kind uint8, serializedEntity []byte) Command {
	w := packet.NewWriter()
	w.WriteU8(kind)
	w.WriteBlob(serializedEntity)
	return Command{
		PlayerID:      playerID,
		Frame:         frame,
		Authoritative: authoritative,
		Kind:          KindAddEntity,
		Payload:       w.Bytes(),
	}
}

// NewRemoveEntityCommand wraps an entity id as the special remove_entity
// command.
func NewRemoveEntityCommand(playerID int32, frame Frame, authoritative bool, id EntityID) Command {
	w := packet.NewWriter()
	w.WriteU64(uint64(id))
	return Command{
		PlayerID:      playerID,
		Frame:         frame,
		Authoritative: authoritative,
		Kind:          KindRemoveEntity,
		Payload:       w.Bytes(),
	}
}
