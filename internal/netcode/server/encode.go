package server

import (
	"spacelock/internal/netcode/packet"
	"spacelock/internal/netcode/sim"
)

func serializeEntity(e sim.Entity) []byte {
	w := packet.NewWriter()
	e.Serialize(w)
	return w.Bytes()
}

func serializeSnapshot(s *sim.Snapshot) []byte {
	w := packet.NewWriter()
	s.Serialize(w)
	return w.Bytes()
}
