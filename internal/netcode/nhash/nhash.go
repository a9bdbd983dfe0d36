// Package nhash implements the stable, order-sensitive fingerprint used by
// the simulation snapshot for drift detection (hash checks). The algorithm
// is fixed and frozen: 32-bit FNV-1a, folding the same little-endian byte
// encoding used by internal/netcode/packet so that a snapshot's hash never
// changes across versions of this code for the same logical state.
package nhash

import "math"

const (
	offsetBasis uint32 = 2166136261
	prime       uint32 = 16777619
)

// Hasher accumulates a 32-bit FNV-1a fingerprint. Use New: the zero value
// starts from 0 rather than the FNV-1a offset basis.
type Hasher struct {
	h uint32
}

// New returns a Hasher primed with the FNV-1a offset basis.
func New() *Hasher {
	return &Hasher{h: offsetBasis}
}

func (h *Hasher) writeByte(b byte) {
	h.h ^= uint32(b)
	h.h *= prime
}

// WriteBytes folds raw bytes in order. Every Write* method folds through
// the same per-byte step, so that the byte-level encoding always matches
// internal/netcode/packet's little-endian primitives.
func (h *Hasher) WriteBytes(b []byte) {
	for _, c := range b {
		h.writeByte(c)
	}
}

func (h *Hasher) WriteU8(v uint8) { h.writeByte(v) }

func (h *Hasher) WriteBool(v bool) {
	if v {
		h.writeByte(1)
	} else {
		h.writeByte(0)
	}
}

func (h *Hasher) WriteI16(v int16) { h.WriteU16(uint16(v)) }

func (h *Hasher) WriteU16(v uint16) {
	h.writeByte(byte(v))
	h.writeByte(byte(v >> 8))
}

func (h *Hasher) WriteI32(v int32) { h.WriteU32(uint32(v)) }

func (h *Hasher) WriteU32(v uint32) {
	h.writeByte(byte(v))
	h.writeByte(byte(v >> 8))
	h.writeByte(byte(v >> 16))
	h.writeByte(byte(v >> 24))
}

func (h *Hasher) WriteI64(v int64) { h.WriteU64(uint64(v)) }

func (h *Hasher) WriteU64(v uint64) {
	h.WriteU32(uint32(v))
	h.WriteU32(uint32(v >> 32))
}

func (h *Hasher) WriteF32(v float32) { h.WriteU32(math.Float32bits(v)) }

func (h *Hasher) WriteF64(v float64) { h.WriteU64(math.Float64bits(v)) }

func (h *Hasher) WriteString(s string) {
	h.WriteI32(int32(len(s)))
	for i := 0; i < len(s); i++ {
		h.writeByte(s[i])
	}
}

// Sum returns the accumulated fingerprint.
func (h *Hasher) Sum() uint32 { return h.h }

// Of is a convenience helper for hashing a single byte slice in isolation.
func Of(b []byte) uint32 {
	h := New()
	h.WriteBytes(b)
	return h.Sum()
}
