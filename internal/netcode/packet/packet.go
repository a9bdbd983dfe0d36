// Package packet implements the length-prefixed binary wire format shared by
// every message that crosses the network or touches disk in this module.
// It provides no schema: callers pair every write with a matching read in
// the same order.
package packet

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrTruncated is returned by any read that needs more bytes than remain.
var ErrTruncated = errors.New("packet: truncated")

// nullBlobLen is the length prefix reserved to mean "no blob", distinct
// from a present-but-empty blob (length 0).
const nullBlobLen int32 = -1

// Writer is an append-only byte buffer. The zero value is not usable; use
// NewWriter.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer with a small pre-allocation. Packets
// are short-lived per-message buffers, so there is no pooling.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated buffer. The caller must not mutate it.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteBlob writes a length-prefixed byte blob. A nil slice encodes as
// length -1 (null), distinct from a non-nil empty slice (length 0).
func (w *Writer) WriteBlob(b []byte) {
	if b == nil {
		w.WriteI32(nullBlobLen)
		return
	}
	w.WriteI32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes a UTF-8 string as a length-prefixed blob. Empty
// strings encode as an empty (non-null) blob.
func (w *Writer) WriteString(s string) {
	w.WriteBlob([]byte(s))
}

// WritePacket nests another writer's bytes as a length-prefixed blob.
func (w *Writer) WritePacket(p *Writer) {
	w.WriteBlob(p.Bytes())
}

// Reader is a cursor over a byte buffer. The zero value is not usable;
// use NewReader.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps b for sequential reads. b is not copied.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) hasBytes(n int) bool { return r.Remaining() >= n }

func (r *Reader) take(n int) ([]byte, error) {
	if !r.hasBytes(n) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) peek(n int) ([]byte, error) {
	if !r.hasBytes(n) {
		return nil, ErrTruncated
	}
	return r.buf[r.pos : r.pos+n], nil
}

func (r *Reader) HasU8() bool  { return r.hasBytes(1) }
func (r *Reader) HasU16() bool { return r.hasBytes(2) }
func (r *Reader) HasU32() bool { return r.hasBytes(4) }
func (r *Reader) HasU64() bool { return r.hasBytes(8) }

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) PeekU8() (uint8, error) {
	b, err := r.peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadBlob reads a length-prefixed byte blob. It returns a nil slice for a
// null blob (length -1) and a non-nil empty slice for an empty blob
// (length 0); callers that need to distinguish the two must check for nil.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	if n == nullBlobLen {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.Errorf("packet: negative blob length %d", n)
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadString reads a UTF-8 string written by WriteString. A null blob
// decodes to the empty string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBlob()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPacket reads a nested packet written by WritePacket and returns a
// cursor over its bytes.
func (r *Reader) ReadPacket() (*Reader, error) {
	b, err := r.ReadBlob()
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// HasBlob reports whether a ReadBlob call would succeed without consuming
// any input.
func (r *Reader) HasBlob() bool {
	save := r.pos
	_, err := r.ReadBlob()
	r.pos = save
	return err == nil
}
