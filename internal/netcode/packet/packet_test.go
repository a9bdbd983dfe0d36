package packet

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU8(0xAB)
	w.WriteBool(true)
	w.WriteI16(-1234)
	w.WriteU16(54321)
	w.WriteI32(-123456789)
	w.WriteU32(3000000000)
	w.WriteI64(-1)
	w.WriteU64(18446744073709551615)
	w.WriteF32(3.5)
	w.WriteF64(2.71828)

	r := NewReader(w.Bytes())

	if v, err := r.ReadU8(); err != nil || v != 0xAB {
		t.Fatalf("u8: got %v,%v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("bool: got %v,%v", v, err)
	}
	if v, err := r.ReadI16(); err != nil || v != -1234 {
		t.Fatalf("i16: got %v,%v", v, err)
	}
	if v, err := r.ReadU16(); err != nil || v != 54321 {
		t.Fatalf("u16: got %v,%v", v, err)
	}
	if v, err := r.ReadI32(); err != nil || v != -123456789 {
		t.Fatalf("i32: got %v,%v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 3000000000 {
		t.Fatalf("u32: got %v,%v", v, err)
	}
	if v, err := r.ReadI64(); err != nil || v != -1 {
		t.Fatalf("i64: got %v,%v", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 18446744073709551615 {
		t.Fatalf("u64: got %v,%v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 3.5 {
		t.Fatalf("f32: got %v,%v", v, err)
	}
	if v, err := r.ReadF64(); err != nil || v != 2.71828 {
		t.Fatalf("f64: got %v,%v", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
	}
}

func TestNullBlobDistinctFromEmpty(t *testing.T) {
	w := NewWriter()
	w.WriteBlob(nil)
	w.WriteBlob([]byte{})
	w.WriteBlob([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	b1, err := r.ReadBlob()
	if err != nil || b1 != nil {
		t.Fatalf("expected nil blob, got %v, %v", b1, err)
	}
	b2, err := r.ReadBlob()
	if err != nil || b2 == nil || len(b2) != 0 {
		t.Fatalf("expected non-nil empty blob, got %v, %v", b2, err)
	}
	b3, err := r.ReadBlob()
	if err != nil || len(b3) != 3 {
		t.Fatalf("expected 3-byte blob, got %v, %v", b3, err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteString("")
	w.WriteString("hello, world")

	r := NewReader(w.Bytes())
	s1, err := r.ReadString()
	if err != nil || s1 != "" {
		t.Fatalf("expected empty string, got %q, %v", s1, err)
	}
	s2, err := r.ReadString()
	if err != nil || s2 != "hello, world" {
		t.Fatalf("expected hello world, got %q, %v", s2, err)
	}
}

func TestNestedPacket(t *testing.T) {
	inner := NewWriter()
	inner.WriteI32(42)
	inner.WriteString("nested")

	outer := NewWriter()
	outer.WriteU8(9)
	outer.WritePacket(inner)

	r := NewReader(outer.Bytes())
	if v, _ := r.ReadU8(); v != 9 {
		t.Fatalf("expected leading tag 9, got %d", v)
	}
	nr, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if v, _ := nr.ReadI32(); v != 42 {
		t.Fatalf("nested i32: got %d", v)
	}
	if s, _ := nr.ReadString(); s != "nested" {
		t.Fatalf("nested string: got %q", s)
	}
}

func TestTruncatedRead(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1)
	r := NewReader(w.Bytes()[:2])
	if _, err := r.ReadU32(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestHasU8(t *testing.T) {
	r := NewReader([]byte{1})
	if !r.HasU8() {
		t.Fatal("expected HasU8 true")
	}
	r.ReadU8()
	if r.HasU8() {
		t.Fatal("expected HasU8 false once drained")
	}
}

func TestGoldenCommandPacket(t *testing.T) {
	g := goldie.New(t)

	w := NewWriter()
	w.WriteI32(7)     // player id
	w.WriteI64(12345) // frame
	w.WriteI32(1)     // kind
	w.WriteBlob([]byte{0x01, 0x02, 0x03, 0x04})

	g.Assert(t, "command-packet", w.Bytes())
}
