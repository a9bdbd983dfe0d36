package wire

import (
	"bytes"
	"testing"

	"spacelock/internal/netcode/sim"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := sim.Command{PlayerID: 1, Frame: 100, Kind: 4, Payload: []byte{0x01, 0x02}}
	raw := EncodeCommand(cmd)

	tag, r, err := PeekTag(raw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	if tag != TagCommand {
		t.Fatalf("expected TagCommand, got %v", tag)
	}
	decoded, err := DecodeCommand(r)
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if !decoded.Authoritative {
		t.Fatal("expected decoded command to always be authoritative")
	}
	if decoded.PlayerID != cmd.PlayerID || decoded.Frame != cmd.Frame || decoded.Kind != cmd.Kind {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, cmd)
	}
	if !bytes.Equal(decoded.Payload, cmd.Payload) {
		t.Fatalf("payload mismatch: %v != %v", decoded.Payload, cmd.Payload)
	}
}

func TestSyncRoundTrip(t *testing.T) {
	raw := EncodeSyncRequest(42)
	_, r, err := PeekTag(raw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	s, err := DecodeSync(r)
	if err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if s.EchoedFrame != 42 || s.ServerFrame != 0 {
		t.Fatalf("unexpected sync request decode: %+v", s)
	}

	reply := EncodeSyncReply(Sync{EchoedFrame: 42, ServerFrame: 99})
	_, r2, err := PeekTag(reply)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	s2, err := DecodeSync(r2)
	if err != nil {
		t.Fatalf("decode sync reply: %v", err)
	}
	if s2.EchoedFrame != 42 || s2.ServerFrame != 99 {
		t.Fatalf("unexpected sync reply decode: %+v", s2)
	}
}

func TestGameStateRequestHasNoPayload(t *testing.T) {
	raw := EncodeGameStateRequest()
	if len(raw) != 1 {
		t.Fatalf("expected a bare 1-byte tag, got %d bytes", len(raw))
	}
	tag, _, err := PeekTag(raw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	if tag != TagGameStateRequest {
		t.Fatalf("expected TagGameStateRequest, got %v", tag)
	}
}

func TestGameStateResponseRoundTrip(t *testing.T) {
	snapshotBytes := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	raw := EncodeGameStateResponse(snapshotBytes)
	_, r, err := PeekTag(raw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	decoded, err := DecodeGameStateResponse(r)
	if err != nil {
		t.Fatalf("decode game_state_response: %v", err)
	}
	if !bytes.Equal(decoded, snapshotBytes) {
		t.Fatalf("snapshot bytes mismatch: %v != %v", decoded, snapshotBytes)
	}
}

func TestHashCheckRoundTrip(t *testing.T) {
	raw := EncodeHashCheck(HashCheck{TrailingFrame: 500, Hash: 0xDEADBEEF})
	_, r, err := PeekTag(raw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	hc, err := DecodeHashCheck(r)
	if err != nil {
		t.Fatalf("decode hash_check: %v", err)
	}
	if hc.TrailingFrame != 500 || hc.Hash != 0xDEADBEEF {
		t.Fatalf("unexpected hash_check decode: %+v", hc)
	}
}

func TestAddRemoveEntityRoundTrip(t *testing.T) {
	addRaw := EncodeAddEntity(200, 7, []byte{0x01, 0x02, 0x03})
	_, r, err := PeekTag(addRaw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	add, err := DecodeAddEntity(r)
	if err != nil {
		t.Fatalf("decode add_entity: %v", err)
	}
	if add.Frame != 200 || add.Kind != 7 || !bytes.Equal(add.SerializedEntity, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected add_entity decode: %+v", add)
	}

	rmRaw := EncodeRemoveEntity(201, 9)
	_, r2, err := PeekTag(rmRaw)
	if err != nil {
		t.Fatalf("peek tag: %v", err)
	}
	rm, err := DecodeRemoveEntity(r2)
	if err != nil {
		t.Fatalf("decode remove_entity: %v", err)
	}
	if rm.Frame != 201 || rm.ID != 9 {
		t.Fatalf("unexpected remove_entity decode: %+v", rm)
	}
}

func TestPeekTagRejectsUnknown(t *testing.T) {
	if _, _, err := PeekTag([]byte{0xFF}); err == nil {
		t.Fatal("expected an error for an unknown tag")
	}
}
