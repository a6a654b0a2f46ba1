package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest,
		ErrBadRequest,
		ErrInvalidTerritory,
		ErrInvalidFaction,
		ErrContention,
		ErrInternal,
		"", // accepted acks carry no code
	} {
		if !IsKnownCode(code) {
			t.Errorf("IsKnownCode(%q) = false", code)
		}
	}
	for _, code := range []string{"E_NOPE", "contention", "E_CONTENTION "} {
		if IsKnownCode(code) {
			t.Errorf("IsKnownCode(%q) = true", code)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"influence_action","protocol_version":"1.0","territory_id":3}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeAction || m.ProtocolVersion != Version {
		t.Fatalf("base = %+v", m)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatal("want error for truncated JSON")
	}
}
