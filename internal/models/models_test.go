package models

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeIDRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, IDLength)
	id := EncodeID(raw)

	got, err := DecodeID(id)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("round trip changed bytes: got %x, want %x", got, raw)
	}
}

func TestDecodeIDRejectsWrongLength(t *testing.T) {
	short := EncodeID([]byte("too short"))
	if _, err := DecodeID(short); err == nil {
		t.Error("expected error for short id")
	}
}

func TestIsValidID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{EncodeID(bytes.Repeat([]byte{1}, IDLength)), true},
		{"", false},
		{"not base64url!!", false},
		{EncodeID(bytes.Repeat([]byte{1}, IDLength-1)), false},
	}
	for _, c := range cases {
		if got := IsValidID(c.id); got != c.want {
			t.Errorf("IsValidID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
