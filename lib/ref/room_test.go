// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"strings"
	"testing"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		raw        string
		wantServer string
		wantErr    string
	}{
		{raw: "!abc123:example.org", wantServer: "example.org"},
		{raw: "!opaque:matrix.example.org:8448", wantServer: "matrix.example.org:8448"},
		{raw: "!a:b", wantServer: "b"},
		{raw: "", wantErr: "empty room ID"},
		{raw: "abc123:example.org", wantErr: "must start with '!'"},
		{raw: "#alias:example.org", wantErr: "must start with '!'"},
		{raw: "!abc123", wantErr: "missing ':server'"},
		{raw: "!:example.org", wantErr: "empty local part"},
		{raw: "!abc:", wantErr: "empty server name"},
		{raw: "!abc\x00def:example.org", wantErr: "control character"},
		{raw: "!" + strings.Repeat("r", maxIdentifierLength) + ":example.org", wantErr: "maximum is 255"},
	}
	for _, test := range tests {
		room, err := ParseRoomID(test.raw)
		if test.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("ParseRoomID(%q) error = %v, want it to contain %q", test.raw, err, test.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRoomID(%q): %v", test.raw, err)
			continue
		}
		if room.String() != test.raw {
			t.Errorf("ParseRoomID(%q).String() = %q", test.raw, room)
		}
		if got := room.Server().String(); got != test.wantServer {
			t.Errorf("ParseRoomID(%q).Server() = %q, want %q", test.raw, got, test.wantServer)
		}
	}
}

func TestRoomIDText(t *testing.T) {
	var zero RoomID
	if !zero.IsZero() || zero.String() != "" {
		t.Errorf("zero RoomID = %q, IsZero %v", zero, zero.IsZero())
	}
	if data, err := zero.MarshalText(); err != nil || len(data) != 0 {
		t.Errorf("zero MarshalText() = %q, %v", data, err)
	}

	room := MustParseRoomID("!r:example.org")
	data, err := room.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var decoded RoomID
	if err := decoded.UnmarshalText(data); err != nil || decoded != room {
		t.Errorf("UnmarshalText(%q) = %q, %v", data, decoded, err)
	}
	if err := decoded.UnmarshalText([]byte("not-a-room")); err == nil {
		t.Error("UnmarshalText accepted a room ID without '!'")
	}
}
