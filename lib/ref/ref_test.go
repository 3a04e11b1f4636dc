// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantLocalpart string
		wantServer    string
		wantErr       string
	}{
		{name: "simple", input: "@alice:example.org", wantLocalpart: "alice", wantServer: "example.org"},
		{name: "server with port", input: "@bob:localhost:8448", wantLocalpart: "bob", wantServer: "localhost:8448"},
		{name: "empty", input: "", wantErr: "must start with @"},
		{name: "wrong sigil", input: "!alice:example.org", wantErr: "must start with @"},
		{name: "no server", input: "@alice", wantErr: "missing :server"},
		{name: "empty localpart", input: "@:example.org", wantErr: "empty localpart"},
		{name: "empty server", input: "@alice:", wantErr: "empty server"},
		{name: "sigil in server", input: "@alice:ex#ample.org", wantErr: "invalid character"},
		{name: "control character", input: "@al\x01ice:example.org", wantErr: "control character"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			userID, err := ParseUserID(test.input)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseUserID(%q) succeeded, want error containing %q", test.input, test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("ParseUserID(%q) error = %q, want error containing %q", test.input, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUserID(%q) unexpected error: %v", test.input, err)
			}
			if got := userID.Localpart(); got != test.wantLocalpart {
				t.Errorf("Localpart() = %q, want %q", got, test.wantLocalpart)
			}
			if got := userID.Server().String(); got != test.wantServer {
				t.Errorf("Server() = %q, want %q", got, test.wantServer)
			}
		})
	}
}

func TestServerNameReversed(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.org", "org.example"},
		{"matrix.example.com", "com.example.matrix"},
		{"matrix.example.com:8448", "com.example.matrix:8448"},
		{"localhost", "localhost"},
		{"[::1]:8448", "[::1]:8448"},
	}
	for _, test := range tests {
		if got := MustParseServerName(test.input).Reversed(); got != test.want {
			t.Errorf("Reversed(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestServerFromUserID(t *testing.T) {
	server, err := ServerFromUserID("@carol:chat.example.net")
	if err != nil {
		t.Fatalf("ServerFromUserID: %v", err)
	}
	if server.String() != "chat.example.net" {
		t.Errorf("ServerFromUserID = %q, want %q", server, "chat.example.net")
	}
	if _, err := ServerFromUserID("carol"); err == nil {
		t.Error("ServerFromUserID accepted an identifier without a sigil")
	}
}

func TestJSONInStructField(t *testing.T) {
	type pdu struct {
		RoomID  RoomID     `json:"room_id"`
		Sender  UserID     `json:"sender"`
		EventID EventID    `json:"event_id"`
		Origin  ServerName `json:"origin"`
	}
	original := pdu{
		RoomID:  MustParseRoomID("!r:example.org"),
		Sender:  MustParseUserID("@u:example.org"),
		EventID: MustParseEventID("$e"),
		Origin:  MustParseServerName("example.org"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"room_id":"!r:example.org","sender":"@u:example.org","event_id":"$e","origin":"example.org"}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}
	var decoded pdu
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round-trip: got %+v, want %+v", decoded, original)
	}

	if err := json.Unmarshal([]byte(`{"sender":"not-a-user"}`), &decoded); err == nil {
		t.Error("Unmarshal accepted an invalid sender")
	}
}
