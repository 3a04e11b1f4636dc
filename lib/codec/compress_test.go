// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
)

func TestPackUnpack(t *testing.T) {
	compressible := []byte(strings.Repeat(`{"type":"m.room.message","content":{"body":"hello"}}`, 40))
	random := make([]byte, 512)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		tag     CompressionTag
		wantTag CompressionTag
	}{
		{name: "none", data: compressible, tag: CompressionNone, wantTag: CompressionNone},
		{name: "lz4", data: compressible, tag: CompressionLZ4, wantTag: CompressionLZ4},
		{name: "zstd", data: compressible, tag: CompressionZstd, wantTag: CompressionZstd},
		{name: "zstd incompressible falls back", data: random, tag: CompressionZstd, wantTag: CompressionNone},
		{name: "lz4 incompressible falls back", data: random, tag: CompressionLZ4, wantTag: CompressionNone},
		{name: "empty", data: []byte{}, tag: CompressionZstd, wantTag: CompressionNone},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			frame, err := Pack(test.data, test.tag)
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}
			if got := CompressionTag(frame[0]); got != test.wantTag {
				t.Errorf("frame tag = %s, want %s", got, test.wantTag)
			}
			if test.wantTag != CompressionNone && len(frame) >= len(test.data) {
				t.Errorf("frame is %d bytes, not smaller than %d input bytes", len(frame), len(test.data))
			}
			unpacked, err := Unpack(frame)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if !bytes.Equal(unpacked, test.data) {
				t.Errorf("Unpack returned %d bytes, want the original %d bytes", len(unpacked), len(test.data))
			}
		})
	}
}

func TestUnpackRejectsCorruptFrames(t *testing.T) {
	valid, err := Pack([]byte(strings.Repeat("abc", 100)), CompressionZstd)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "empty", frame: nil},
		{name: "tag only", frame: []byte{byte(CompressionZstd)}},
		{name: "unknown tag", frame: []byte{9, 1, 'x'}},
		{name: "size mismatch", frame: []byte{byte(CompressionNone), 5, 'x'}},
		{name: "oversized length", frame: []byte{byte(CompressionNone), 0xff, 0xff, 0xff, 0xff, 0x0f}},
		{name: "truncated payload", frame: valid[:len(valid)-4]},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Unpack(test.frame); err == nil {
				t.Errorf("Unpack(%x) succeeded, want error", test.frame)
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Fatalf("ParseCompressionTag(%q): %v", tag, err)
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %s", tag, parsed)
		}
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("ParseCompressionTag accepted an unknown name")
	}
}
