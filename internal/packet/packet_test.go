package packet

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeFrameStructure(t *testing.T) {
	secret := "AB12"

	frame, err := Encode(secret)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	wantLen := 2 + len(secret) + 1 + 6 + 4 + 1
	if len(frame) != wantLen {
		t.Fatalf("frame length = %d, want %d", len(frame), wantLen)
	}

	if frame[0] != 0xD0 {
		t.Errorf("frame[0] = 0x%02X, want 0xD0", frame[0])
	}
	if frame[1] != byte(len(secret)+14) {
		t.Errorf("declared length = %d, want %d", frame[1], len(secret)+14)
	}
	if !bytes.Equal(frame[2:2+len(secret)], []byte(secret)) {
		t.Errorf("secret bytes = %q, want %q", frame[2:2+len(secret)], secret)
	}
	if frame[2+len(secret)] != 0xA5 {
		t.Errorf("separator = 0x%02X, want 0xA5", frame[2+len(secret)])
	}

	digits := frame[3+len(secret) : 3+len(secret)+6]
	for i, d := range digits {
		if d > 9 {
			t.Errorf("challenge digit %d = %d, want value in [0,9]", i, d)
		}
	}

	tag := frame[3+len(secret)+6 : 3+len(secret)+10]
	if !bytes.Equal(tag, []byte("ID01")) {
		t.Errorf("device class tag = %q, want %q", tag, "ID01")
	}

	if frame[len(frame)-1] != 0xA7 {
		t.Errorf("terminator = 0x%02X, want 0xA7", frame[len(frame)-1])
	}
}

func TestEncodeFixedPartsDeterministic(t *testing.T) {
	secret := "secret-01"

	a, err := Encode(secret)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := Encode(secret)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Everything except the six challenge digits must match between runs.
	prefixEnd := 3 + len(secret)
	if !bytes.Equal(a[:prefixEnd], b[:prefixEnd]) {
		t.Errorf("frame prefixes differ: % X vs % X", a[:prefixEnd], b[:prefixEnd])
	}
	if !bytes.Equal(a[prefixEnd+6:], b[prefixEnd+6:]) {
		t.Errorf("frame suffixes differ: % X vs % X", a[prefixEnd+6:], b[prefixEnd+6:])
	}
}

func TestEncodeValidation(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{
			name:    "empty secret",
			secret:  "",
			wantErr: ErrEmptySecret,
		},
		{
			name:    "secret too long",
			secret:  strings.Repeat("a", 242),
			wantErr: ErrSecretTooLong,
		},
		{
			name:    "longest accepted secret",
			secret:  strings.Repeat("a", 241),
			wantErr: nil,
		},
		{
			name:    "non-ASCII byte",
			secret:  "abc\x80def",
			wantErr: ErrSecretNotASCII,
		},
		{
			name:    "control character",
			secret:  "abc\ndef",
			wantErr: ErrSecretNotASCII,
		},
		{
			name:    "printable ASCII accepted",
			secret:  "a B~! 0",
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.secret)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Encode(%q) error = %v, want nil", tt.secret, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Encode(%q) error = %v, want %v", tt.secret, err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDeclaredLengthExceedsActual(t *testing.T) {
	// The declared-length byte uses the firmware's arithmetic: two more
	// than the count of bytes that actually follow it.
	secret := "AB12"
	frame, err := Encode(secret)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	following := len(frame) - 2
	if int(frame[1]) != following+2 {
		t.Errorf("declared length = %d, actual following bytes = %d, want declared = actual+2", frame[1], following)
	}
}
