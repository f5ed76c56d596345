// Package packet encodes the unlock command written to a lock's GATT
// characteristic.
//
// The frame combines the tenant-issued lock secret with a fresh random
// challenge:
//
//	[0xD0] [declared length] [secret bytes] [0xA5] [6 digit bytes] [I D 0 1] [0xA7]
//
// The protocol is fire-and-forget: the lock never acknowledges, never
// answers, and the link carries no encryption. That is a hardware
// constraint, not a choice this package can relax.
package packet

import (
	"fmt"
	"math/rand/v2"
)

// Frame delimiters and tags.
const (
	// frameMarker opens every unlock frame.
	frameMarker = 0xD0

	// separator sits between the secret and the random challenge.
	separator = 0xA5

	// terminator closes the frame.
	terminator = 0xA7

	// challengeDigits is the number of single-digit challenge bytes.
	challengeDigits = 6

	// challengeBound is the exclusive upper bound of the random
	// challenge value.
	challengeBound = 1_000_000

	// declaredLengthPad is added to the secret length to form the
	// declared-length byte. The vendor firmware computes
	// len(secret)+2+2+10; the bytes that actually follow the length
	// field total len(secret)+12. Deployed locks accept the +14 value,
	// so the firmware arithmetic is preserved verbatim — correcting it
	// without hardware verification could brick real doors.
	declaredLengthPad = 14

	// maxSecretLen keeps the declared-length byte within one byte.
	maxSecretLen = 0xFF - declaredLengthPad
)

// deviceClassTag identifies the lock hardware family ("ID01").
var deviceClassTag = [4]byte{0x49, 0x44, 0x30, 0x31}

// Encode builds an unlock frame for the given lock secret.
//
// The frame is deterministic except for the embedded challenge: a
// fresh random integer in [0, 1,000,000), emitted as six bytes of one
// decimal digit each, least-significant digit first. The challenge is
// never verified by the lock — it only varies the frame between
// attempts — so a non-cryptographic source is sufficient.
//
// Total frame length is 2 + len(secret) + 1 + 6 + 4 + 1 bytes.
//
// Parameters:
//   - secret: Tenant-issued lock secret (printable ASCII)
//
// Returns:
//   - []byte: Complete frame ready for a single characteristic write
//   - error: If the secret is empty, too long, or not printable ASCII
func Encode(secret string) ([]byte, error) {
	if err := validateSecret(secret); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2+len(secret)+1+challengeDigits+len(deviceClassTag)+1)

	buf = append(buf, frameMarker)
	buf = append(buf, byte(len(secret)+declaredLengthPad))
	buf = append(buf, secret...)
	buf = append(buf, separator)

	challenge := rand.IntN(challengeBound)
	for range challengeDigits {
		buf = append(buf, byte(challenge%10))
		challenge /= 10
	}

	buf = append(buf, deviceClassTag[:]...)
	buf = append(buf, terminator)

	return buf, nil
}

// validateSecret rejects secrets the frame cannot carry.
func validateSecret(secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if len(secret) > maxSecretLen {
		return fmt.Errorf("%w: %d bytes, max %d", ErrSecretTooLong, len(secret), maxSecretLen)
	}
	for i := 0; i < len(secret); i++ {
		if secret[i] < 0x20 || secret[i] > 0x7E {
			return fmt.Errorf("%w: byte 0x%02X at offset %d", ErrSecretNotASCII, secret[i], i)
		}
	}
	return nil
}
