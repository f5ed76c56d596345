package entity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// shareFieldCount is the exact number of |-separated fields in a
// share-link payload. Anything else is rejected.
const shareFieldCount = 8

// Lock carries everything needed to address and command one door.
//
// All eight fields are mandatory. Secret and the two UUIDs are opaque,
// tenant-issued values consumed by the challenge-packet encoder and by
// GATT service discovery; they are never derived locally. Username is
// the MD5 hex digest of the account identifier used at discovery time,
// never the plaintext.
//
// A Lock is immutable once constructed; equality is by ID.
type Lock struct {
	Label              string `json:"label"`
	MAC                string `json:"mac"`
	CharacteristicUUID string `json:"characteristicUuid"`
	ServiceUUID        string `json:"serviceUuid"`
	Secret             string `json:"secret"`
	Username           string `json:"username"`
	SchoolNo           string `json:"schoolNo"`
	LockNo             string `json:"lockNo"`
}

// ID returns the lock's unique identifier within a user's lock set.
func (l Lock) ID() string {
	return l.SchoolNo + "_" + l.LockNo
}

// Validate reports whether every mandatory field is present.
func (l Lock) Validate() error {
	fields := map[string]string{
		"label":              l.Label,
		"mac":                l.MAC,
		"characteristicUuid": l.CharacteristicUUID,
		"serviceUuid":        l.ServiceUUID,
		"secret":             l.Secret,
		"username":           l.Username,
		"schoolNo":           l.SchoolNo,
		"lockNo":             l.LockNo,
	}
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("%w: missing %s", ErrIncompleteLock, name)
		}
	}
	return nil
}

// LockFromRecord builds a Lock from one raw lock-list record.
//
// The label is assembled from building and dorm number, and the
// upstream lockNo serves as both the BLE MAC address and the catalog
// number — the vendor issues a single value for both roles.
//
// Parameters:
//   - rec: Decoded lock-list record
//   - hashedUsername: MD5 hex digest of the account identifier
//   - schoolNo: Tenant the lock belongs to
func LockFromRecord(rec map[string]any, hashedUsername, schoolNo string) Lock {
	lockNo := stringField(rec, nil, "lockNo")
	return Lock{
		Label:              stringField(rec, nil, "buildName") + "-" + stringField(rec, nil, "dormNo"),
		MAC:                lockNo,
		CharacteristicUUID: stringField(rec, nil, "lockCharacterUuid"),
		ServiceUUID:        stringField(rec, nil, "lockServiceUuid"),
		Secret:             stringField(rec, nil, "lockSecret"),
		Username:           hashedUsername,
		SchoolNo:           schoolNo,
		LockNo:             lockNo,
	}
}

// LockFromJSON reconstructs a Lock from its persisted JSON form.
//
// The vendor field aliases (lockCharacterUuid, lockServiceUuid,
// lockSecret) are accepted alongside the canonical names so raw
// server records pasted by users still import.
func LockFromJSON(data []byte) (Lock, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Lock{}, err
	}
	l := Lock{
		Label:              stringField(raw, nil, "label"),
		MAC:                stringField(raw, nil, "mac"),
		CharacteristicUUID: stringField(raw, nil, "characteristicUuid"),
		ServiceUUID:        stringField(raw, nil, "serviceUuid"),
		Secret:             stringField(raw, nil, "secret"),
		Username:           stringField(raw, nil, "username"),
		SchoolNo:           stringField(raw, nil, "schoolNo"),
		LockNo:             stringField(raw, nil, "lockNo"),
	}
	if l.CharacteristicUUID == "" {
		l.CharacteristicUUID = stringField(raw, nil, "lockCharacterUuid")
	}
	if l.ServiceUUID == "" {
		l.ServiceUUID = stringField(raw, nil, "lockServiceUuid")
	}
	if l.Secret == "" {
		l.Secret = stringField(raw, nil, "lockSecret")
	}
	return l, nil
}

// ToJSON serialises the Lock for persistence.
func (l Lock) ToJSON() ([]byte, error) {
	return json.Marshal(l)
}

// ShareString encodes the Lock as a shareable string.
//
// The payload is the eight fields joined with "|" and base64-encoded.
// With headless=false the result is prefixed with origin+"/lock/" so
// it can be pasted as a link; headless=true yields the bare token.
func (l Lock) ShareString(origin string, headless bool) string {
	body := strings.Join([]string{
		l.Label,
		l.MAC,
		l.CharacteristicUUID,
		l.ServiceUUID,
		l.Secret,
		l.Username,
		l.SchoolNo,
		l.LockNo,
	}, "|")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	if headless {
		return encoded
	}
	return origin + "/lock/" + encoded
}

// LockFromShareURL decodes a share link (or bare share token) back
// into a Lock.
//
// Only the final /-delimited path segment is considered, so full links
// and bare tokens are both accepted. The decoded payload must split
// into exactly eight fields; anything else fails with
// ErrInvalidShareLink.
func LockFromShareURL(url string) (Lock, error) {
	segments := strings.Split(url, "/")
	token := segments[len(segments)-1]

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Lock{}, fmt.Errorf("%w: %w", ErrInvalidShareLink, err)
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != shareFieldCount {
		return Lock{}, fmt.Errorf("%w: got %d fields, want %d", ErrInvalidShareLink, len(parts), shareFieldCount)
	}

	return Lock{
		Label:              parts[0],
		MAC:                parts[1],
		CharacteristicUUID: parts[2],
		ServiceUUID:        parts[3],
		Secret:             parts[4],
		Username:           parts[5],
		SchoolNo:           parts[6],
		LockNo:             parts[7],
	}, nil
}
