package session

import (
	"crypto/md5" //nolint:gosec // vendor wire contract, not local credential storage
	"encoding/hex"
)

// md5Hex returns the lowercase MD5 hex digest of s.
//
// The vendor API expects MD5 digests for both the login password and
// the account identifier baked into lock records. The hash offers no
// real protection; it exists because the hardware ecosystem was built
// that way.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see above
	return hex.EncodeToString(sum[:])
}
