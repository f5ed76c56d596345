// Package session drives the authenticated vendor API workflow:
// login, tenant (school) discovery and lock discovery, in that order.
//
// A Session is a small one-directional state machine
// (Anonymous → Authenticated → SchoolsKnown → LocksKnown); calling an
// operation before its prerequisite state fails with
// ErrNotAuthenticated rather than hitting the network. Credentials are
// private, single-owner state — no two sessions ever share a token.
//
// The wire protocol never carries plaintext passwords: the password is
// MD5-hashed client side before login, and the account identifier is
// MD5-hashed before it is attached to discovered locks. MD5 is a
// vendor contract, not a local choice.
package session
