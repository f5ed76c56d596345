// Package entity defines the canonical data shapes of the unlock
// pipeline: the account-level User, the tenant School descriptor, and
// the Lock that carries everything needed to address and command a
// door over BLE.
//
// Vendor API responses are handed over as untyped JSON and converted
// here through defaulting field extraction; the rest of the codebase
// only ever sees these types. Serialisation is lossless in both
// directions so the persisted state survives reloads intact.
package entity
