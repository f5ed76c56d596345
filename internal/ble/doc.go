// Package ble abstracts the Bluetooth Low Energy central role needed
// to reach a door lock: scan for the advertised service, connect to
// the GATT server, resolve the writable characteristic, write.
//
// The unlock pipeline consumes only the Central/Peripheral/
// Characteristic interfaces; the host adapter on tinygo.org/x/bluetooth
// is one implementation, and tests substitute their own. Every step is
// bounded by a timeout — an out-of-range lock or a dead radio must
// surface as a classified error, never as a hang.
package ble
