package ble

import "context"

// Central is the Bluetooth central role as the unlock pipeline sees
// it: discover one peripheral advertising a service.
//
// UUID parameters throughout are matched case-insensitively; vendor
// records carry them in inconsistent casing.
type Central interface {
	// Discover scans for a peripheral advertising the given service
	// UUID. It returns ErrScanTimeout when the scan window closes
	// without a match and ErrUnsupported when no adapter is usable.
	Discover(ctx context.Context, serviceUUID string) (Peripheral, error)
}

// Peripheral is one discovered device.
//
// A Peripheral is single-use: after any failure the handle must be
// discarded and discovery rerun — GATT handles are not safely
// reusable across failed attempts.
type Peripheral interface {
	// Connect establishes the GATT connection.
	Connect(ctx context.Context) error

	// Characteristic resolves the primary service and then the target
	// characteristic by UUID. Requires a prior successful Connect.
	Characteristic(ctx context.Context, serviceUUID, characteristicUUID string) (Characteristic, error)

	// Disconnect tears down the GATT connection. Safe to call when
	// never connected.
	Disconnect() error
}

// Characteristic is a writable GATT data point.
type Characteristic interface {
	// Write performs a single unacknowledged value write.
	Write(ctx context.Context, data []byte) error
}
