package ble

import "errors"

// Domain errors for the ble package. The unlock pipeline relies on
// these being distinct: a user seeing "connect failed" versus
// "characteristic not found" is the difference between moving closer
// to the door and calling the facilities office.
var (
	// ErrUnsupported is returned when no usable Bluetooth adapter is
	// available on the host.
	ErrUnsupported = errors.New("ble: bluetooth not supported on this host")

	// ErrScanTimeout is returned when no matching device advertises
	// within the scan window.
	ErrScanTimeout = errors.New("ble: scan timed out, device not found")

	// ErrScanFailed is returned when the scan itself cannot run.
	ErrScanFailed = errors.New("ble: scan failed")

	// ErrConnectFailed is returned when the GATT connection cannot be
	// established with a discovered device.
	ErrConnectFailed = errors.New("ble: connect failed")

	// ErrServiceNotFound is returned when the device does not expose
	// the expected primary service.
	ErrServiceNotFound = errors.New("ble: service not found")

	// ErrCharacteristicNotFound is returned when the service does not
	// expose the expected characteristic. This usually means the
	// server handed out stale UUIDs.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")

	// ErrWriteFailed is returned when the characteristic write fails.
	ErrWriteFailed = errors.New("ble: characteristic write failed")

	// ErrInvalidUUID is returned when a service or characteristic UUID
	// string cannot be parsed.
	ErrInvalidUUID = errors.New("ble: invalid UUID")
)
