package ble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/arisumika/dormlock-core/internal/infrastructure/config"
)

// HostCentral implements Central on the host's Bluetooth adapter via
// tinygo.org/x/bluetooth (BlueZ on Linux, CoreBluetooth on macOS,
// WinRT on Windows).
type HostCentral struct {
	adapter        *bluetooth.Adapter
	scanTimeout    time.Duration
	connectTimeout time.Duration
}

// NewHostCentral enables the default host adapter.
//
// Returns ErrUnsupported when the host has no usable Bluetooth stack,
// so callers can degrade gracefully instead of crashing at startup.
func NewHostCentral(cfg config.BLEConfig) (*HostCentral, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return &HostCentral{
		adapter:        adapter,
		scanTimeout:    cfg.GetScanTimeout(),
		connectTimeout: cfg.GetConnectTimeout(),
	}, nil
}

// Discover implements Central.
//
// The scan stops at the first device advertising the service UUID.
// The window is bounded by the configured scan timeout and by ctx;
// both paths stop the scan before returning so the adapter is left
// idle.
func (c *HostCentral) Discover(ctx context.Context, serviceUUID string) (Peripheral, error) {
	uuid, err := parseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)

	go func() {
		scanDone <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			select {
			case found <- result:
			default:
			}
			adapter.StopScan() //nolint:errcheck // stopping a finished scan is harmless
		})
	}()

	timer := time.NewTimer(c.scanTimeout)
	defer timer.Stop()

	select {
	case result := <-found:
		return &hostPeripheral{
			adapter:        c.adapter,
			address:        result.Address,
			connectTimeout: c.connectTimeout,
		}, nil
	case err := <-scanDone:
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
		}
		return nil, ErrScanTimeout
	case <-timer.C:
		c.adapter.StopScan() //nolint:errcheck // best effort teardown
		return nil, fmt.Errorf("%w: no device advertising %s within %v", ErrScanTimeout, serviceUUID, c.scanTimeout)
	case <-ctx.Done():
		c.adapter.StopScan() //nolint:errcheck // best effort teardown
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, ctx.Err())
	}
}

// hostPeripheral is a device found by HostCentral.
type hostPeripheral struct {
	adapter        *bluetooth.Adapter
	address        bluetooth.Address
	connectTimeout time.Duration

	device    bluetooth.Device
	connected bool
}

// Connect implements Peripheral.
func (p *hostPeripheral) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	device, err := p.adapter.Connect(p.address, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(p.connectTimeout),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	p.device = device
	p.connected = true
	return nil
}

// Characteristic implements Peripheral.
func (p *hostPeripheral) Characteristic(ctx context.Context, serviceUUID, characteristicUUID string) (Characteristic, error) {
	if !p.connected {
		return nil, fmt.Errorf("%w: not connected", ErrServiceNotFound)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceNotFound, err)
	}

	svcUUID, err := parseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUID, err := parseUUID(characteristicUUID)
	if err != nil {
		return nil, err
	}

	services, err := p.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceNotFound, serviceUUID, err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceUUID)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCharacteristicNotFound, characteristicUUID, err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, characteristicUUID)
	}

	return &hostCharacteristic{char: chars[0]}, nil
}

// Disconnect implements Peripheral.
func (p *hostPeripheral) Disconnect() error {
	if !p.connected {
		return nil
	}
	p.connected = false
	if err := p.device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// hostCharacteristic wraps a resolved GATT characteristic.
type hostCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

// Write implements Characteristic.
func (c *hostCharacteristic) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if _, err := c.char.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// parseUUID parses a UUID string case-insensitively.
func parseUUID(s string) (bluetooth.UUID, error) {
	uuid, err := bluetooth.ParseUUID(strings.ToLower(s))
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("%w: %q: %w", ErrInvalidUUID, s, err)
	}
	return uuid, nil
}
