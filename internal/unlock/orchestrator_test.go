package unlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arisumika/dormlock-core/internal/ble"
	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
)

type mockCharacteristic struct {
	writeErr error
	writes   [][]byte
}

func (c *mockCharacteristic) Write(_ context.Context, data []byte) error {
	c.writes = append(c.writes, data)
	return c.writeErr
}

type mockPeripheral struct {
	connectErr  error
	connectHold chan struct{} // when set, Connect blocks until closed
	charErr     error
	char        *mockCharacteristic

	mu          sync.Mutex
	disconnects int
}

func (p *mockPeripheral) Connect(_ context.Context) error {
	if p.connectHold != nil {
		<-p.connectHold
	}
	return p.connectErr
}

func (p *mockPeripheral) Characteristic(_ context.Context, _, _ string) (ble.Characteristic, error) {
	if p.charErr != nil {
		return nil, p.charErr
	}
	return p.char, nil
}

func (p *mockPeripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	return nil
}

func (p *mockPeripheral) disconnectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

type mockCentral struct {
	discoverErr error
	periph      *mockPeripheral
}

func (c *mockCentral) Discover(_ context.Context, _ string) (ble.Peripheral, error) {
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.periph, nil
}

func testLock() entity.Lock {
	return entity.Lock{
		Label:              "Building7-205",
		MAC:                "A1:B2:C3:D4:E5:F6",
		CharacteristicUUID: "0000fff1-0000-1000-8000-00805f9b34fb",
		ServiceUUID:        "0000fff0-0000-1000-8000-00805f9b34fb",
		Secret:             "s3cr3t",
		Username:           "hash",
		SchoolNo:           "1001",
		LockNo:             "A1:B2:C3:D4:E5:F6",
	}
}

// lastProgress drains the single-slot events channel; after Unlock
// returns it holds exactly the final snapshot.
func lastProgress(t *testing.T, o *Orchestrator) Progress {
	t.Helper()
	select {
	case p := <-o.Events():
		return p
	default:
		t.Fatal("no progress snapshot available")
		return Progress{}
	}
}

func TestUnlockSuccess(t *testing.T) {
	char := &mockCharacteristic{}
	periph := &mockPeripheral{char: char}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	if err := o.Unlock(context.Background(), testLock()); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	if len(char.writes) != 1 {
		t.Fatalf("characteristic written %d times, want 1", len(char.writes))
	}
	// The frame opens with the marker and carries the secret.
	frame := char.writes[0]
	if frame[0] != 0xD0 {
		t.Errorf("frame[0] = 0x%02X, want 0xD0", frame[0])
	}

	if got := periph.disconnectCount(); got != 1 {
		t.Errorf("disconnect count = %d, want 1", got)
	}

	final := lastProgress(t, o)
	if final.State != StateCompleted || final.Percent != 100 || final.Error != "" {
		t.Errorf("final progress = %+v, want completed/100 with no error", final)
	}
	// Snapshots identify their attempt; consumers must not have to
	// correlate against shared state.
	if final.LockID != testLock().ID() {
		t.Errorf("final LockID = %q, want %q", final.LockID, testLock().ID())
	}
}

func TestUnlockFailureSteps(t *testing.T) {
	writeErr := errors.New("gatt write rejected")

	tests := []struct {
		name           string
		central        func() *mockCentral
		wantPrefix     string
		wantSentinel   error
		wantDisconnect bool
	}{
		{
			name: "discovery fails",
			central: func() *mockCentral {
				return &mockCentral{discoverErr: ble.ErrScanTimeout}
			},
			wantPrefix:   "request device",
			wantSentinel: ble.ErrScanTimeout,
		},
		{
			name: "connect fails",
			central: func() *mockCentral {
				return &mockCentral{periph: &mockPeripheral{connectErr: ble.ErrConnectFailed}}
			},
			wantPrefix:   "connect",
			wantSentinel: ble.ErrConnectFailed,
		},
		{
			name: "characteristic lookup fails",
			central: func() *mockCentral {
				return &mockCentral{periph: &mockPeripheral{charErr: ble.ErrCharacteristicNotFound}}
			},
			wantPrefix:     "fetch characteristic",
			wantSentinel:   ble.ErrCharacteristicNotFound,
			wantDisconnect: true,
		},
		{
			name: "write fails",
			central: func() *mockCentral {
				return &mockCentral{periph: &mockPeripheral{char: &mockCharacteristic{writeErr: writeErr}}}
			},
			wantPrefix:     "write",
			wantSentinel:   writeErr,
			wantDisconnect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			central := tt.central()
			o := New(central, 0, logging.Default())

			err := o.Unlock(context.Background(), testLock())
			if err == nil {
				t.Fatal("Unlock() error = nil, want failure")
			}
			if !strings.HasPrefix(err.Error(), tt.wantPrefix+":") {
				t.Errorf("error = %q, want prefix %q", err, tt.wantPrefix)
			}
			if !errors.Is(err, tt.wantSentinel) {
				t.Errorf("error = %v, want wrapped %v", err, tt.wantSentinel)
			}

			final := lastProgress(t, o)
			if final.State != StateFailed {
				t.Errorf("final state = %q, want %q", final.State, StateFailed)
			}
			if final.LockID != testLock().ID() {
				t.Errorf("final LockID = %q, want %q", final.LockID, testLock().ID())
			}
			// Failure resets progress and clears the message.
			if final.Percent != 0 || final.Message != "" {
				t.Errorf("final progress = %+v, want percent 0 with empty message", final)
			}
			if !strings.HasPrefix(final.Error, tt.wantPrefix+":") {
				t.Errorf("final error = %q, want prefix %q", final.Error, tt.wantPrefix)
			}

			if tt.wantDisconnect && central.periph.disconnectCount() != 1 {
				t.Errorf("disconnect count = %d, want 1", central.periph.disconnectCount())
			}
		})
	}
}

func TestUnlockBadSecretFailsBeforeWrite(t *testing.T) {
	char := &mockCharacteristic{}
	periph := &mockPeripheral{char: char}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	lock := testLock()
	lock.Secret = "" // cannot build a frame

	err := o.Unlock(context.Background(), lock)
	if err == nil || !strings.HasPrefix(err.Error(), "build packet:") {
		t.Fatalf("Unlock() error = %v, want build packet failure", err)
	}
	if len(char.writes) != 0 {
		t.Errorf("characteristic written %d times, want 0", len(char.writes))
	}
	if periph.disconnectCount() != 1 {
		t.Errorf("disconnect count = %d, want 1", periph.disconnectCount())
	}
}

func TestUnlockRejectsConcurrentAttempt(t *testing.T) {
	hold := make(chan struct{})
	periph := &mockPeripheral{char: &mockCharacteristic{}, connectHold: hold}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- o.Unlock(context.Background(), testLock())
	}()

	// Wait until the first attempt is parked inside Connect.
	deadline := time.After(time.Second)
	for {
		o.mu.Lock()
		busy := o.inFlight
		o.mu.Unlock()
		if busy {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first unlock never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := o.Unlock(context.Background(), testLock()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Unlock() error = %v, want ErrBusy", err)
	}

	close(hold)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Unlock() error = %v", err)
	}

	// The slot frees up once the attempt finishes.
	if err := o.Unlock(context.Background(), testLock()); err != nil {
		t.Fatalf("Unlock() after completion error = %v", err)
	}
}

func TestUnlockCancelledDuringConnect(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	periph := &mockPeripheral{char: &mockCharacteristic{}, connectHold: hold}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := o.Unlock(ctx, testLock())
	if !errors.Is(err, ble.ErrConnectFailed) {
		t.Fatalf("Unlock() error = %v, want wrapped ErrConnectFailed", err)
	}
}

func TestUnlockAbandonedConnectTornDown(t *testing.T) {
	hold := make(chan struct{})
	periph := &mockPeripheral{char: &mockCharacteristic{}, connectHold: hold}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := o.Unlock(ctx, testLock()); !errors.Is(err, ble.ErrConnectFailed) {
		t.Fatalf("Unlock() error = %v, want wrapped ErrConnectFailed", err)
	}

	// Let the parked Connect succeed after the attempt gave up; the
	// late link must be torn down so it cannot block a retry.
	close(hold)

	deadline := time.After(time.Second)
	for periph.disconnectCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("late-succeeding connect was never disconnected")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestProgressMonotonicOnSuccess(t *testing.T) {
	char := &mockCharacteristic{}
	periph := &mockPeripheral{char: char}
	o := New(&mockCentral{periph: periph}, 0, logging.Default())

	var mu sync.Mutex
	var percents []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case p := <-o.Events():
				mu.Lock()
				percents = append(percents, p.Percent)
				last := p.Percent
				mu.Unlock()
				if last == 100 {
					return
				}
			case <-time.After(time.Second):
				return
			}
		}
	}()

	if err := o.Unlock(context.Background(), testLock()); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(percents) == 0 {
		t.Fatal("no progress observed")
	}
	// The slot is latest-wins, so snapshots may be skipped but never
	// reordered.
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final percent = %d, want 100", percents[len(percents)-1])
	}
}
