// Package unlock coordinates the BLE unlock sequence for one lock:
// device discovery, GATT connection, characteristic lookup, and the
// challenge-packet write, with user-visible progress at every step.
//
// The sequence never retries on its own. BLE handles are not safely
// reusable after a failure, so a retry must re-run the whole sequence
// from discovery — that decision belongs to the caller.
package unlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arisumika/dormlock-core/internal/ble"
	"github.com/arisumika/dormlock-core/internal/entity"
	"github.com/arisumika/dormlock-core/internal/infrastructure/logging"
	"github.com/arisumika/dormlock-core/internal/packet"
)

// State identifies where in the unlock sequence an attempt is.
type State string

// Unlock states, in sequence order. Failed and Completed are terminal
// for one attempt; the orchestrator returns to Idle for the next.
const (
	StateIdle                   State = "idle"
	StateRequestingDevice       State = "requesting_device"
	StateConnecting             State = "connecting"
	StateFetchingCharacteristic State = "fetching_characteristic"
	StateBuildingPacket         State = "building_packet"
	StateWriting                State = "writing"
	StateCompleted              State = "completed"
	StateFailed                 State = "failed"
)

// Progress is one user-visible snapshot of an unlock attempt.
//
// LockID identifies the attempt the snapshot belongs to, so consumers
// never have to correlate against shared state. On failure Percent
// resets to 0, Message clears, and Error carries a human-readable
// string prefixed with the step that failed.
type Progress struct {
	LockID  string `json:"lock_id"`
	State   State  `json:"state"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Orchestrator drives the unlock sequence for locks, one attempt at a
// time.
//
// Progress is delivered on a single-slot channel where the latest
// snapshot wins; a slow consumer sees the freshest state rather than a
// backlog. At most one unlock may be in flight per Orchestrator —
// concurrent attempts are rejected with ErrBusy. Independent locks can
// be unlocked concurrently by giving each its own Orchestrator.
type Orchestrator struct {
	central ble.Central
	grace   time.Duration
	log     *logging.Logger

	mu       sync.Mutex
	inFlight bool
	lockID   string // ID of the in-flight attempt; written only while holding the slot
	events   chan Progress
}

// New creates an Orchestrator.
//
// Parameters:
//   - central: BLE central used for discovery and connection
//   - grace: Delay between a successful write and radio teardown
//   - log: Logger instance
func New(central ble.Central, grace time.Duration, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		central: central,
		grace:   grace,
		log:     log,
		events:  make(chan Progress, 1),
	}
}

// Events returns the progress channel.
//
// The channel is never closed; it is single-slot and latest-wins, so
// reading it at any time yields the most recent snapshot.
func (o *Orchestrator) Events() <-chan Progress {
	return o.events
}

// Unlock runs the full unlock sequence for one lock.
//
// On success the final progress snapshot is Completed/100 with no
// error, and the GATT link is torn down after the configured grace
// delay — the lock finishes processing the command after the write,
// and dropping the link immediately can abort it. There is no
// acknowledgment to wait for; the protocol is fire-and-forget.
//
// Any failure transitions to Failed, resets progress, and returns an
// error prefixed with the failing step. ctx cancels the attempt at
// every suspension point.
func (o *Orchestrator) Unlock(ctx context.Context, lock entity.Lock) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return ErrBusy
	}
	o.inFlight = true
	o.lockID = lock.ID()
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	o.log.Info("unlock started", "lock_id", lock.ID(), "label", lock.Label)

	// Step 1: discovery
	o.emit(StateRequestingDevice, 0, "requesting bluetooth device")
	periph, err := o.central.Discover(ctx, lock.ServiceUUID)
	if err != nil {
		return o.fail("request device", err)
	}
	o.emit(StateRequestingDevice, 20, "device found")

	// Step 2: GATT connection
	o.emit(StateConnecting, 30, "connecting")
	if err := o.connect(ctx, periph); err != nil {
		return o.fail("connect", err)
	}
	o.emit(StateConnecting, 40, "connected")

	// Step 3: characteristic lookup
	o.emit(StateFetchingCharacteristic, 50, "fetching characteristic")
	char, err := periph.Characteristic(ctx, lock.ServiceUUID, lock.CharacteristicUUID)
	if err != nil {
		o.teardown(periph)
		return o.fail("fetch characteristic", err)
	}
	o.emit(StateFetchingCharacteristic, 60, "characteristic found")

	// Step 4: command encoding
	o.emit(StateBuildingPacket, 70, "building unlock command")
	frame, err := packet.Encode(lock.Secret)
	if err != nil {
		o.teardown(periph)
		return o.fail("build packet", err)
	}

	// Step 5: the write
	o.emit(StateWriting, 80, "sending unlock command")
	if err := char.Write(ctx, frame); err != nil {
		o.teardown(periph)
		return o.fail("write", err)
	}
	o.emit(StateWriting, 90, "command sent")

	o.emit(StateCompleted, 100, "unlocked")
	o.log.Info("unlock completed", "lock_id", lock.ID())

	// The command succeeded; the grace wait only protects the lock's
	// post-write processing, so cancellation here just tears down early.
	o.graceWait(ctx)
	o.teardown(periph)

	return nil
}

// connect runs the connection step with a timeout supervisor so a
// stuck platform dialer cannot stall the attempt past ctx.
func (o *Orchestrator) connect(ctx context.Context, periph ble.Peripheral) error {
	done := make(chan error, 1)
	go func() {
		done <- periph.Connect(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// The platform dialer may still succeed after the attempt is
		// abandoned. A dangling GATT link would block the next retry
		// until the OS drops it, so tear it down when the late result
		// arrives.
		go func() {
			if err := <-done; err == nil {
				o.teardown(periph)
			}
		}()
		return fmt.Errorf("%w: %w", ble.ErrConnectFailed, ctx.Err())
	}
}

// graceWait sleeps for the configured grace delay, cut short by ctx.
func (o *Orchestrator) graceWait(ctx context.Context) {
	if o.grace <= 0 {
		return
	}
	timer := time.NewTimer(o.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// teardown disconnects best-effort; the attempt's outcome is already
// decided when it runs.
func (o *Orchestrator) teardown(periph ble.Peripheral) {
	if err := periph.Disconnect(); err != nil {
		o.log.Warn("disconnect failed", "error", err)
	}
}

// fail records a failed attempt: progress resets to 0, the message
// clears, and the error string carries the failing step.
func (o *Orchestrator) fail(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	o.push(Progress{LockID: o.lockID, State: StateFailed, Percent: 0, Error: wrapped.Error()})
	o.log.Warn("unlock failed", "step", step, "error", err)
	return wrapped
}

// emit publishes a progress snapshot, replacing any unconsumed one.
func (o *Orchestrator) emit(state State, percent int, message string) {
	o.push(Progress{LockID: o.lockID, State: state, Percent: percent, Message: message})
}

// push performs the single-slot latest-wins delivery.
func (o *Orchestrator) push(p Progress) {
	for {
		select {
		case o.events <- p:
			return
		default:
			// Slot full: drop the stale snapshot and retry.
			select {
			case <-o.events:
			default:
			}
		}
	}
}
