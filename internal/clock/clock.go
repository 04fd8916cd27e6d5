// Package clock provides the core's only external notion of time: a source
// of monotonically non-decreasing timeslot ticks (spec's clock
// collaborator). The core itself never calls time.Now or blocks on a
// timer — it only ever reads from the channel a Source produces.
package clock

import (
	"time"

	"github.com/lasagna-chain/lasagna/internal/params"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Source delivers NewTimeslot notifications to the actor loop.
type Source interface {
	// Timeslots returns a channel that receives the current timeslot
	// whenever it advances. The channel is closed when Stop is called.
	Timeslots() <-chan types.Timeslot
	Stop()
}

// Wall is a Source driven by the system clock, ticking every slotLength
// microseconds (params.SlotLengthProd for NewWall) and computing the timeslot as
// (now - startTime) / slotLength, matching the production derivation in the
// external-interfaces contract.
type Wall struct {
	startTime  int64
	slotLength int64
	ticker     *time.Ticker
	out        chan types.Timeslot
	done       chan struct{}
}

// NewWall starts a wall-clock source using the production epoch and slot
// length.
func NewWall() *Wall {
	return newWall(params.StartTime, params.SlotLengthProd)
}

// NewWallFrom starts a wall-clock source using an operator-supplied epoch
// (Unix microseconds) and slot length (microseconds), as parsed from a
// node's command-line flags.
func NewWallFrom(startTime, slotLength int64) *Wall {
	return newWall(startTime, slotLength)
}

func newWall(startTime, slotLength int64) *Wall {
	w := &Wall{
		startTime:  startTime,
		slotLength: slotLength,
		ticker:     time.NewTicker(time.Duration(slotLength) * time.Microsecond),
		out:        make(chan types.Timeslot, 1),
		done:       make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Wall) run() {
	for {
		select {
		case <-w.done:
			close(w.out)
			return
		case <-w.ticker.C:
			select {
			case w.out <- w.currentTimeslot():
			default:
				// Drop the tick if the previous one hasn't been consumed yet;
				// the actor loop only cares about the latest timeslot.
			}
		}
	}
}

func (w *Wall) currentTimeslot() types.Timeslot {
	nowMicros := time.Now().UnixMicro()
	return types.Timeslot((nowMicros - w.startTime) / w.slotLength)
}

// Timeslots implements Source.
func (w *Wall) Timeslots() <-chan types.Timeslot {
	return w.out
}

// Stop implements Source.
func (w *Wall) Stop() {
	w.ticker.Stop()
	close(w.done)
}

// Manual is a test double that only advances when told to.
type Manual struct {
	out chan types.Timeslot
}

// NewManual returns a Source with no automatic ticking, for deterministic
// tests.
func NewManual() *Manual {
	return &Manual{out: make(chan types.Timeslot, 16)}
}

// Advance delivers t as the next timeslot.
func (m *Manual) Advance(t types.Timeslot) {
	m.out <- t
}

// Timeslots implements Source.
func (m *Manual) Timeslots() <-chan types.Timeslot {
	return m.out
}

// Stop implements Source.
func (m *Manual) Stop() {
	close(m.out)
}
