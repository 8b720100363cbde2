package round

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/avialab/crashsync/internal/protocol"
)

// DefaultGrowthRate is the per-second exponent of the payout curve,
// M(t) = exp(rate * t). Every round shares the same constant so the live
// multiplier is computable without the hidden crash point; only once the
// round has crashed does the now-known crash point take over.
const DefaultGrowthRate = 0.06

// MultiplierEngine computes the current payout multiplier as a pure function
// of round state and time. The clock is injectable so tests control it.
type MultiplierEngine struct {
	rate  float64
	clock clockwork.Clock
}

func NewMultiplierEngine(rate float64, clock clockwork.Clock) *MultiplierEngine {
	if rate <= 0 {
		rate = DefaultGrowthRate
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MultiplierEngine{rate: rate, clock: clock}
}

// At returns the multiplier for the given round at the given instant.
// Betting is exactly 1.0, Crashed is exactly the crash point, and Flying
// grows exponentially with elapsed flight time.
func (e *MultiplierEngine) At(r RoundState, now time.Time) float64 {
	switch r.Phase {
	case protocol.PhaseFlying:
		if r.StartTime.IsZero() {
			return 1.0
		}
		elapsed := now.Sub(r.StartTime).Seconds()
		if elapsed <= 0 {
			return 1.0
		}
		return math.Exp(e.rate * elapsed)
	case protocol.PhaseCrashed:
		if r.CrashPoint != nil {
			return *r.CrashPoint
		}
		return 1.0
	default:
		return 1.0
	}
}

// Current returns the multiplier for the given round at the engine clock's
// current time.
func (e *MultiplierEngine) Current(r RoundState) float64 {
	return e.At(r, e.clock.Now())
}
