package harness

import (
	"fmt"

	"github.com/sarchlab/codspeed-runner/errkind"
)

// Bound is the min/max constraint a caller can attach to a harness run:
// a round count, a time budget, or both together.
type Bound struct {
	Rounds *uint64
	TimeNs *uint64
}

// RoundsOnly builds a Bound carrying only a round-count constraint.
func RoundsOnly(rounds uint64) Bound { return Bound{Rounds: &rounds} }

// TimeOnly builds a Bound carrying only a time constraint.
func TimeOnly(timeNs uint64) Bound { return Bound{TimeNs: &timeNs} }

// Both builds a Bound carrying both a round-count and a time constraint.
func Both(rounds, timeNs uint64) Bound { return Bound{Rounds: &rounds, TimeNs: &timeNs} }

// DefaultWarmupTimeNs is the default warmup duration: 1 second.
const DefaultWarmupTimeNs uint64 = 1_000_000_000

// Options are the Execution Options from the data model: the warmup
// budget plus an optional min/max Bound pair.
type Options struct {
	WarmupTimeNs uint64
	Min          *Bound
	Max          *Bound
}

// NewOptions validates and constructs Options. It enforces, at
// construction time, that min.TimeNs <= max.TimeNs and min.Rounds <=
// max.Rounds whenever both sides of a dimension are present, and that at
// least one constraint exists when warmup is disabled.
func NewOptions(warmupTimeNs uint64, min, max *Bound) (Options, error) {
	if min != nil && max != nil {
		if min.TimeNs != nil && max.TimeNs != nil && *min.TimeNs > *max.TimeNs {
			return Options{}, errkind.New(errkind.Configuration, "harness.NewOptions",
				fmt.Errorf("min time (%dns) must be <= max time (%dns)", *min.TimeNs, *max.TimeNs))
		}
		if min.Rounds != nil && max.Rounds != nil && *min.Rounds > *max.Rounds {
			return Options{}, errkind.New(errkind.Configuration, "harness.NewOptions",
				fmt.Errorf("min rounds (%d) must be <= max rounds (%d)", *min.Rounds, *max.Rounds))
		}
	}

	hasRoundsBound := (min != nil && min.Rounds != nil) || (max != nil && max.Rounds != nil)
	hasMaxTimeBound := max != nil && max.TimeNs != nil
	if warmupTimeNs == 0 && !hasRoundsBound && !hasMaxTimeBound {
		return Options{}, errkind.New(errkind.Configuration, "harness.NewOptions",
			fmt.Errorf("must specify at least one constraint when warmup is disabled"))
	}

	return Options{WarmupTimeNs: warmupTimeNs, Min: min, Max: max}, nil
}

// WarmupDisabled reports whether warmup is skipped entirely.
func (o Options) WarmupDisabled() bool { return o.WarmupTimeNs == 0 }
