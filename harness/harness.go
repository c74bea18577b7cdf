// Package harness implements the wall-time execution harness: it invokes
// an arbitrary command a statistically-meaningful number of times under
// warmup/round/time constraints and reports the wall-clock duration of
// each round.
package harness

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/codspeed-runner/errkind"
)

// CommandFactory builds one *exec.Cmd for a single round. A factory is
// used rather than a bare command slice so every round gets a fresh
// *exec.Cmd, matching the one-shot nature of exec.Cmd.
type CommandFactory func(ctx context.Context) *exec.Cmd

// RoundRecord is the start/end monotonic timestamp pair of one round, as
// described in the data model. Both fields come from the same
// monotonic-backed clock source (time.Now on Go's runtime never loses its
// monotonic reading unless explicitly stripped).
type RoundRecord struct {
	StartNs uint64
	EndNs   uint64
}

// Duration returns the round's wall-clock duration in nanoseconds.
func (r RoundRecord) Duration() uint64 { return r.EndNs - r.StartNs }

// Harness runs a benchmark command repeatedly under a set of Options.
type Harness struct {
	NewCommand CommandFactory
	Log        logr.Logger
}

// New builds a Harness that spawns cmd via factory for every round.
func New(factory CommandFactory, log logr.Logger) *Harness {
	return &Harness{NewCommand: factory, Log: log}
}

// clockBase anchors monotonicNow: time.Since reads the monotonic clock
// carried by both time.Time values, never the wall clock.
var clockBase = time.Now()

func monotonicNow() uint64 {
	return uint64(time.Since(clockBase).Nanoseconds())
}

// runOnce spawns and waits for one round, returning its RoundRecord. A
// non-zero exit or spawn failure is always propagated; the harness never
// swallows a failing child.
func (h *Harness) runOnce(ctx context.Context, benchURI string) (RoundRecord, error) {
	cmd := h.NewCommand(ctx)

	start := monotonicNow()
	err := cmd.Run()
	end := monotonicNow()

	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return RoundRecord{}, errkind.New(errkind.ChildRuntime, "harness.runOnce",
				fmt.Errorf("benchmark command for %q exited with error: %w", benchURI, err))
		}
		return RoundRecord{}, errkind.New(errkind.Spawn, "harness.runOnce",
			fmt.Errorf("failed to spawn benchmark command for %q: %w", benchURI, err))
	}

	return RoundRecord{StartNs: start, EndNs: end}, nil
}

// RunRounds executes benchURI's command repeatedly per opts and returns
// the ordered sequence of round durations in nanoseconds.
func (h *Harness) RunRounds(ctx context.Context, benchURI string, opts Options) ([]uint64, error) {
	var warmup []uint64

	if !opts.WarmupDisabled() {
		warmupStart := monotonicNow()
		for monotonicNow()-warmupStart < opts.WarmupTimeNs {
			round, err := h.runOnce(ctx, benchURI)
			if err != nil {
				return nil, err
			}
			dur := round.Duration()
			warmup = append(warmup, dur)

			if opts.Max != nil && opts.Max.TimeNs != nil && dur >= *opts.Max.TimeNs {
				return warmup, nil
			}
		}

		return h.measureWithWarmup(ctx, benchURI, opts, warmup)
	}

	return h.measureWithoutWarmup(ctx, benchURI, opts)
}

// measureWithWarmup derives the round/time targets from the observed
// warmup average and then runs the measurement loop (§4.A steps 2 and 4).
func (h *Harness) measureWithWarmup(ctx context.Context, benchURI string, opts Options, warmup []uint64) ([]uint64, error) {
	if len(warmup) == 0 {
		// warmupTimeNs > 0 but the clock advanced past the budget
		// before a single round completed; treat as one round's worth
		// of data so the average is still well-defined downstream.
		warmup = []uint64{0}
	}

	var total uint64
	for _, d := range warmup {
		total += d
	}
	avg := total / uint64(len(warmup))
	if avg == 0 {
		avg = 1
	}

	minRoundsDerived, minTimeNs := derivedBound(opts.Min, avg, true)
	maxRoundsDerived, maxTimeNs := derivedBound(opts.Max, avg, false)

	roundsToPerform, err := resolveRounds(h.Log, minRoundsDerived, maxRoundsDerived)
	if err != nil {
		return nil, err
	}

	return h.measurementLoop(ctx, benchURI, roundsToPerform, minTimeNs, maxTimeNs)
}

// measureWithoutWarmup derives rounds/time bounds directly from the
// explicit options, per §4.A step 3.
func (h *Harness) measureWithoutWarmup(ctx context.Context, benchURI string, opts Options) ([]uint64, error) {
	var roundsToPerform *uint64
	if opts.Min != nil && opts.Min.Rounds != nil {
		roundsToPerform = opts.Min.Rounds
	} else if opts.Max != nil && opts.Max.Rounds != nil {
		roundsToPerform = opts.Max.Rounds
	}

	var minTimeNs, maxTimeNs *uint64
	if opts.Min != nil {
		minTimeNs = opts.Min.TimeNs
	}
	if opts.Max != nil {
		maxTimeNs = opts.Max.TimeNs
	}

	return h.measurementLoop(ctx, benchURI, roundsToPerform, minTimeNs, maxTimeNs)
}

// derivedBound computes {min,max}_rounds_derived and the corresponding
// time bound for one side (min or max) of the options, per §4.A step 2.
func derivedBound(b *Bound, avg uint64, isMin bool) (*uint64, *uint64) {
	if b == nil {
		return nil, nil
	}

	switch {
	case b.Rounds != nil && b.TimeNs == nil:
		r := *b.Rounds
		return &r, nil
	case b.Rounds == nil && b.TimeNs != nil:
		r := timeToRounds(*b.TimeNs, avg, isMin)
		return &r, b.TimeNs
	case b.Rounds != nil && b.TimeNs != nil:
		fromTime := timeToRounds(*b.TimeNs, avg, isMin)
		var r uint64
		if isMin {
			r = maxU64(*b.Rounds, fromTime)
		} else {
			r = minU64(*b.Rounds, fromTime)
		}
		return &r, b.TimeNs
	default:
		return nil, nil
	}
}

// timeToRounds converts a time budget into a round count: the min side
// adds one round of slack so the budget is met or exceeded; the max side
// does not, so the budget is never exceeded by a full round.
func timeToRounds(t, avg uint64, isMin bool) uint64 {
	r := (t + avg) / avg
	if isMin {
		r++
	}
	return r
}

// resolveRounds implements the resolution table of §4.A step 2: if only
// one side is present use it directly; if both are present and
// min > max, log a warning and fall back to max (the Open Question in
// spec.md §9, resolved here exactly as the reference runner does it for
// the warmup-computed case); otherwise average the two.
func resolveRounds(log logr.Logger, min, max *uint64) (*uint64, error) {
	switch {
	case min != nil && max == nil:
		return min, nil
	case min == nil && max != nil:
		return max, nil
	case min == nil && max == nil:
		return nil, errkind.New(errkind.Configuration, "harness.resolveRounds",
			fmt.Errorf("must specify at least one constraint"))
	default:
		if *min > *max {
			log.Info("warmup-derived min rounds exceeds max rounds, falling back to max", "min", *min, "max", *max)
			return max, nil
		}
		r := (*min + *max) / 2
		return &r, nil
	}
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// measurementLoop runs rounds until a stop condition fires, evaluated in
// the order from §4.A step 4: max_time_ns wins over everything else, then
// rounds_to_perform, then an unbounded min_time_ns.
func (h *Harness) measurementLoop(ctx context.Context, benchURI string, roundsToPerform, minTimeNs, maxTimeNs *uint64) ([]uint64, error) {
	var results []uint64
	loopStart := monotonicNow()
	var currentRound uint64

	for {
		round, err := h.runOnce(ctx, benchURI)
		if err != nil {
			return nil, err
		}
		results = append(results, round.Duration())
		currentRound++

		elapsed := monotonicNow() - loopStart

		if maxTimeNs != nil && elapsed >= *maxTimeNs {
			return results, nil
		}
		if roundsToPerform != nil && currentRound >= *roundsToPerform {
			return results, nil
		}
		if roundsToPerform == nil && minTimeNs != nil && elapsed >= *minTimeNs {
			return results, nil
		}
	}
}
