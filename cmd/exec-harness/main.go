// Command exec-harness is the wall-time harness wrapper binary: it runs
// an arbitrary command under warmup/round/time constraints and prints
// each round's wall-clock duration, one nanosecond count per line, to
// stdout. It is the process the wall-time executor pipelines a
// benchmark command through.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/sarchlab/codspeed-runner/durationfmt"
	"github.com/sarchlab/codspeed-runner/errkind"
	"github.com/sarchlab/codspeed-runner/harness"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("exec-harness", pflag.ContinueOnError)
	warmupTime := flags.String("warmup-time", "1s", "warmup time budget; 0 disables warmup")
	maxTime := flags.String("max-time", "", "maximum time budget; defaults to 3s if no other constraint is set")
	minTime := flags.String("min-time", "", "minimum time budget; must be <= max-time")
	maxRounds := flags.Uint64("max-rounds", 0, "maximum round count")
	minRounds := flags.Uint64("min-rounds", 0, "minimum round count; must be <= max-rounds")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	argv := flags.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "exec-harness: no command given")
		return 2
	}

	opts, err := buildOptions(flags, *warmupTime, *maxTime, *minTime, *maxRounds, *minRounds)
	if err != nil {
		fmt.Fprintln(os.Stderr, "exec-harness:", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory := func(ctx context.Context) *exec.Cmd {
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		return cmd
	}

	h := harness.New(factory, logr.Discard())
	durations, err := h.RunRounds(ctx, argv[0], opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "exec-harness:", err)
		if errkind.Is(err, errkind.Configuration) {
			return 2
		}
		return 1
	}

	for _, d := range durations {
		fmt.Println(d)
	}
	return 0
}

// buildOptions parses the duration/round flags and assembles a
// harness.Options, applying the max-time default described in the CLI
// flag table only when the flag was left unset and no other constraint
// was given.
func buildOptions(flags *pflag.FlagSet, warmupTime, maxTime, minTime string, maxRounds, minRounds uint64) (harness.Options, error) {
	warmup, err := durationfmt.Parse(warmupTime)
	if err != nil {
		return harness.Options{}, err
	}

	var min, max *harness.Bound

	var minTimeNs, maxTimeNs *uint64
	if minTime != "" {
		d, err := durationfmt.Parse(minTime)
		if err != nil {
			return harness.Options{}, err
		}
		n := uint64(d.Nanoseconds())
		minTimeNs = &n
	}
	if maxTime != "" {
		d, err := durationfmt.Parse(maxTime)
		if err != nil {
			return harness.Options{}, err
		}
		n := uint64(d.Nanoseconds())
		maxTimeNs = &n
	}

	var minRoundsPtr, maxRoundsPtr *uint64
	if flags.Changed("min-rounds") {
		minRoundsPtr = &minRounds
	}
	if flags.Changed("max-rounds") {
		maxRoundsPtr = &maxRounds
	}

	noOtherConstraint := maxTimeNs == nil && minTimeNs == nil && minRoundsPtr == nil && maxRoundsPtr == nil
	if maxTime == "" && noOtherConstraint {
		defaultMaxTimeNs := uint64(3_000_000_000)
		maxTimeNs = &defaultMaxTimeNs
	}

	if minTimeNs != nil || minRoundsPtr != nil {
		min = &harness.Bound{Rounds: minRoundsPtr, TimeNs: minTimeNs}
	}
	if maxTimeNs != nil || maxRoundsPtr != nil {
		max = &harness.Bound{Rounds: maxRoundsPtr, TimeNs: maxTimeNs}
	}

	return harness.NewOptions(uint64(warmup.Nanoseconds()), min, max)
}
