package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"vtimer/core"
	"vtimer/host/logging"
	"vtimer/host/scenario"
	"vtimer/host/simrun"
)

var (
	scenarioPath = flag.String("scenario", "", "Scenario YAML file")
	verbose      = flag.Bool("verbose", false, "Enable verbose output")
	trace        = flag.Bool("trace", false, "Print the scheduler trace ring after the run")
)

func main() {
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -scenario is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(os.Stderr, *verbose)
	core.SetDebugWriter(logging.DebugWriter(log))
	core.SetDebugEnabled(*verbose)

	sc, err := scenario.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().
		Str("scenario", sc.Name).
		Uint32("epoch_seconds", sc.Config.EpochSeconds).
		Uint32("nanos_per_second", sc.Config.NanosPerSecond).
		Int("timers", len(sc.Timers)).
		Int("sleepers", len(sc.Sleepers)).
		Msg("running scenario")

	res, err := simrun.Run(ctx, sc, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-12s %10s %10s %12s\n", "NAME", "CLOCK", "SECONDS", "NANOSECONDS")
	for _, f := range res.Firings {
		fmt.Printf("%-12s %10d %10d %12d\n", f.Name, f.Clock, f.Now.Seconds, f.Now.Nanoseconds)
	}
	fmt.Printf("\nend=%d.%d arms=%d fired=%d ticks=%d promotions=%d backoffs=%d stale=%d\n",
		res.End.Seconds, res.End.Nanoseconds,
		res.Stats.Arms, res.Stats.Fired, res.Stats.Ticks, res.Stats.Promotions,
		res.Stats.Backoffs, res.Stats.Stale)

	if *trace {
		fmt.Println()
		for _, evt := range res.Trace {
			fmt.Println(core.FormatTrace(evt))
		}
	}
}
