package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"

	"vtimer/host/logging"
	"vtimer/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Log non-trace firmware output too")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	// Trace events are logged at debug level, so always enable it.
	log := logging.New(os.Stdout, true)

	native, err := serial.Open(&serial.Config{Device: *device, Baud: *baud})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Closing the port unblocks the pending read, so both the interrupt
	// handler and the normal exit path close it.
	port := serial.CloseOnce(native)
	defer func() {
		if err := port.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	if err := port.Flush(); err != nil {
		log.Warn().Err(err).Msg("flush failed")
	}
	log.Info().Str("device", *device).Int("baud", *baud).Msg("reading trace stream")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		<-sig
		port.Close()
	}()

	var events int
	err = serial.ReadLines(port, func(l serial.Line) bool {
		switch {
		case l.IsTrace:
			events++
			logging.LogTrace(log, l.Event)
		case *verbose:
			log.Info().Str("line", l.Text).Msg("firmware")
		}
		return true
	})
	if err != nil {
		log.Error().Err(err).Int("events", events).Msg("trace stream ended")
		return 1
	}
	log.Info().Int("events", events).Msg("trace stream closed")
	return 0
}
