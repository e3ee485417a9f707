//go:build rp2040

package main

import (
	"machine"
	"time"

	"vtimer/core"
	"vtimer/timex"
)

const (
	blinkInterval = 250000 // ticks (microseconds)
	dumpInterval  = 5 * time.Second
)

var (
	sched    *core.Scheduler
	led      = machine.LED
	blink    core.Timer
	ledOn    bool
	blinkErr uint32
)

func toggleLED(t *core.Timer) {
	ledOn = !ledOn
	led.Set(ledOn)

	// Rearming from inside the action only queues the timer; the
	// dispatcher arms the hardware once the action returns.
	if err := sched.SetCB(t, timex.Set(0, blinkInterval), toggleLED); err != nil {
		blinkErr++
	}
}

func main() {
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	if InitDebugUART() {
		core.SetDebugWriter(DebugPrintln)
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	// The RP2040 counter runs at 1MHz, so keep the default constants:
	// one virtual second is one million ticks.
	var err error
	sched, err = core.New(InitClock(), nil, core.DefaultConfig())
	if err != nil {
		DebugPrintln("vtimer: " + err.Error())
		return
	}
	if err := sched.Init(); err != nil {
		DebugPrintln("vtimer: " + err.Error())
		return
	}

	if err := sched.SetCB(&blink, timex.Set(0, blinkInterval), toggleLED); err != nil {
		DebugPrintln("vtimer: " + err.Error())
	}

	for {
		time.Sleep(dumpInterval)
		if core.IsDebugEnabled() {
			sched.DumpTrace()
		}
		if blinkErr > 0 {
			DebugPrintln("vtimer: blink rearm failures")
		}
	}
}
