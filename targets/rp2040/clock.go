//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerALARM1   = timerBase + 0x14 // Alarm 1 compare, writing arms it
	timerARMED    = timerBase + 0x20 // Write 1 to disarm
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word, no latching
	timerINTR     = timerBase + 0x34 // Raw interrupts, write 1 to clear
	timerINTE     = timerBase + 0x38 // Interrupt enable

	alarmBit = 1 << 1
)

var (
	timerAlarm = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM1)))
	timerArmed = (*volatile.Register32)(unsafe.Pointer(uintptr(timerARMED)))
	timerRAWL  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	timerIntr  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerInte  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
)

var errAlarmBusy = errors.New("timer alarm 1 already armed")

// alarmTimer drives the virtual timer scheduler from TIMER alarm 1.
// The counter runs at 1MHz, so one tick is one microsecond.
type alarmTimer struct {
	armed   bool
	id      int
	handler func(arg uint32)
	arg     uint32
}

var hwTimer alarmTimer

// InitClock hooks the alarm interrupt. Call once before the scheduler's Init.
func InitClock() *alarmTimer {
	timerArmed.Set(alarmBit)
	timerIntr.Set(alarmBit)
	timerInte.SetBits(alarmBit)

	intr := interrupt.New(rp.IRQ_TIMER_IRQ_1, func(interrupt.Interrupt) {
		hwTimer.fire()
	})
	intr.Enable()
	return &hwTimer
}

// Now reads the low 32 bits of the microsecond counter
func (a *alarmTimer) Now() uint32 {
	return timerRAWL.Get()
}

// ArmAbsolute arms the alarm for deadline. Only one arming may be
// outstanding at a time.
func (a *alarmTimer) ArmAbsolute(deadline uint32, handler func(arg uint32), arg uint32) (int, error) {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	if a.armed {
		return -1, errAlarmBusy
	}
	a.id++
	a.armed = true
	a.handler = handler
	a.arg = arg
	timerAlarm.Set(deadline)
	return a.id, nil
}

// Cancel disarms the alarm if id is still the outstanding arming
func (a *alarmTimer) Cancel(id int) {
	state := interrupt.Disable()
	defer interrupt.Restore(state)

	if !a.armed || id != a.id {
		return
	}
	timerArmed.Set(alarmBit)
	timerIntr.Set(alarmBit)
	a.armed = false
}

// fire runs in interrupt context
func (a *alarmTimer) fire() {
	timerIntr.Set(alarmBit)

	state := interrupt.Disable()
	if !a.armed {
		interrupt.Restore(state)
		return
	}
	a.armed = false
	handler, arg := a.handler, a.arg
	interrupt.Restore(state)

	handler(arg)
}
