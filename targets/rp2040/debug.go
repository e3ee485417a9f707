//go:build rp2040

package main

import (
	"machine"
)

var debugUART *machine.UART

// InitDebugUART sets up UART0 on GPIO0 (TX) and GPIO1 (RX) at 115200 baud
func InitDebugUART() bool {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		debugUART = nil
		return false
	}
	return true
}

// DebugPrintln writes a line to the debug UART
func DebugPrintln(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
