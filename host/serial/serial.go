// Package serial reads the scheduler trace stream from a target UART.
package serial

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"vtimer/core"
)

// Port is a byte stream to the target.
// Native ports use github.com/tarm/serial; tests use any io.ReadWriteCloser.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the firmware UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud matches the UART setup in the rp2040 firmware
const DefaultBaud = 115200

// DefaultConfig returns the configuration for a target on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 0,
	}
}

// Line is one line of firmware output. IsTrace is set when the line is a
// scheduler trace event.
type Line struct {
	Text    string
	Event   core.TraceEvent
	IsTrace bool
}

// ReadLines scans r line by line and calls fn for each non-empty line
// until r is exhausted or fn returns false. Carriage returns from the
// firmware's "\r\n" endings are dropped.
func ReadLines(r io.Reader, fn func(Line) bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		line := Line{Text: text}
		line.Event, line.IsTrace = core.ParseTraceLine(text)
		if !fn(line) {
			return nil
		}
	}
	return scanner.Err()
}

// onceClosePort closes the underlying port on the first Close only
type onceClosePort struct {
	Port
	once sync.Once
	err  error
}

// CloseOnce wraps p so that it can be closed from several goroutines,
// e.g. an interrupt handler and the normal exit path. Later calls return
// the first call's error.
func CloseOnce(p Port) Port {
	return &onceClosePort{Port: p}
}

func (p *onceClosePort) Close() error {
	p.once.Do(func() {
		p.err = p.Port.Close()
	})
	return p.err
}
