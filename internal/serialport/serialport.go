// Package serialport opens the physical transport the dispatcher's wire
// protocol rides on. Grounded in spec §4.10's expansion: a thin
// io.ReadWriter adapter over go.bug.st/serial (see DESIGN.md), since an
// embedded water controller's host-facing link is a serial port, not
// anything the retrieval pack's networked connectors model.
package serialport

import (
	"fmt"
	"io"
	"net"

	"go.bug.st/serial"
)

// DefaultBaud matches the original firmware's UART configuration.
const DefaultBaud = 9600

// Port wraps an open serial.Port as an io.ReadWriteCloser.
type Port struct {
	port serial.Port
}

// Open opens path (e.g. "/dev/ttyUSB0") at baud, 8 data bits, no parity,
// one stop bit — the original firmware's fixed framing.
func Open(path string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}
	return &Port{port: p}, nil
}

func (p *Port) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *Port) Close() error                { return p.port.Close() }

// Loopback returns a connected in-process io.ReadWriter pair for tests
// that don't need a real device. cmd/cisternd's "-port -" mode does not
// use it; that mode reads stdin and writes stdout directly.
func Loopback() (io.ReadWriter, io.ReadWriter) {
	a, b := net.Pipe()
	return a, b
}
