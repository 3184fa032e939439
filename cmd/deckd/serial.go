package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// ============================================================================
// Serial Link
// ============================================================================
// The serial link owns the OS handle for the deck's serial device and exposes
// a blocking line-read primitive. No other component touches the handle.
//
// Error taxonomy:
//   - connect errors (device absent/busy/denied) are returned from Connect and
//     recovered by the dispatcher's retry loop
//   - ErrReadTimeout from ReadLine is the normal idle condition
//   - any other ReadLine error means the session is lost and must be rebuilt
// ============================================================================

// ErrReadTimeout is returned by ReadLine when no full line arrived within the
// read timeout. It is not a failure; the caller just loops again.
var ErrReadTimeout = errors.New("serial read timeout")

// SerialLink is the connect/read/close lifecycle used by the dispatcher.
// It is an interface so tests can substitute a scripted link.
type SerialLink interface {
	// Connect opens the device. Safe to call again after a lost session.
	Connect() error

	// ReadLine blocks up to the read timeout for a newline-terminated frame
	// and returns it with surrounding whitespace stripped. Undecodable bytes
	// are dropped, not errors. Returns ErrReadTimeout on idle; any other
	// error means the session is lost.
	ReadLine() (string, error)

	// Close tears down the session. Idempotent.
	Close() error
}

// serialPort is the production SerialLink over a real serial device.
type serialPort struct {
	portName    string
	baudRate    int
	readTimeout time.Duration

	port    serial.Port
	pending []byte
	readBuf []byte
}

// NewSerialLink returns an unconnected link for the named device.
func NewSerialLink(portName string, baudRate int, readTimeout time.Duration) SerialLink {
	return &serialPort{
		portName:    portName,
		baudRate:    baudRate,
		readTimeout: readTimeout,
		readBuf:     make([]byte, 256),
	}
}

func (s *serialPort) Connect() error {
	if s.port != nil {
		_ = s.Close()
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
	}
	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.portName, err)
	}

	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set read timeout on %s: %w", s.portName, err)
	}

	s.port = port
	s.pending = s.pending[:0]
	return nil
}

func (s *serialPort) ReadLine() (string, error) {
	if s.port == nil {
		return "", errors.New("serial port not connected")
	}

	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := s.pending[:i]
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			return cleanLine(line), nil
		}

		n, err := s.port.Read(s.readBuf)
		if err != nil {
			// Device unplugged or I/O failure: the session is gone.
			_ = s.Close()
			return "", fmt.Errorf("read %s: %w", s.portName, err)
		}
		if n == 0 {
			// Read timeout expired with no complete frame. Partial bytes
			// stay buffered for the next call.
			return "", ErrReadTimeout
		}

		s.pending = append(s.pending, s.readBuf[:n]...)
	}
}

func (s *serialPort) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = s.pending[:0]
	return err
}

// cleanLine strips invalid UTF-8 bytes (the firmware occasionally garbles a
// byte at connect time) and surrounding whitespace including the CR that
// Arduino-style println leaves before the newline.
func cleanLine(b []byte) string {
	return strings.TrimSpace(string(bytes.ToValidUTF8(b, nil)))
}

// ListSerialPorts enumerates the serial devices visible to the process.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return ports, nil
}
