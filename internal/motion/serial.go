package motion

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/step-sensor/internal/logic"
)

// DefaultSerialBaud is the baud rate used by common accelerometer bridges.
const DefaultSerialBaud = 115200

// ParseLine decodes one CSV line from a serial bridge.
// Three fields are raw acceleration in g. Six fields add acceleration with
// gravity removed, which is preferred.
func ParseLine(line string, now time.Time) (logic.Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 && len(fields) != 6 {
		return logic.Sample{}, fmt.Errorf("expected 3 or 6 fields, got %d", len(fields))
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return logic.Sample{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	s := logic.Sample{Time: now}
	if len(vals) == 6 {
		s.Accel = logic.Vector{X: vals[3], Y: vals[4], Z: vals[5]}
		s.GravityRemoved = true
	} else {
		s.Accel = logic.Vector{X: vals[0], Y: vals[1], Z: vals[2]}
	}
	return s, nil
}

// SerialSource reads CSV samples from a serial port.
type SerialSource struct {
	path string
	baud int
	now  func() time.Time

	// open is replaceable for tests.
	open func(path string, baud int) (io.ReadCloser, error)

	mu   sync.Mutex
	port io.ReadCloser
	done chan struct{}
}

// NewSerialSource creates a source reading the port at path.
func NewSerialSource(path string, baud int) *SerialSource {
	return &SerialSource{
		path: path,
		baud: baud,
		now:  time.Now,
		open: openSerial,
	}
}

func openSerial(path string, baud int) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}

// Available reports whether the configured port is present on the system.
func (s *SerialSource) Available() bool {
	if s.path == "" {
		return false
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Printf("serial: list ports: %v", err)
		return false
	}
	for _, p := range ports {
		if p == s.path {
			return true
		}
	}
	return false
}

// Start opens the port and begins reading lines.
func (s *SerialSource) Start() (<-chan logic.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil, errors.New("serial: already started")
	}

	port, err := s.open(s.path, s.baud)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", s.path, err)
	}
	log.Printf("serial: reading samples from %s at %d baud", s.path, s.baud)

	ch := make(chan logic.Sample, DefaultBuffer)
	s.port = port
	s.done = make(chan struct{})
	go s.read(port, ch, s.done)
	return ch, nil
}

func (s *SerialSource) read(r io.Reader, ch chan<- logic.Sample, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	bad := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample, err := ParseLine(line, s.now())
		if err != nil {
			if bad == 0 {
				log.Printf("serial: bad line %q: %v", line, err)
			}
			bad++
			continue
		}
		select {
		case ch <- sample:
		default:
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("serial: read stopped: %v", err)
	}
	if bad > 1 {
		log.Printf("serial: %d unparseable lines skipped", bad)
	}
}

// Stop closes the port and waits for the reader to exit.
func (s *SerialSource) Stop() error {
	s.mu.Lock()
	port, done := s.port, s.done
	s.port, s.done = nil, nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	<-done
	if err != nil {
		return fmt.Errorf("serial: close: %w", err)
	}
	return nil
}
