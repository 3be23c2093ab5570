package motion

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/sweeney/step-sensor/internal/logic"
)

// Default wiring for an MPU9250 on a Raspberry Pi SPI0 header.
const (
	DefaultIMUDevice = "/dev/spidev0.0"
	DefaultIMUCSPin  = "8"
)

// accelLSBPerG is the raw count for 1 g at the power-on ±2 g full scale.
const accelLSBPerG = 16384.0

// axisReader is the subset of the MPU9250 driver used for sampling.
type axisReader interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
}

// IMUSource polls an MPU9250 accelerometer at a fixed interval.
type IMUSource struct {
	device   string
	csPin    string
	interval time.Duration
	now      func() time.Time

	initOnce sync.Once
	imu      axisReader
	initErr  error

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewIMUSource creates a source for the MPU9250 at device with chip select csPin.
// The device is opened lazily on the first call to Available or Start.
func NewIMUSource(device, csPin string, interval time.Duration) *IMUSource {
	return &IMUSource{
		device:   device,
		csPin:    csPin,
		interval: interval,
		now:      time.Now,
	}
}

func (s *IMUSource) init() error {
	s.initOnce.Do(func() {
		if s.imu != nil {
			return
		}
		imu, err := openMPU9250(s.device, s.csPin)
		if err != nil {
			log.Printf("imu: unavailable: %v", err)
			s.initErr = err
			return
		}
		s.imu = imu
	})
	return s.initErr
}

func openMPU9250(device, csPin string) (*mpu9250.MPU9250, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(device, cs)
	if err != nil {
		return nil, fmt.Errorf("SPI transport (%s): %w", device, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("device creation: %w", err)
	}
	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("initialization: %w", err)
	}
	if err := imu.Calibrate(); err != nil {
		log.Printf("imu: calibration failed: %v", err)
	}
	log.Printf("imu: MPU9250 ready on %s (cs %s)", device, csPin)
	return imu, nil
}

// Available reports whether the IMU initialized successfully.
func (s *IMUSource) Available() bool {
	return s.init() == nil
}

// Start begins polling in a background goroutine.
func (s *IMUSource) Start() (<-chan logic.Sample, error) {
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("imu: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil, errors.New("imu: already started")
	}

	ch := make(chan logic.Sample, DefaultBuffer)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.poll(ch, s.stop, s.done)
	return ch, nil
}

func (s *IMUSource) poll(ch chan<- logic.Sample, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v, err := readAccel(s.imu)
			if err != nil {
				if !failing {
					log.Printf("imu: read error: %v", err)
					failing = true
				}
				continue
			}
			if failing {
				log.Printf("imu: reads recovered")
				failing = false
			}
			select {
			case ch <- logic.Sample{Time: s.now(), Accel: v}:
			default:
			}
		}
	}
}

// Stop halts polling and waits for the goroutine to exit.
func (s *IMUSource) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// readAccel returns one acceleration reading in g.
func readAccel(r axisReader) (logic.Vector, error) {
	x, err := r.GetAccelerationX()
	if err != nil {
		return logic.Vector{}, fmt.Errorf("accel X: %w", err)
	}
	y, err := r.GetAccelerationY()
	if err != nil {
		return logic.Vector{}, fmt.Errorf("accel Y: %w", err)
	}
	z, err := r.GetAccelerationZ()
	if err != nil {
		return logic.Vector{}, fmt.Errorf("accel Z: %w", err)
	}
	return logic.Vector{
		X: float64(x) / accelLSBPerG,
		Y: float64(y) / accelLSBPerG,
		Z: float64(z) / accelLSBPerG,
	}, nil
}
