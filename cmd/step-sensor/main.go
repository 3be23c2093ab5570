// Command step-sensor counts steps and floors from a motion source or a
// phone pedometer and publishes them to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/step-sensor/internal/haptic"
	"github.com/sweeney/step-sensor/internal/motion"
	"github.com/sweeney/step-sensor/internal/mqtt"
	"github.com/sweeney/step-sensor/internal/pedometer"
	"github.com/sweeney/step-sensor/internal/settings"
	"github.com/sweeney/step-sensor/internal/sink"
	"github.com/sweeney/step-sensor/internal/status"
	"github.com/sweeney/step-sensor/internal/tracker"
	"github.com/sweeney/step-sensor/internal/web"
)

type config struct {
	source          string
	sampleInterval  time.Duration
	sampleTopic     string
	broker          string
	clientID        string
	heartbeat       time.Duration
	httpAddr        string
	settingsPath    string
	hapticPin       int
	pedometerTopic  string
	preferPedometer bool
	serialPort      string
	serialBaud      int
	imuSPI          string
	imuCS           string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.source, "source", "imu", "Motion sample source: imu, serial, mqtt or none")
	flag.DurationVar(&cfg.sampleInterval, "sample-interval", 100*time.Millisecond, "IMU sampling interval")
	flag.StringVar(&cfg.sampleTopic, "sample-topic", motion.DefaultSampleTopic, "MQTT topic carrying motion samples (-source mqtt)")
	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&cfg.clientID, "client-id", "step-sensor", "MQTT client ID")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.settingsPath, "settings", "/var/lib/step-sensor/settings.conf", "Settings file (empty keeps settings in memory)")
	flag.IntVar(&cfg.hapticPin, "haptic-pin", haptic.DefaultPin, "BCM pin for the vibration motor (-1 to disable)")
	flag.StringVar(&cfg.pedometerTopic, "pedometer-topic", pedometer.DefaultTopic, "MQTT topic carrying pedometer totals (empty to disable)")
	flag.BoolVar(&cfg.preferPedometer, "prefer-pedometer", false, "Use the pedometer service when it is available")
	flag.StringVar(&cfg.serialPort, "serial-port", "", "Serial port for -source serial")
	flag.IntVar(&cfg.serialBaud, "serial-baud", motion.DefaultSerialBaud, "Serial baud rate")
	flag.StringVar(&cfg.imuSPI, "imu-spi", motion.DefaultIMUDevice, "SPI device of the MPU9250")
	flag.StringVar(&cfg.imuCS, "imu-cs", motion.DefaultIMUCSPin, "Chip select pin of the MPU9250")
	printSettings := flag.Bool("print-settings", false, "Print current settings and exit")

	flag.Parse()

	if *printSettings {
		s, err := settings.Load(cfg.settingsPath)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(settings.Format(s))
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config) error {
	var store *settings.Store
	if cfg.settingsPath == "" {
		store = settings.NewMemoryStore(settings.Defaults())
	} else {
		var err error
		store, err = settings.Open(cfg.settingsPath)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
	}

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.broker, cfg.clientID)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	st := status.NewTracker(time.Now(), status.Config{
		SampleMs:        cfg.sampleInterval.Milliseconds(),
		HeartbeatMs:     cfg.heartbeat.Milliseconds(),
		Broker:          cfg.broker,
		HTTPAddr:        cfg.httpAddr,
		Source:          cfg.source,
		PreferPedometer: cfg.preferPedometer,
	})
	goal := func() int { return store.Get().StepGoal }

	// Listeners doing I/O get their own queue, closed after the tracker stops.
	listeners := []tracker.Listener{st.Notify}

	progress := sink.NewAsync("progress", 64, sink.Progress(publisher, goal))
	defer progress.Close()
	listeners = append(listeners, progress.Notify)

	if cfg.hapticPin >= 0 {
		act, err := haptic.NewGPIOActuator(cfg.hapticPin)
		if err != nil {
			log.Printf("haptic: %v (feedback disabled)", err)
		} else {
			defer act.Close()
			pulses := sink.NewAsync("haptic", 16, sink.Haptics(act))
			defer pulses.Close()
			listeners = append(listeners, pulses.Notify)
		}
	}

	var hub *web.Hub
	if cfg.httpAddr != "" {
		hub = web.NewHub()
		listeners = append(listeners, hub.Notify)
	}

	src, err := newMotionSource(cfg, publisher)
	if err != nil {
		return err
	}
	var ped pedometer.Service
	if cfg.pedometerTopic != "" {
		ped = pedometer.NewMQTTService(publisher, cfg.pedometerTopic)
	}

	sess := tracker.New(tracker.Config{PreferPedometer: cfg.preferPedometer}, store, src, ped)
	for _, l := range listeners {
		sess.Subscribe(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-runDone; err != nil {
			log.Printf("tracker: %v", err)
		}
	}()

	kind, err := sess.Start()
	if err != nil {
		return fmt.Errorf("start tracking: %w", err)
	}
	log.Printf("tracking started: source=%s", kind)
	refresh(sess, st, publisher, goal)

	// Publish startup event with full status snapshot
	snap := st.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, st, sess, hub)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: source=%s broker=%s heartbeat=%v prefer-pedometer=%t", cfg.source, cfg.broker, cfg.heartbeat, cfg.preferPedometer)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if cfg.heartbeat > 0 {
		hb := time.NewTicker(cfg.heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sess, publisher, publisher, st, goal, time.Now, ticker.C, heartbeat, sigCh)
}

// newMotionSource builds the source named by -source. "none" yields a nil source.
func newMotionSource(cfg config, conn mqtt.Conn) (motion.Source, error) {
	switch cfg.source {
	case "imu":
		return motion.NewIMUSource(cfg.imuSPI, cfg.imuCS, cfg.sampleInterval), nil
	case "serial":
		if cfg.serialPort == "" {
			return nil, fmt.Errorf("-source serial requires -serial-port")
		}
		return motion.NewSerialSource(cfg.serialPort, cfg.serialBaud), nil
	case "mqtt":
		return motion.NewMQTTSource(conn, cfg.sampleTopic), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sample source %q", cfg.source)
	}
}

// snapshotter is the part of the tracker read by the run loop.
type snapshotter interface {
	Snapshot() (tracker.Snapshot, error)
}

// refresh copies the session state into the status tracker.
func refresh(sess snapshotter, st *status.Tracker, mqttStatus mqtt.ConnectionStatus, goal func() int) {
	snap, err := sess.Snapshot()
	if err != nil {
		log.Printf("status refresh: %v", err)
	} else {
		st.Update(snap)
	}
	st.SetStepGoal(goal())
	if mqttStatus != nil {
		st.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func runLoop(sess snapshotter, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, st *status.Tracker, goal func() int, now func() time.Time, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			refresh(sess, st, mqttStatus, goal)
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(st.Snapshot(), "SHUTDOWN", reason),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-heartbeat:
			refresh(sess, st, mqttStatus, goal)
			snap := st.Snapshot()
			log.Printf("heartbeat: uptime=%v tracking=%t source=%s steps=%d floors=%d",
				snap.Uptime().Truncate(time.Second), snap.Tracking, snap.Source, snap.Counts.Steps, snap.Counts.Floors)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}

		case <-tick:
			// Keep the HTTP view current
			refresh(sess, st, mqttStatus, goal)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
