// Package tracker owns a tracking session: it selects the sample source,
// feeds the detection engine and notifies listeners of the results.
//
// All state lives on a single goroutine started by Run. Public methods
// submit work to that goroutine and wait for it to finish, so a command
// observes every sample delivered before it and none after.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/step-sensor/internal/logic"
	"github.com/sweeney/step-sensor/internal/motion"
	"github.com/sweeney/step-sensor/internal/pedometer"
	"github.com/sweeney/step-sensor/internal/settings"
)

// ErrNotRunning is returned by commands issued after Run has exited.
var ErrNotRunning = errors.New("tracker: not running")

// SourceKind identifies where the counts of a session come from.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceMotion
	SourcePedometer
)

func (k SourceKind) String() string {
	switch k {
	case SourceMotion:
		return "motion"
	case SourcePedometer:
		return "pedometer"
	default:
		return "none"
	}
}

// Kind is the type of a notification.
type Kind string

const (
	KindStep   Kind = "STEP"
	KindFloor  Kind = "FLOOR"
	KindCounts Kind = "COUNTS" // totals changed without a detected event
)

// Notification is delivered to listeners after the counters are committed.
type Notification struct {
	Time      time.Time
	Kind      Kind
	Increment uint64
	Counts    logic.Counts
	Source    SourceKind
}

// Listener receives notifications on the tracker goroutine and must not block.
type Listener func(Notification)

// Config holds tracker options.
type Config struct {
	// PreferPedometer selects the pedometer service at Start when it is available.
	PreferPedometer bool

	// Now supplies timestamps for notifications not tied to a sample.
	Now func() time.Time
}

// Snapshot is a point-in-time view of the tracker.
type Snapshot struct {
	Tracking      bool
	Calibrating   bool
	Source        SourceKind
	Calibration   logic.Calibration
	FloorTracking bool
	Counts        logic.Counts
	LastStep      time.Time
	LastFloor     time.Time
}

// Tracker is the session state machine (Idle -> Tracking -> Idle).
type Tracker struct {
	cfg       Config
	store     *settings.Store
	motion    motion.Source
	pedometer pedometer.Service

	cmds chan func()
	done chan struct{}
	once sync.Once

	// Wakes the tracker goroutine to reread the store.
	settingsSignal chan struct{}

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int

	// Owned by the tracker goroutine.
	engine      *logic.Engine
	tracking    bool
	calibrating bool
	source      SourceKind
	samples     <-chan logic.Sample
	updates     <-chan pedometer.Update
	pedBase     logic.Counts
	pedLast     logic.Counts
}

// New creates a tracker. Either src or ped may be nil.
// Floor tracking is read from the store once, here.
func New(cfg Config, store *settings.Store, src motion.Source, ped pedometer.Service) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := store.Get()

	t := &Tracker{
		cfg:            cfg,
		store:          store,
		motion:         src,
		pedometer:      ped,
		cmds:           make(chan func()),
		done:           make(chan struct{}),
		settingsSignal: make(chan struct{}, 1),
		listeners:      make(map[int]Listener),
		engine:         logic.NewEngine(logic.NewCalibration(s.Sensitivity, s.CalibrationFactor), s.FloorTracking),
	}
	store.Observe(t.onSettings)
	return t
}

// Run processes commands, samples and pedometer updates until ctx is done.
// The active source is stopped before Run returns.
func (t *Tracker) Run(ctx context.Context) error {
	first := false
	t.once.Do(func() { first = true })
	if !first {
		return errors.New("tracker: already running")
	}
	defer close(t.done)

	for {
		select {
		case <-ctx.Done():
			t.stop()
			return nil
		case fn := <-t.cmds:
			fn()
		case <-t.settingsSignal:
			t.applySettings()
		case s := <-t.samples:
			t.handleSample(s)
		case u := <-t.updates:
			t.handleUpdate(u)
		}
	}
}

// do runs fn on the tracker goroutine and waits for it.
func (t *Tracker) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case t.cmds <- func() { fn(); close(finished) }:
	case <-t.done:
		return ErrNotRunning
	}
	<-finished
	return nil
}

// Subscribe registers l and returns a function that removes it.
func (t *Tracker) Subscribe(l Listener) (cancel func()) {
	t.listenerMu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.listenerMu.Unlock()

	return func() {
		t.listenerMu.Lock()
		delete(t.listeners, id)
		t.listenerMu.Unlock()
	}
}

func (t *Tracker) notify(n Notification) {
	t.listenerMu.Lock()
	ls := make([]Listener, 0, len(t.listeners))
	for id := 0; id < t.nextID; id++ {
		if l, ok := t.listeners[id]; ok {
			ls = append(ls, l)
		}
	}
	t.listenerMu.Unlock()

	for _, l := range ls {
		l(n)
	}
}

func (t *Tracker) notifyCounts() {
	t.notify(Notification{
		Time:   t.cfg.Now(),
		Kind:   KindCounts,
		Counts: t.engine.Counts(),
		Source: t.source,
	})
}

// Start begins a new session: counters and detection state are cleared and
// one source is chosen for the whole session. Starting while already
// tracking restarts the session.
func (t *Tracker) Start() (SourceKind, error) {
	var kind SourceKind
	err := t.do(func() {
		if t.tracking {
			t.stopSource()
		}
		t.engine.Reset()
		t.calibrating = false
		t.pedBase = logic.Counts{}
		t.pedLast = logic.Counts{}
		t.source = t.selectSource()
		t.tracking = true
		kind = t.source
		t.notifyCounts()
	})
	return kind, err
}

func (t *Tracker) selectSource() SourceKind {
	if t.cfg.PreferPedometer && t.pedometer != nil && t.pedometer.Available() {
		ch, err := t.pedometer.Start()
		if err == nil {
			t.updates = ch
			log.Printf("tracker: started, counting from pedometer service")
			return SourcePedometer
		}
		log.Printf("tracker: pedometer start failed, falling back to motion: %v", err)
	}

	if t.motion != nil && t.motion.Available() {
		ch, err := t.motion.Start()
		if err == nil {
			t.samples = ch
			log.Printf("tracker: started, detecting from motion samples")
			return SourceMotion
		}
		log.Printf("tracker: motion source start failed: %v", err)
	}

	log.Printf("tracker: started with no sample source available, counts will not change")
	return SourceNone
}

// Stop ends the session. No notification is delivered after Stop returns.
// Stopping an idle tracker does nothing.
func (t *Tracker) Stop() error {
	return t.do(t.stop)
}

func (t *Tracker) stop() {
	if !t.tracking {
		return
	}
	t.stopSource()
	t.tracking = false
	t.calibrating = false
	log.Printf("tracker: stopped at %d steps, %d floors", t.engine.Counts().Steps, t.engine.Counts().Floors)
}

func (t *Tracker) stopSource() {
	switch t.source {
	case SourceMotion:
		if err := t.motion.Stop(); err != nil {
			log.Printf("tracker: motion source stop: %v", err)
		}
	case SourcePedometer:
		if err := t.pedometer.Stop(); err != nil {
			log.Printf("tracker: pedometer stop: %v", err)
		}
	}
	t.samples = nil
	t.updates = nil
	t.source = SourceNone
}

func (t *Tracker) handleSample(s logic.Sample) {
	if !t.tracking {
		return
	}
	for _, e := range t.engine.Process(s) {
		t.notify(Notification{
			Time:      e.Timestamp,
			Kind:      Kind(e.Type),
			Increment: e.Increment,
			Counts:    e.Counts,
			Source:    SourceMotion,
		})
	}
}

// handleUpdate converts cumulative pedometer totals into session counts,
// subtracting the baseline taken at the last reset.
func (t *Tracker) handleUpdate(u pedometer.Update) {
	if !t.tracking {
		return
	}
	raw := logic.Counts{Steps: u.Steps, Floors: u.Floors}
	if raw.Steps < t.pedBase.Steps {
		t.pedBase.Steps = 0
	}
	if raw.Floors < t.pedBase.Floors {
		t.pedBase.Floors = 0
	}
	t.pedLast = raw

	next := logic.Counts{
		Steps:  raw.Steps - t.pedBase.Steps,
		Floors: raw.Floors - t.pedBase.Floors,
	}
	if next == t.engine.Counts() {
		return
	}
	t.engine.SetCounts(next)
	t.notify(Notification{
		Time:   u.Time,
		Kind:   KindCounts,
		Counts: next,
		Source: SourcePedometer,
	})
}

// ResetSteps zeroes the step counter only.
func (t *Tracker) ResetSteps() error {
	return t.do(func() {
		t.engine.ResetSteps()
		t.pedBase.Steps = t.pedLast.Steps
		t.notifyCounts()
	})
}

// ResetFloors zeroes the floor counter only.
func (t *Tracker) ResetFloors() error {
	return t.do(func() {
		t.engine.ResetFloors()
		t.pedBase.Floors = t.pedLast.Floors
		t.notifyCounts()
	})
}

// StartCalibration zeroes the step counter and the detector history ahead
// of a walk of known length.
func (t *Tracker) StartCalibration() error {
	return t.do(func() {
		t.engine.StartCalibration()
		t.pedBase.Steps = t.pedLast.Steps
		t.calibrating = true
		log.Printf("tracker: calibration walk started")
		t.notifyCounts()
	})
}

// CalibrateWithKnown sets the factor from a user-counted step total and
// persists it. It reports false, changing nothing, when knownSteps is not
// positive, when no steps were counted, or when the pedometer is the source.
func (t *Tracker) CalibrateWithKnown(knownSteps int64) (bool, error) {
	var (
		applied bool
		saveErr error
	)
	err := t.do(func() { applied, saveErr = t.calibrate(knownSteps) })
	if err != nil {
		return false, err
	}
	return applied, saveErr
}

func (t *Tracker) calibrate(knownSteps int64) (bool, error) {
	if t.source == SourcePedometer {
		log.Printf("tracker: calibration ignored, pedometer counts are authoritative")
		return false, nil
	}
	before := t.engine.Counts().Steps
	factor, ok := t.engine.CalibrateWithKnown(knownSteps)
	if !ok {
		return false, nil
	}
	t.calibrating = false
	log.Printf("tracker: calibrated %d detected steps to %d, factor %.3f", before, knownSteps, factor)
	var err error
	if serr := t.store.SaveCalibrationFactor(factor); serr != nil {
		err = fmt.Errorf("save calibration: %w", serr)
	}
	t.notifyCounts()
	return true, err
}

// ApplyPreset switches sensitivity and persists the choice.
func (t *Tracker) ApplyPreset(s logic.Sensitivity) error {
	if _, err := logic.ParseSensitivity(string(s)); err != nil {
		return err
	}
	var saveErr error
	err := t.do(func() {
		t.engine.ApplyPreset(s)
		saveErr = t.store.Update(func(st *settings.Settings) { st.Sensitivity = s })
	})
	if err != nil {
		return err
	}
	return saveErr
}

// SetSensitivityDirect overrides the step threshold and minimum step interval.
// The override is not persisted; the next preset change replaces it.
func (t *Tracker) SetSensitivityDirect(threshold float64, minInterval time.Duration) error {
	if !logic.ValidThreshold(threshold) {
		return fmt.Errorf("step threshold must be positive and finite, got %v", threshold)
	}
	if minInterval < 0 {
		return fmt.Errorf("step interval must not be negative, got %v", minInterval)
	}
	return t.do(func() { t.engine.SetSensitivityDirect(threshold, minInterval) })
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := t.do(func() {
		snap = Snapshot{
			Tracking:      t.tracking,
			Calibrating:   t.calibrating,
			Source:        t.source,
			Calibration:   t.engine.Calibration(),
			FloorTracking: t.engine.FloorTracking(),
			Counts:        t.engine.Counts(),
			LastStep:      t.engine.LastStep(),
			LastFloor:     t.engine.LastFloor(),
		}
	})
	return snap, err
}

// onSettings runs on whichever goroutine updated the store, possibly the
// tracker's own. It only wakes the tracker; applySettings rereads the store.
func (t *Tracker) onSettings(settings.Settings) {
	select {
	case t.settingsSignal <- struct{}{}:
	default:
	}
}

func (t *Tracker) applySettings() {
	s := t.store.Get()
	cal := t.engine.Calibration()
	if s.Sensitivity != cal.Sensitivity {
		t.engine.ApplyPreset(s.Sensitivity)
		log.Printf("tracker: sensitivity set to %s", s.Sensitivity)
	}
	if s.CalibrationFactor != cal.Factor {
		t.engine.SetFactor(s.CalibrationFactor)
		log.Printf("tracker: calibration factor set to %.3f", s.CalibrationFactor)
	}
	if s.FloorTracking != t.engine.FloorTracking() {
		log.Printf("tracker: floor tracking change to %v takes effect after restart", s.FloorTracking)
	}
}
