package settings

import (
	"fmt"
	"sync"
)

// Observer is called with the new settings after every Update.
type Observer func(Settings)

// Store holds the current settings behind an RWMutex and notifies observers on change.
// A Store with an empty path keeps settings in memory only.
type Store struct {
	mu        sync.RWMutex
	path      string
	current   Settings
	observers []Observer
}

// Open loads the settings file at path (defaults if missing) into a Store.
func Open(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, current: s}, nil
}

// NewMemoryStore creates a Store that never touches disk.
func NewMemoryStore(s Settings) *Store {
	return &Store{current: s}
}

// Get returns a copy of the current settings.
func (st *Store) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Observe registers o. Observers run synchronously on the goroutine calling Update.
func (st *Store) Observe(o Observer) {
	st.mu.Lock()
	st.observers = append(st.observers, o)
	st.mu.Unlock()
}

// Update applies fn, persists the result and notifies observers.
// Nothing changes if persisting fails.
func (st *Store) Update(fn func(*Settings)) error {
	st.mu.Lock()
	next := st.current
	fn(&next)
	if err := st.persist(next); err != nil {
		st.mu.Unlock()
		return err
	}
	st.current = next
	observers := append([]Observer(nil), st.observers...)
	st.mu.Unlock()

	for _, o := range observers {
		o(next)
	}
	return nil
}

// SaveCalibrationFactor persists a factor learned by the engine.
// Observers are not notified: the engine already holds the value.
func (st *Store) SaveCalibrationFactor(f float64) error {
	if f <= 0 {
		return fmt.Errorf("calibration factor must be positive, got %v", f)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.current
	next.CalibrationFactor = f
	if err := st.persist(next); err != nil {
		return err
	}
	st.current = next
	return nil
}

func (st *Store) persist(s Settings) error {
	if st.path == "" {
		return nil
	}
	if err := Save(st.path, s); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
