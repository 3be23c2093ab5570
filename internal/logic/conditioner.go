package logic

import "math"

// History is a bounded FIFO of filtered magnitudes.
// Not safe for concurrent use.
type History struct {
	values   []float64
	capacity int
}

// NewHistory creates an empty history holding at most capacity values.
func NewHistory(capacity int) *History {
	return &History{
		values:   make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value when full.
func (h *History) Push(v float64) {
	if len(h.values) == h.capacity {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.capacity-1]
	}
	h.values = append(h.values, v)
}

// Values returns the history, oldest first. The slice must not be modified.
func (h *History) Values() []float64 {
	return h.values
}

// Len returns the number of stored values.
func (h *History) Len() int {
	return len(h.values)
}

// Full reports whether the history has reached capacity.
func (h *History) Full() bool {
	return len(h.values) == h.capacity
}

// Clear drops all values.
func (h *History) Clear() {
	h.values = h.values[:0]
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v Vector) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Conditioner smooths sample magnitudes and records them in a History.
type Conditioner struct {
	alpha    float64
	filtered float64
	history  *History
}

// NewConditioner creates a conditioner with smoothing weight alpha.
func NewConditioner(alpha float64) *Conditioner {
	return &Conditioner{
		alpha:   alpha,
		history: NewHistory(HistorySize),
	}
}

// Push filters the magnitude of s and appends it to the history.
// Returns the new filtered value.
func (c *Conditioner) Push(s Sample) float64 {
	m := Magnitude(s.Accel)
	c.filtered = c.alpha*m + (1-c.alpha)*c.filtered
	c.history.Push(c.filtered)
	return c.filtered
}

// History returns the magnitude history.
func (c *Conditioner) History() *History {
	return c.history
}

// Reset clears the history and the filter state.
func (c *Conditioner) Reset() {
	c.filtered = 0
	c.history.Clear()
}
