package usecase

import "sync"

// DefaultSinkCapacity bounds a sink when no capacity is configured.
const DefaultSinkCapacity = 1000

// Sink is an append-only, capacity-bounded sequence of text records. Once
// the capacity is exceeded the oldest entries are evicted. Appends and
// reads are safe for concurrent use: the session event loop writes while
// the console reads.
type Sink struct {
	mu    sync.Mutex
	buf   []string
	head  int // index of the oldest entry
	count int
}

// NewSink creates a sink holding at most capacity entries. Non-positive
// capacities fall back to DefaultSinkCapacity.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultSinkCapacity
	}
	return &Sink{buf: make([]string, capacity)}
}

// Append adds one record, evicting the oldest when full. O(1).
func (s *Sink) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := (s.head + s.count) % len(s.buf)
	s.buf[tail] = text
	if s.count == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
	} else {
		s.count++
	}
}

// Lines returns a snapshot of the current contents, oldest first.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Len returns the number of records currently held.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Clear resets the sink to empty.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.count = 0
}
