package validator

import "sync"

// RejectionSink receives one event per rejected validation, keyed by
// reason code.
type RejectionSink interface {
	Rejected(reason string)
}

// AcceptanceSink is an optional capability: sinks that also want an
// event per accepted validation implement it alongside RejectionSink.
type AcceptanceSink interface {
	Accepted()
}

type NopSink struct{}

func (NopSink) Rejected(string) {}

// MaxCounterSize caps the in-memory counter map. On overflow the whole
// map is reset rather than evicted: this is a diagnostic aid, not an
// audit trail, and a bounded reset keeps memory flat.
const MaxCounterSize = 10000

// CounterSink is a mutex-guarded per-process rejection counter. It is
// not shared across processes; multi-process deployments should layer a
// metrics-backed sink instead.
type CounterSink struct {
	mu       sync.Mutex
	counters map[string]int
	accepted int
}

func NewCounterSink() *CounterSink {
	return &CounterSink{counters: make(map[string]int)}
}

func (s *CounterSink) Rejected(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.counters) >= MaxCounterSize {
		s.counters = make(map[string]int)
	}
	s.counters[reason]++
}

func (s *CounterSink) Accepted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
}

// AcceptedCount returns how many validations passed since the last Reset.
func (s *CounterSink) AcceptedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Snapshot returns a copy of the current counters.
func (s *CounterSink) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

func (s *CounterSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int)
	s.accepted = 0
}

// MultiSink fans one rejection out to several sinks, e.g. the local
// counter plus the Prometheus collector.
type MultiSink []RejectionSink

func (m MultiSink) Rejected(reason string) {
	for _, s := range m {
		s.Rejected(reason)
	}
}

func (m MultiSink) Accepted() {
	for _, s := range m {
		if a, ok := s.(AcceptanceSink); ok {
			a.Accepted()
		}
	}
}
