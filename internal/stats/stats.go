// Package stats implements the counter surface exposed by the STATS
// command: a mapping from statistic name to a 64-bit counter, where any
// name never explicitly set simply reads as zero so future counters can
// be added without breaking older clients.
package stats

import "sync"

// Known server-level statistic names, mirrored in the STATS reply built
// by the protocol package.
const (
	Connections      = "connections"
	TotalConnections = "total_connections"
	GetRequests      = "get_requests"
	SetRequests      = "set_requests"
	DeleteRequests   = "delete_requests"
	BytesRead        = "bytes_read"
	BytesWritten     = "bytes_written"
	CleanExits       = "clean_exits"
	StartTime        = "start_time"
)

// Known queue-collection statistic names. A Collection keeps its own
// Statistics instance under these names, separate from the server-level
// counters above.
const (
	CurrentBytes = "current_bytes"
	TotalItems   = "total_items"
	GetHits      = "get_hits"
	GetMisses    = "get_misses"
)

// Statistics is a concurrency-safe counter map. The zero value is not
// ready to use; call New.
type Statistics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// New returns an empty counter map; every name reads as zero until set.
func New() *Statistics {
	return &Statistics{counters: make(map[string]int64)}
}

// Get returns the current value of name, or 0 if it has never been set.
func (s *Statistics) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Set assigns name an absolute value, for counters like start_time that
// are recorded once rather than accumulated.
func (s *Statistics) Set(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = value
}

// Add adds delta (which may be negative) to name and returns the new
// value.
func (s *Statistics) Add(name string, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
	return s.counters[name]
}

// Incr is shorthand for Add(name, 1).
func (s *Statistics) Incr(name string) int64 { return s.Add(name, 1) }

// AddCurrentBytes adjusts the current_bytes counter by delta.
func (s *Statistics) AddCurrentBytes(delta int64) int64 { return s.Add(CurrentBytes, delta) }

// IncrTotalItems increments the total_items counter.
func (s *Statistics) IncrTotalItems() int64 { return s.Incr(TotalItems) }

// IncrGetHits increments the get_hits counter.
func (s *Statistics) IncrGetHits() int64 { return s.Incr(GetHits) }

// IncrGetMisses increments the get_misses counter.
func (s *Statistics) IncrGetMisses() int64 { return s.Incr(GetMisses) }

// Snapshot returns a copy of every counter currently set, for STATS
// rendering or diagnostics.
func (s *Statistics) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}
