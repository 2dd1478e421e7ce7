// Package usage accumulates per-engine call statistics. The ledger is
// process-local shared state: many router calls mutate it concurrently, so
// each engine's counters are guarded individually rather than behind one
// global lock.
package usage

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of one engine's counters.
type Stats struct {
	// Calls counts every attempt, successful or not
	Calls int64 `json:"calls"`

	// Failures counts attempts that returned an error
	Failures int64 `json:"failures"`

	// CumulativeLatencySeconds sums the wall-clock durations of successful calls
	CumulativeLatencySeconds float64 `json:"cumulative_latency_seconds"`

	// MeteredThisPeriod counts billable operations this accounting period.
	// Only successful premium-extraction attempts increment it.
	MeteredThisPeriod int64 `json:"metered_this_period"`

	// LastError is the most recent attempt error message, empty when the
	// last attempt succeeded
	LastError string `json:"last_error,omitempty"`
}

// SuccessRate returns 1 - failures/max(calls,1)
func (s Stats) SuccessRate() float64 {
	calls := s.Calls
	if calls < 1 {
		calls = 1
	}
	return 1 - float64(s.Failures)/float64(calls)
}

// AvgLatencySeconds returns cumulative latency divided by total calls,
// or 0 when no calls were made.
func (s Stats) AvgLatencySeconds() float64 {
	if s.Calls == 0 {
		return 0
	}
	return s.CumulativeLatencySeconds / float64(s.Calls)
}

// entry holds one engine's counters behind its own lock
type entry struct {
	mu    sync.Mutex
	stats Stats
}

// Ledger accumulates attempt statistics per engine id. Entries are created
// lazily on first attempt. The ledger never evicts and is not persisted;
// its lifetime is the process's.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewLedger creates an empty usage ledger
func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]*entry),
	}
}

// get returns the entry for an engine, creating it when missing
func (l *Ledger) get(engineID string) *entry {
	l.mu.RLock()
	e, ok := l.entries[engineID]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[engineID]; ok {
		return e
	}
	e = &entry{}
	l.entries[engineID] = e
	return e
}

// Record registers one attempt against an engine. Latency is only
// accumulated for successful attempts; metered is only honored for
// successful attempts.
func (l *Ledger) Record(engineID string, success bool, latency time.Duration, metered bool) {
	e := l.get(engineID)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Calls++
	if success {
		e.stats.CumulativeLatencySeconds += latency.Seconds()
		e.stats.LastError = ""
		if metered {
			e.stats.MeteredThisPeriod++
		}
	} else {
		e.stats.Failures++
	}
}

// RecordError registers a failed attempt and retains the error message for
// diagnosability.
func (l *Ledger) RecordError(engineID string, err error) {
	e := l.get(engineID)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Calls++
	e.stats.Failures++
	if err != nil {
		e.stats.LastError = err.Error()
	}
}

// Snapshot returns a copy of one engine's stats. The second return value is
// false when the engine has never been attempted.
func (l *Ledger) Snapshot(engineID string) (Stats, bool) {
	l.mu.RLock()
	e, ok := l.entries[engineID]
	l.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, true
}

// MeteredThisPeriod returns the billable-operation count for an engine,
// 0 when the engine has never been attempted.
func (l *Ledger) MeteredThisPeriod(engineID string) int64 {
	stats, ok := l.Snapshot(engineID)
	if !ok {
		return 0
	}
	return stats.MeteredThisPeriod
}

// SnapshotAll returns a copy of every engine's stats, keyed by engine id.
// Used by the usage dashboard surface.
func (l *Ledger) SnapshotAll() map[string]Stats {
	l.mu.RLock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	l.mu.RUnlock()

	out := make(map[string]Stats, len(ids))
	for _, id := range ids {
		if stats, ok := l.Snapshot(id); ok {
			out[id] = stats
		}
	}
	return out
}

// Len returns the number of engines with at least one recorded attempt
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ResetPeriod zeroes the metered-usage counter for one engine. Invoked by
// an external scheduler at accounting-period boundaries; the core defines
// no rollover cadence of its own.
func (l *Ledger) ResetPeriod(engineID string) {
	l.mu.RLock()
	e, ok := l.entries[engineID]
	l.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.MeteredThisPeriod = 0
}
