package bridge

import "sync/atomic"

// Stats counts what happened to incoming readings. All counters are
// monotonic for the lifetime of the bridge process.
type Stats struct {
	received   atomic.Uint64
	written    atomic.Uint64
	duplicates atomic.Uint64
	unsigned   atomic.Uint64
	rejected   atomic.Uint64
	failed     atomic.Uint64
}

// Snapshot is a consistent-enough copy of the counters for logging.
type Snapshot struct {
	Received   uint64
	Written    uint64
	Duplicates uint64
	Unsigned   uint64
	Rejected   uint64
	Failed     uint64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Received:   s.received.Load(),
		Written:    s.written.Load(),
		Duplicates: s.duplicates.Load(),
		Unsigned:   s.unsigned.Load(),
		Rejected:   s.rejected.Load(),
		Failed:     s.failed.Load(),
	}
}
