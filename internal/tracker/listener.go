package tracker

import (
	"sync"
	"sync/atomic"
)

// RepListener is notified once per completed rep, after the tracker has
// released its lock. Implementations must not call back into the Tracker
// synchronously from RepCompleted if they also hold locks the caller of
// Process needs.
type RepListener interface {
	RepCompleted(rep CompletedRep)
}

// ListenerFunc adapts a function to RepListener.
type ListenerFunc func(rep CompletedRep)

// RepCompleted calls f(rep).
func (f ListenerFunc) RepCompleted(rep CompletedRep) { f(rep) }

// Fanout delivers each rep to every listener in order. Each listener gets
// its own copy of the trajectory.
type Fanout []RepListener

// RepCompleted implements RepListener.
func (f Fanout) RepCompleted(rep CompletedRep) {
	for i, l := range f {
		if i == len(f)-1 {
			l.RepCompleted(rep)
			return
		}
		l.RepCompleted(rep.Clone())
	}
}

// ChannelSink forwards completed reps onto a buffered channel without ever
// blocking the tracker. When the consumer falls behind, reps are dropped
// and counted.
type ChannelSink struct {
	ch chan CompletedRep

	sent    atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// SinkStats is a point-in-time view of a ChannelSink's counters.
type SinkStats struct {
	Sent    uint64
	Dropped uint64
}

// NewChannelSink creates a sink with the given buffer size (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan CompletedRep, buffer)}
}

// RepCompleted implements RepListener. Reps arriving after Close are
// counted as dropped.
func (s *ChannelSink) RepCompleted(rep CompletedRep) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- rep:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
}

// C returns the receive side of the sink.
func (s *ChannelSink) C() <-chan CompletedRep { return s.ch }

// Stats returns the sent and dropped counters.
func (s *ChannelSink) Stats() SinkStats {
	return SinkStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

// Close closes the channel. It must not race with RepCompleted; call it
// once the producing tracker has stopped.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.ch)
	})
}
