package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"campuslink.app/internal/audit"
)

var severityRank = map[audit.Severity]int{
	audit.SeverityLow:      0,
	audit.SeverityMedium:   1,
	audit.SeverityHigh:     2,
	audit.SeverityCritical: 3,
}

type subscriber struct {
	ch    chan audit.SecurityEvent
	floor int
}

// Stream fans security events out to admin subscribers (SSE clients).
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Uint64
}

var _ audit.Publisher = (*Stream)(nil)

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for events at or above minSeverity (empty means all)
// and returns a channel which will receive them. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, minSeverity audit.Severity) <-chan audit.SecurityEvent {
	sub := subscriber{ch: make(chan audit.SecurityEvent, 16), floor: severityRank[minSeverity]}

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch
}

// Publish fans the event out to all matching subscribers without blocking.
func (s *Stream) Publish(ev audit.SecurityEvent) {
	rank := severityRank[ev.Severity]
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if rank < sub.floor {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribers returns the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
