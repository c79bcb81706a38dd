// Package playback schedules decoded audio buffers for gapless output
// against an output clock.
package playback

import (
	"sync"
	"time"

	"github.com/tutor360/tutorvoice/internal/audio"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Handle represents one scheduled buffer that can be stopped early.
type Handle interface {
	Stop()
}

// Clock abstracts the output device's timeline. Now is monotonic within a
// clock instance; ScheduleAt arranges for a buffer to start playing at the
// given timeline position and invokes onDone after it finishes or is
// stopped.
type Clock interface {
	Now() time.Duration
	ScheduleAt(buf *audio.Buffer, at time.Duration, onDone func()) (Handle, error)
}

// Scheduler enqueues buffers back to back on a Clock. Buffers play in
// arrival order without overlap; after silence the next buffer starts
// immediately rather than at the stale cursor.
type Scheduler struct {
	clock  Clock
	logger *logger.Logger

	mu     sync.Mutex
	cursor time.Duration
	active map[uint64]Handle
	nextID uint64
}

// NewScheduler creates a scheduler positioned at the clock's current time.
func NewScheduler(clock Clock, log *logger.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: log.Named("playback"),
		cursor: clock.Now(),
		active: make(map[uint64]Handle),
	}
}

// Enqueue schedules a buffer to start when the previous one ends, or now
// if the queue has drained. Zero-duration buffers complete immediately
// without moving the cursor.
func (s *Scheduler) Enqueue(buf *audio.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := s.cursor
	if now := s.clock.Now(); now > startAt {
		startAt = now
	}

	id := s.nextID
	s.nextID++

	handle, err := s.clock.ScheduleAt(buf, startAt, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}

	s.active[id] = handle
	s.cursor = startAt + buf.Duration()

	s.logger.Debug("Scheduled buffer",
		logger.Int64("id", int64(id)),
		logger.Duration("start_at", startAt),
		logger.Duration("duration", buf.Duration()))
	return nil
}

// StopAll stops every scheduled buffer and rewinds the cursor to the
// current time, so the next Enqueue starts immediately.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[uint64]Handle)
	s.cursor = s.clock.Now()
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}

	s.logger.Debug("Stopped all scheduled buffers",
		logger.Int("count", len(handles)))
}

// Active returns the number of buffers scheduled and not yet finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
