package playback

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/tutor360/tutorvoice/internal/audio"
)

// resettable is implemented by sinks that can discard already-written
// audio, such as a restartable speaker process.
type resettable interface {
	Reset() error
}

// TimerClock is a wall-time Clock that renders buffers to an io.Writer
// sink as little-endian PCM16 at their scheduled start time.
type TimerClock struct {
	sink  io.Writer
	epoch time.Time
}

// NewTimerClock creates a clock whose timeline starts at the current
// instant.
func NewTimerClock(sink io.Writer) *TimerClock {
	return &TimerClock{sink: sink, epoch: time.Now()}
}

func (c *TimerClock) Now() time.Duration {
	return time.Since(c.epoch)
}

func (c *TimerClock) ScheduleAt(buf *audio.Buffer, at time.Duration, onDone func()) (Handle, error) {
	h := &timerHandle{clock: c, buf: buf, onDone: onDone}

	delay := at - c.Now()
	if delay < 0 {
		delay = 0
	}
	h.mu.Lock()
	h.startTimer = time.AfterFunc(delay, h.fire)
	h.mu.Unlock()
	return h, nil
}

type timerHandle struct {
	clock  *TimerClock
	buf    *audio.Buffer
	onDone func()

	mu         sync.Mutex
	startTimer *time.Timer
	doneTimer  *time.Timer
	written    bool
	stopped    bool
}

func (h *timerHandle) fire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.written = true
	h.doneTimer = time.AfterFunc(h.buf.Duration(), h.finish)
	// The write stays under the lock so a racing Stop cannot reset the
	// sink and then receive this handle's stale audio.
	_, _ = h.clock.sink.Write(pcm16Bytes(h.buf.Data))
}

func (h *timerHandle) finish() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	if h.onDone != nil {
		h.onDone()
	}
}

// Stop cancels playback. Audio already handed to the sink is discarded
// when the sink supports it.
func (h *timerHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	if h.startTimer != nil {
		h.startTimer.Stop()
	}
	if h.doneTimer != nil {
		h.doneTimer.Stop()
	}
	written := h.written
	h.mu.Unlock()

	if written {
		if r, ok := h.clock.sink.(resettable); ok {
			_ = r.Reset()
		}
	}
	if h.onDone != nil {
		h.onDone()
	}
}

func pcm16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
