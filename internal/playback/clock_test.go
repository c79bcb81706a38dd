package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor360/tutorvoice/internal/audio"
)

type recordingSink struct {
	mu     sync.Mutex
	writes int
	resets int
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return len(p), nil
}

func (s *recordingSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

func (s *recordingSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *recordingSink) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func playbackBuffer(d time.Duration) *audio.Buffer {
	samples := int(d.Seconds() * float64(audio.PlaybackSampleRate))
	return &audio.Buffer{
		SampleRate: audio.PlaybackSampleRate,
		Channels:   1,
		Data:       make([]float32, samples),
	}
}

func TestTimerClockWritesThenCompletes(t *testing.T) {
	sink := &recordingSink{}
	clock := NewTimerClock(sink)
	done := make(chan struct{})

	_, err := clock.ScheduleAt(playbackBuffer(10*time.Millisecond), clock.Now(), func() { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("playback did not complete")
	}
	assert.Equal(t, 1, sink.writeCount())
	assert.Equal(t, 0, sink.resetCount())
}

func TestTimerClockStopBeforeStartSuppressesWrite(t *testing.T) {
	sink := &recordingSink{}
	clock := NewTimerClock(sink)
	done := 0

	h, err := clock.ScheduleAt(playbackBuffer(10*time.Millisecond), clock.Now()+100*time.Millisecond, func() { done++ })
	require.NoError(t, err)
	h.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, sink.writeCount())
	// Nothing reached the sink, so there is nothing to reset.
	assert.Equal(t, 0, sink.resetCount())
	assert.Equal(t, 1, done)
}

func TestTimerClockStopAfterWriteResetsSink(t *testing.T) {
	sink := &recordingSink{}
	clock := NewTimerClock(sink)

	h, err := clock.ScheduleAt(playbackBuffer(time.Second), clock.Now(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sink.writeCount() == 1
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	assert.Equal(t, 1, sink.resetCount())
}
