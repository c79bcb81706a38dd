package playback

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/tutor360/tutorvoice/pkg/logger"
)

// SpeakerConfig contains configuration for the ffplay output device.
type SpeakerConfig struct {
	FFplayPath string
	SampleRate int
	Channels   int
	Volume     int // 0-100
}

// Speaker pipes little-endian PCM16 into an ffplay subprocess. It
// implements io.Writer for use as a TimerClock sink, and Reset restarts
// the process to drop buffered audio on interruption.
type Speaker struct {
	cfg    SpeakerConfig
	logger *logger.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewSpeaker creates a speaker. Start must be called before writing.
func NewSpeaker(cfg SpeakerConfig, log *logger.Logger) *Speaker {
	if cfg.FFplayPath == "" {
		cfg.FFplayPath = "ffplay"
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 80
	}
	return &Speaker{cfg: cfg, logger: log.Named("speaker")}
}

// Start spawns the ffplay process.
func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Speaker) startLocked() error {
	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}

	// ffplay does not accept ffmpeg-style -ac; use -ch_layout.
	chLayout := "mono"
	if s.cfg.Channels == 2 {
		chLayout = "stereo"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-volume", fmt.Sprintf("%d", s.cfg.Volume),
		"-nodisp",
		"-f", "s16le",
		"-ch_layout", chLayout,
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-i", "-",
	}

	cmd := exec.Command(s.cfg.FFplayPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffplay: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.logger.Debug("Started ffplay",
		logger.Int("sample_rate", s.cfg.SampleRate),
		logger.String("ch_layout", chLayout))
	return nil
}

// Write sends raw PCM bytes to the device.
func (s *Speaker) Write(p []byte) (int, error) {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()

	if stdin == nil {
		return 0, fmt.Errorf("speaker not started")
	}
	return stdin.Write(p)
}

// Reset restarts ffplay, discarding any audio buffered in its pipe.
func (s *Speaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return s.startLocked()
}

// Close terminates the ffplay process.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Speaker) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
}
