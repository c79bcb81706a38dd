package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// CaptureConfig contains configuration for the microphone capture source.
type CaptureConfig struct {
	FFmpegPath   string
	InputFormat  string // ffmpeg input format: "alsa", "pulse", "avfoundation", "dshow"
	Device       string // input device name, e.g. "default"
	SampleRate   int
	Channels     int
	FrameSamples int           // per-channel samples per emitted frame
	OpenTimeout  time.Duration // how long to wait for the device to open
}

// MicCapture manages a single ffmpeg process reading raw PCM from the
// microphone and slicing it into fixed-size float frames.
type MicCapture struct {
	cfg       CaptureConfig
	ffmpegCmd *exec.Cmd
	stdout    io.ReadCloser
	stderr    bytes.Buffer
	frames    chan []float32
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logger.Logger
	mu        sync.Mutex
	isRunning bool
	lastError error
}

// NewMicCapture creates a capture source. Start must be called before
// frames are produced.
func NewMicCapture(cfg CaptureConfig, log *logger.Logger) *MicCapture {
	if cfg.FrameSamples == 0 {
		cfg.FrameSamples = CaptureFrameSamples
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = CaptureSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = Channels
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 2 * time.Second
	}
	return &MicCapture{
		cfg:    cfg,
		frames: make(chan []float32, 8),
		logger: log.Named("mic-capture").With(String("device", cfg.Device)),
	}
}

// Frames returns the channel of captured frames. The channel is closed
// when capture stops, whether by Stop or by a device error.
func (c *MicCapture) Frames() <-chan []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Start opens the capture device. A device that cannot be opened (missing,
// busy, or permission denied) is reported synchronously.
func (c *MicCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isRunning {
		return nil
	}

	// A previous run closed the frames channel; replace it so the new
	// read loop has a live one.
	if c.ffmpegCmd != nil {
		c.frames = make(chan []float32, 8)
	}
	c.stderr.Reset()

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info("Starting microphone capture",
		Int("sample_rate", c.cfg.SampleRate),
		Int("channels", c.cfg.Channels),
		Int("frame_samples", c.cfg.FrameSamples))

	args := []string{
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.Device,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", c.cfg.Channels),
		"-ar", fmt.Sprintf("%d", c.cfg.SampleRate),
		"-flush_packets", "1",
		"pipe:1",
	}

	c.ffmpegCmd = exec.CommandContext(c.ctx, c.cfg.FFmpegPath, args...)
	c.ffmpegCmd.Stderr = &c.stderr

	var err error
	c.stdout, err = c.ffmpegCmd.StdoutPipe()
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := c.ffmpegCmd.Start(); err != nil {
		c.cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// ffmpeg exits almost immediately when the device cannot be opened.
	// Give it a moment and treat an early exit as an open failure.
	exited := make(chan error, 1)
	go func() { exited <- c.ffmpegCmd.Wait() }()

	select {
	case <-exited:
		c.cancel()
		msg := bytes.TrimSpace(c.stderr.Bytes())
		return fmt.Errorf("failed to open capture device: %s", msg)
	case <-time.After(c.cfg.OpenTimeout):
	}

	go c.readFrames(c.stdout, c.frames, exited)

	c.isRunning = true
	return nil
}

// Stop terminates capture and closes the frames channel.
func (c *MicCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isRunning {
		return
	}

	c.logger.Info("Stopping microphone capture")
	c.cancel()
	if c.ffmpegCmd != nil && c.ffmpegCmd.Process != nil {
		_ = c.ffmpegCmd.Process.Kill()
	}
	c.isRunning = false
}

// Err returns the last device error observed by the read loop.
func (c *MicCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *MicCapture) readFrames(stdout io.Reader, frames chan<- []float32, exited <-chan error) {
	defer close(frames)
	defer func() {
		// Reap the process once the pipe drains.
		select {
		case <-exited:
		case <-time.After(time.Second):
		}
	}()

	frameBytes := c.cfg.FrameSamples * c.cfg.Channels * 2
	raw := make([]byte, frameBytes)
	framesRead := 0

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Context canceled, stopping capture read loop",
				Int("frames_read", framesRead))
			return
		default:
			if _, err := io.ReadFull(stdout, raw); err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					c.logger.Error("Error reading from ffmpeg", Error(err),
						Int("frames_read", framesRead))
					c.mu.Lock()
					c.lastError = err
					c.mu.Unlock()
				} else {
					c.logger.Warn("Capture stream ended",
						Int("frames_read", framesRead))
				}
				return
			}

			frame := make([]float32, c.cfg.FrameSamples*c.cfg.Channels)
			for i := range frame {
				frame[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
			}
			framesRead++

			// Frames are dropped rather than blocking the device read
			// when the consumer falls behind.
			select {
			case frames <- frame:
			default:
				c.logger.Debug("Dropping capture frame, consumer behind")
			}
		}
	}
}
