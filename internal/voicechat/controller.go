package voicechat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/internal/audio"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// State is the lifecycle phase of a Controller.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CaptureSource produces fixed-size float PCM frames from the microphone.
type CaptureSource interface {
	Start(ctx context.Context) error
	Frames() <-chan []float32
	Stop()
}

// Player schedules decoded model audio for output.
type Player interface {
	Enqueue(buf *audio.Buffer) error
	StopAll()
}

// ControllerConfig holds per-session model settings.
type ControllerConfig struct {
	Model           string
	Voice           string
	InputSampleRate int
}

// Hooks receive controller callbacks. OnTurn fires for every finalized
// turn; OnError fires at most once per session, after teardown completes;
// OnUsage fires exactly once per session that reached Active.
type Hooks struct {
	OnTurn  func(Turn)
	OnError func(*SessionError)
	OnUsage func(elapsed time.Duration)
}

// Controller runs one realtime conversation: it pumps microphone frames
// up the channel, demuxes server events into playback and transcript
// turns, and owns the session lifecycle. All termination paths converge
// on a single idempotent teardown.
type Controller struct {
	provider ai.RealtimeProvider
	capture  CaptureSource
	player   Player
	cfg      ControllerConfig
	hooks    Hooks
	logger   *logger.Logger

	mu         sync.Mutex
	state      State
	epoch      uint64
	abortCause *SessionError
	channel    ai.RealtimeChannel
	turns      []Turn
	asm        turnAssembler
	startedAt  time.Time
	pumpCancel context.CancelFunc
}

// NewController creates an idle controller.
func NewController(provider ai.RealtimeProvider, capture CaptureSource, player Player, cfg ControllerConfig, hooks Hooks, log *logger.Logger) *Controller {
	return &Controller{
		provider: provider,
		capture:  capture,
		player:   player,
		cfg:      cfg,
		hooks:    hooks,
		logger:   log.Named("controller"),
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the finalized turns. The transcript of an
// ended session remains readable until the next Start.
func (c *Controller) Transcript() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Start opens the capture device and the realtime channel. Calling Start
// while a session is connecting or active is a no-op. Setup failures are
// returned synchronously with the controller back at idle.
func (c *Controller) Start(ctx context.Context, systemPrompt string) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateActive {
		c.mu.Unlock()
		c.logger.Debug("Start ignored, session already running",
			logger.String("state", c.state.String()))
		return nil
	}
	c.state = StateConnecting
	c.turns = nil
	c.asm.reset()
	c.startedAt = time.Time{}
	c.abortCause = nil
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.capture.Start(ctx); err != nil {
		c.logger.Error("Capture device unavailable", logger.Error(err))
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return &SessionError{Kind: ErrorPermission, Err: err}
	}

	hooks := ai.RealtimeHooks{
		OnEvent: c.handleEvent,
		OnClose: func() { c.teardown(nil) },
		OnError: func(err error) {
			c.teardown(&SessionError{Kind: ErrorChannel, Err: err})
		},
	}

	ch, err := c.provider.OpenRealtimeChannel(ctx, ai.RealtimeConfig{
		Model:           c.cfg.Model,
		Voice:           c.cfg.Voice,
		InputSampleRate: c.cfg.InputSampleRate,
	}, systemPrompt, hooks)
	if err != nil {
		c.capture.Stop()
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		kind := ErrorHandshake
		if errors.Is(err, ai.ErrUnauthorized) {
			kind = ErrorPermission
		}
		return &SessionError{Kind: kind, Err: err}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	// The channel's hooks can fire before OpenRealtimeChannel returns. If
	// teardown already ran (channel error, server close, or a concurrent
	// Stop), the session must not be promoted to Active on a dead channel.
	if c.state != StateConnecting || c.epoch != epoch {
		abort := c.abortCause
		c.abortCause = nil
		c.mu.Unlock()
		cancel()
		_ = ch.Close()
		c.capture.Stop()
		if abort == nil {
			abort = &SessionError{Kind: ErrorHandshake, Err: errors.New("session ended during setup")}
		}
		return abort
	}
	c.channel = ch
	c.startedAt = time.Now()
	c.pumpCancel = cancel
	c.state = StateActive
	c.mu.Unlock()

	go c.pumpAudio(pumpCtx, ch)

	c.logger.Info("Session active", logger.String("model", c.cfg.Model))
	return nil
}

// Stop ends the session. Safe to call in any state, any number of times.
func (c *Controller) Stop() {
	c.teardown(nil)
}

// SendText injects a typed user message. The turn is appended to the
// transcript immediately, bypassing the assembler.
func (c *Controller) SendText(text string) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return fmt.Errorf("session not active")
	}
	turn := Turn{Role: RoleUser, Text: text, CreatedAt: time.Now()}
	c.turns = append(c.turns, turn)
	ch := c.channel
	c.mu.Unlock()

	if err := ch.SendText(text); err != nil {
		return fmt.Errorf("sending text message: %w", err)
	}
	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(turn)
	}
	return nil
}

// pumpAudio drains capture frames into the channel. Send failures are
// logged and the frame dropped; the session is not torn down for them.
func (c *Controller) pumpAudio(ctx context.Context, ch ai.RealtimeChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.capture.Frames():
			if !ok {
				c.logger.Debug("Capture stream ended, stopping audio pump")
				return
			}
			encoded := audio.EncodeFrame(frame)
			if encoded == "" {
				continue
			}
			if err := ch.SendAudio(encoded); err != nil {
				c.logger.Debug("Dropping outbound audio frame", logger.Error(err))
			}
		}
	}
}

// handleEvent demuxes one server event. Every populated field is handled;
// fields co-occur within a single event.
func (c *Controller) handleEvent(event ai.ServerEvent) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}

	if event.Interrupted {
		c.logger.Debug("Model interrupted, clearing scheduled playback")
		c.player.StopAll()
	}

	if event.Audio != "" {
		buf, err := audio.DecodeFrame(event.Audio, audio.PlaybackSampleRate, audio.Channels)
		if err != nil {
			// A corrupt chunk costs one frame, not the session.
			c.logger.Warn("Dropping undecodable audio chunk", logger.Error(err))
		} else if buf.Frames() > 0 {
			if err := c.player.Enqueue(buf); err != nil {
				c.logger.Warn("Failed to schedule audio chunk", logger.Error(err))
			}
		}
	}

	if event.InputTranscript != "" {
		c.asm.addUser(event.InputTranscript)
	}
	if event.OutputTranscript != "" {
		c.asm.addAssistant(event.OutputTranscript)
	}

	var flushed []Turn
	if event.TurnComplete {
		flushed = c.asm.flush(time.Now())
		c.turns = append(c.turns, flushed...)
	}
	c.mu.Unlock()

	for _, turn := range flushed {
		if c.hooks.OnTurn != nil {
			c.hooks.OnTurn(turn)
		}
	}
}

// teardown is the single exit path for every way a session can end:
// explicit Stop, server close, and channel error all land here. It is
// idempotent and safe to invoke from the channel's callback goroutine.
func (c *Controller) teardown(cause *SessionError) {
	c.mu.Lock()
	if c.state != StateActive && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnecting {
		// Let the in-flight Start see why its session went away.
		c.abortCause = cause
	}
	c.state = StateClosed
	ch := c.channel
	c.channel = nil
	cancel := c.pumpCancel
	c.pumpCancel = nil
	startedAt := c.startedAt
	c.startedAt = time.Time{}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.capture.Stop()
	c.player.StopAll()
	if ch != nil {
		_ = ch.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	if cause != nil {
		c.logger.Error("Session ended with error",
			logger.String("kind", cause.Kind.String()),
			logger.Error(cause.Err))
	} else {
		c.logger.Info("Session ended")
	}

	if !startedAt.IsZero() && c.hooks.OnUsage != nil {
		c.hooks.OnUsage(time.Since(startedAt))
	}
	if cause != nil && c.hooks.OnError != nil {
		c.hooks.OnError(cause)
	}
}
