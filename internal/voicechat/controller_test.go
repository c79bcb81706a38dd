package voicechat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/internal/audio"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	frames   chan []float32
	started  bool
	stopped  bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan []float32, 16)}
}

func (f *fakeCapture) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeCapture) Frames() <-chan []float32 { return f.frames }

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type fakePlayer struct {
	mu       sync.Mutex
	buffers  []*audio.Buffer
	stopAlls int
}

func (f *fakePlayer) Enqueue(buf *audio.Buffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffers = append(f.buffers, buf)
	return nil
}

func (f *fakePlayer) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAlls++
}

func (f *fakePlayer) enqueued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffers)
}

func (f *fakePlayer) stopAllCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopAlls
}

type fakeChannel struct {
	mu         sync.Mutex
	sentAudio  []string
	sentText   []string
	closeCalls int
}

func (f *fakeChannel) SendAudio(data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentAudio = append(f.sentAudio, data)
	return nil
}

func (f *fakeChannel) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentText = append(f.sentText, text)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakeChannel) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sentAudio)
}

type fakeProvider struct {
	mu      sync.Mutex
	dialErr error
	// errAfterOpen fires the error hook before OpenRealtimeChannel
	// returns, like a read pump that dies during setup.
	errAfterOpen error
	channel      *fakeChannel
	hooks        ai.RealtimeHooks
	opens        int
}

func (f *fakeProvider) OpenRealtimeChannel(ctx context.Context, cfg ai.RealtimeConfig, prompt string, hooks ai.RealtimeHooks) (ai.RealtimeChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.hooks = hooks
	f.channel = &fakeChannel{}
	if f.errAfterOpen != nil {
		hooks.OnError(f.errAfterOpen)
	}
	return f.channel, nil
}

func (f *fakeProvider) emit(event ai.ServerEvent) {
	f.mu.Lock()
	hooks := f.hooks
	f.mu.Unlock()
	hooks.OnEvent(event)
}

func newTestController(t *testing.T) (*Controller, *fakeProvider, *fakeCapture, *fakePlayer) {
	t.Helper()
	provider := &fakeProvider{}
	capture := newFakeCapture()
	player := &fakePlayer{}
	ctrl := NewController(provider, capture, player,
		ControllerConfig{Model: "gemini-2.0-flash-live-001", InputSampleRate: audio.CaptureSampleRate},
		Hooks{}, logger.NewNop())
	return ctrl, provider, capture, player
}

func TestFullTurnCycle(t *testing.T) {
	ctrl, provider, _, player := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), "be a tutor"))
	require.Equal(t, StateActive, ctrl.State())

	chunk := audio.EncodeFrame(make([]float32, 2400))
	provider.emit(ai.ServerEvent{Audio: chunk, InputTranscript: "¿Qué "})
	provider.emit(ai.ServerEvent{Audio: chunk, InputTranscript: "hora es?"})
	provider.emit(ai.ServerEvent{OutputTranscript: "Son las ", Audio: chunk})
	provider.emit(ai.ServerEvent{OutputTranscript: "tres.", TurnComplete: true})

	turns := ctrl.Transcript()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "¿Qué hora es?", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "Son las tres.", turns[1].Text)
	assert.Equal(t, 3, player.enqueued())
}

func TestInterruptionClearsPlaybackOnly(t *testing.T) {
	ctrl, provider, _, player := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))

	provider.emit(ai.ServerEvent{InputTranscript: "hola", OutputTranscript: "buen", TurnComplete: true})
	provider.emit(ai.ServerEvent{Interrupted: true})

	assert.Equal(t, 1, player.stopAllCount())
	assert.Len(t, ctrl.Transcript(), 2)
	assert.Equal(t, StateActive, ctrl.State())
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	ctrl, provider, _, _ := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))
	require.NoError(t, ctrl.Start(context.Background(), ""))
	assert.Equal(t, 1, provider.opens)
}

func TestStopIsIdempotent(t *testing.T) {
	ctrl, provider, capture, _ := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))

	ctrl.Stop()
	ctrl.Stop()

	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 1, provider.channel.closeCalls)
	assert.True(t, capture.stopped)
}

func TestChannelErrorDuringConnectLeavesIdle(t *testing.T) {
	errs := 0
	provider := &fakeProvider{errAfterOpen: errors.New("connection reset")}
	capture := newFakeCapture()
	ctrl := NewController(provider, capture, &fakePlayer{}, ControllerConfig{}, Hooks{
		OnError: func(*SessionError) { errs++ },
	}, logger.NewNop())

	err := ctrl.Start(context.Background(), "")
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, ErrorChannel, sessErr.Kind)
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, provider.channel.closeCalls)
	assert.True(t, capture.stopped)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	ctrl, provider, capture, _ := newTestController(t)

	ctrl.Stop()

	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 0, provider.opens)
	assert.False(t, capture.stopped)
}

func TestCaptureDeniedReturnsPermissionError(t *testing.T) {
	ctrl, provider, capture, _ := newTestController(t)
	capture.startErr = errors.New("cannot open device: permission denied")

	err := ctrl.Start(context.Background(), "")
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, ErrorPermission, sessErr.Kind)
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 0, provider.opens)
}

func TestUnauthorizedDialReturnsPermissionError(t *testing.T) {
	ctrl, provider, capture, _ := newTestController(t)
	provider.dialErr = fmt.Errorf("dialing: %w", ai.ErrUnauthorized)

	err := ctrl.Start(context.Background(), "")
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, ErrorPermission, sessErr.Kind)
	assert.True(t, capture.stopped)
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestDialFailureReturnsHandshakeError(t *testing.T) {
	ctrl, provider, _, _ := newTestController(t)
	provider.dialErr = errors.New("connection refused")

	err := ctrl.Start(context.Background(), "")
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, ErrorHandshake, sessErr.Kind)
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestChannelErrorTearsDownAndPreservesTranscript(t *testing.T) {
	var (
		mu        sync.Mutex
		reported  []*SessionError
		usages    int
	)
	provider := &fakeProvider{}
	capture := newFakeCapture()
	player := &fakePlayer{}
	ctrl := NewController(provider, capture, player, ControllerConfig{}, Hooks{
		OnError: func(e *SessionError) {
			mu.Lock()
			reported = append(reported, e)
			mu.Unlock()
		},
		OnUsage: func(time.Duration) {
			mu.Lock()
			usages++
			mu.Unlock()
		},
	}, logger.NewNop())

	require.NoError(t, ctrl.Start(context.Background(), ""))
	provider.emit(ai.ServerEvent{InputTranscript: "hola", TurnComplete: true})

	provider.hooks.OnError(errors.New("connection reset"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Equal(t, ErrorChannel, reported[0].Kind)
	assert.Equal(t, 1, usages)
	assert.Equal(t, StateIdle, ctrl.State())
	// The partial conversation stays readable after the failure.
	require.Len(t, ctrl.Transcript(), 1)
	assert.Equal(t, "hola", ctrl.Transcript()[0].Text)
}

func TestServerCloseTearsDownWithoutError(t *testing.T) {
	errs := 0
	provider := &fakeProvider{}
	ctrl := NewController(provider, newFakeCapture(), &fakePlayer{}, ControllerConfig{}, Hooks{
		OnError: func(*SessionError) { errs++ },
	}, logger.NewNop())

	require.NoError(t, ctrl.Start(context.Background(), ""))
	provider.hooks.OnClose()

	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, 0, errs)
}

func TestSendText(t *testing.T) {
	ctrl, provider, _, _ := newTestController(t)

	require.Error(t, ctrl.SendText("too early"))

	require.NoError(t, ctrl.Start(context.Background(), ""))
	require.NoError(t, ctrl.SendText("¿puedes repetir?"))

	turns := ctrl.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "¿puedes repetir?", turns[0].Text)
	assert.Equal(t, []string{"¿puedes repetir?"}, provider.channel.sentText)
}

func TestAudioPumpEncodesFrames(t *testing.T) {
	ctrl, provider, capture, _ := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))

	frame := make([]float32, audio.CaptureFrameSamples)
	frame[0] = 0.25
	capture.frames <- frame

	require.Eventually(t, func() bool {
		return provider.channel.audioCount() == 1
	}, time.Second, 5*time.Millisecond)

	buf, err := audio.DecodeFrame(provider.channel.sentAudio[0], audio.CaptureSampleRate, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, buf.Data[0], 1.0/32768)
}

func TestUndecodableAudioDropsFrameOnly(t *testing.T) {
	ctrl, provider, _, player := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))

	provider.emit(ai.ServerEvent{Audio: "!!!not-base64!!!"})

	assert.Equal(t, 0, player.enqueued())
	assert.Equal(t, StateActive, ctrl.State())
}

func TestStartClearsPreviousTranscript(t *testing.T) {
	ctrl, provider, _, _ := newTestController(t)
	require.NoError(t, ctrl.Start(context.Background(), ""))
	provider.emit(ai.ServerEvent{InputTranscript: "vieja", TurnComplete: true})
	ctrl.Stop()
	require.Len(t, ctrl.Transcript(), 1)

	require.NoError(t, ctrl.Start(context.Background(), ""))
	assert.Empty(t, ctrl.Transcript())
}
