package voicechat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/internal/audio"
	"github.com/tutor360/tutorvoice/internal/feedback"
	"github.com/tutor360/tutorvoice/internal/prompt"
	"github.com/tutor360/tutorvoice/internal/websocket"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// ErrQuotaExhausted is returned when the day's conversation allowance is
// spent.
var ErrQuotaExhausted = errors.New("daily conversation quota exhausted")

// ErrSessionNotFound is returned for lookups of unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// TurnStore persists finalized turns.
type TurnStore interface {
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error
}

// UsageStore tracks the daily conversation allowance.
type UsageStore interface {
	RemainingSeconds(ctx context.Context, day string) (int, error)
	ConsumeSeconds(ctx context.Context, day string, seconds int) error
}

// Broadcaster fans session events out to live observers.
type Broadcaster interface {
	BroadcastTurnEvent(msgType, sessionID string, data map[string]any)
}

// Corrector produces grammar feedback for user utterances.
type Corrector interface {
	Correct(ctx context.Context, targetLanguage, utterance string) (*feedback.Correction, error)
}

// DeviceFactory builds the audio devices for one session and returns a
// cleanup function releasing them.
type DeviceFactory func() (CaptureSource, Player, func(), error)

// SessionRequest holds the student's preferences for one conversation.
type SessionRequest struct {
	TargetLanguage string `json:"target_language"`
	NativeLanguage string `json:"native_language"`
	Level          string `json:"level"`
	StudentName    string `json:"student_name"`
	Topic          string `json:"topic"`
}

// SessionInfo is the API-facing view of a session.
type SessionInfo struct {
	ID             string    `json:"id"`
	TargetLanguage string    `json:"target_language"`
	Level          string    `json:"level"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
}

type sessionEntry struct {
	info       SessionInfo
	controller *Controller
	cleanup    func()
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	Model           string
	Voice           string
	TemplatePath    string
	MaxSessionAge   time.Duration
	CleanupInterval time.Duration
}

// Service manages conversation sessions: quota enforcement on create, a
// registry of live controllers, persistence and fanout of finalized
// turns, and expiry of stale sessions.
type Service struct {
	provider  ai.RealtimeProvider
	devices   DeviceFactory
	prompts   *prompt.Engine
	turns     TurnStore
	usage     UsageStore
	hub       Broadcaster
	corrector Corrector
	cfg       ServiceConfig
	logger    *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	cleanupCancel context.CancelFunc
}

// NewService creates the session service. The usage store, broadcaster
// and corrector are optional; nil disables the corresponding feature.
func NewService(
	provider ai.RealtimeProvider,
	devices DeviceFactory,
	prompts *prompt.Engine,
	turns TurnStore,
	usage UsageStore,
	hub Broadcaster,
	corrector Corrector,
	cfg ServiceConfig,
	log *logger.Logger,
) *Service {
	if cfg.MaxSessionAge == 0 {
		cfg.MaxSessionAge = 30 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	s := &Service{
		provider:  provider,
		devices:   devices,
		prompts:   prompts,
		turns:     turns,
		usage:     usage,
		hub:       hub,
		corrector: corrector,
		cfg:       cfg,
		logger:    log.Named("voicechat"),
		sessions:  make(map[string]*sessionEntry),
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s.cleanupCancel = cancel
	go s.cleanupLoop(cleanupCtx)

	return s
}

// CreateSession starts a new conversation. It enforces the daily quota,
// renders the tutor prompt, builds the audio devices, and starts the
// controller.
func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (*SessionInfo, error) {
	if s.usage != nil {
		remaining, err := s.usage.RemainingSeconds(ctx, today())
		if err != nil {
			return nil, fmt.Errorf("checking usage: %w", err)
		}
		if remaining <= 0 {
			return nil, ErrQuotaExhausted
		}
	}

	systemPrompt, err := s.prompts.Render(s.cfg.TemplatePath, prompt.TutorContext{
		TargetLanguage: req.TargetLanguage,
		NativeLanguage: req.NativeLanguage,
		Level:          req.Level,
		StudentName:    req.StudentName,
		Topic:          req.Topic,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering tutor prompt: %w", err)
	}

	capture, player, cleanup, err := s.devices()
	if err != nil {
		return nil, fmt.Errorf("preparing audio devices: %w", err)
	}

	id := fmt.Sprintf("sess_%d", time.Now().UnixNano())

	hooks := Hooks{
		OnTurn: func(turn Turn) {
			s.handleTurn(id, req.TargetLanguage, turn)
		},
		OnUsage: func(elapsed time.Duration) {
			if s.usage == nil {
				return
			}
			secs := int(elapsed.Seconds())
			if err := s.usage.ConsumeSeconds(context.Background(), today(), secs); err != nil {
				s.logger.Error("Failed to record usage", logger.Error(err))
			}
		},
		OnError: func(sessErr *SessionError) {
			if s.hub != nil {
				s.hub.BroadcastTurnEvent(websocket.MessageTypeSessionError, id, map[string]any{
					"kind": sessErr.Kind.String(),
				})
			}
		},
	}

	controller := NewController(s.provider, capture, player, ControllerConfig{
		Model:           s.cfg.Model,
		Voice:           s.cfg.Voice,
		InputSampleRate: audio.CaptureSampleRate,
	}, hooks, s.logger.With(logger.String("session_id", id)))

	if err := controller.Start(ctx, systemPrompt); err != nil {
		cleanup()
		return nil, err
	}

	entry := &sessionEntry{
		info: SessionInfo{
			ID:             id,
			TargetLanguage: req.TargetLanguage,
			Level:          req.Level,
			State:          controller.State().String(),
			CreatedAt:      time.Now().UTC(),
		},
		controller: controller,
		cleanup:    cleanup,
	}

	s.mu.Lock()
	s.sessions[id] = entry
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.BroadcastTurnEvent(websocket.MessageTypeSessionStarted, id, map[string]any{
			"target_language": req.TargetLanguage,
			"level":           req.Level,
		})
	}

	s.logger.Info("Created session",
		logger.String("session_id", id),
		logger.String("target_language", req.TargetLanguage),
		logger.String("level", req.Level))

	info := entry.info
	return &info, nil
}

// handleTurn persists, broadcasts, and (for user turns) requests feedback.
func (s *Service) handleTurn(sessionID, targetLanguage string, turn Turn) {
	if s.turns != nil {
		if err := s.turns.SaveTurn(context.Background(), sessionID, turn); err != nil {
			s.logger.Error("Failed to persist turn", logger.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.BroadcastTurnEvent(websocket.MessageTypeTurn, sessionID, map[string]any{
			"role":       string(turn.Role),
			"text":       turn.Text,
			"created_at": turn.CreatedAt,
		})
	}
	if s.corrector != nil && turn.Role == RoleUser {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			correction, err := s.corrector.Correct(ctx, targetLanguage, turn.Text)
			if err != nil {
				s.logger.Warn("Feedback generation failed", logger.Error(err))
				return
			}
			if s.hub != nil && !correction.Perfect {
				s.hub.BroadcastTurnEvent(websocket.MessageTypeCorrection, sessionID, map[string]any{
					"original":    correction.Original,
					"corrected":   correction.Corrected,
					"explanation": correction.Explanation,
				})
			}
		}()
	}
}

// GetSession returns the current view of one session.
func (s *Service) GetSession(id string) (*SessionInfo, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	info := entry.info
	info.State = entry.controller.State().String()
	return &info, nil
}

// ListSessions returns all registered sessions.
func (s *Service) ListSessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, entry := range s.sessions {
		info := entry.info
		info.State = entry.controller.State().String()
		out = append(out, info)
	}
	return out
}

// Transcript returns the finalized turns of one session.
func (s *Service) Transcript(id string) ([]Turn, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.controller.Transcript(), nil
}

// SendText injects a typed message into one session.
func (s *Service) SendText(id, text string) error {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	return entry.controller.SendText(text)
}

// EndSession stops and unregisters one session.
func (s *Service) EndSession(id string) error {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.controller.Stop()
	if entry.cleanup != nil {
		entry.cleanup()
	}
	if s.hub != nil {
		s.hub.BroadcastTurnEvent(websocket.MessageTypeSessionEnded, id, nil)
	}

	s.logger.Info("Ended session", logger.String("session_id", id))
	return nil
}

// RemainingSeconds reports today's unspent allowance.
func (s *Service) RemainingSeconds(ctx context.Context) (int, error) {
	if s.usage == nil {
		return 0, fmt.Errorf("usage tracking disabled")
	}
	return s.usage.RemainingSeconds(ctx, today())
}

// Shutdown ends every session and stops the cleanup loop.
func (s *Service) Shutdown(ctx context.Context) {
	s.cleanupCancel()

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.EndSession(id)
	}
	s.logger.Info("Service shut down", logger.Int("sessions_ended", len(ids)))
}

// cleanupLoop expires sessions that exceed the configured maximum age.
func (s *Service) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.cfg.MaxSessionAge)

			s.mu.RLock()
			var expired []string
			for id, entry := range s.sessions {
				if entry.info.CreatedAt.Before(cutoff) {
					expired = append(expired, id)
				}
			}
			s.mu.RUnlock()

			for _, id := range expired {
				s.logger.Info("Expiring stale session", logger.String("session_id", id))
				_ = s.EndSession(id)
			}
		}
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}
