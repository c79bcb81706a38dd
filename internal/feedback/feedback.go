// Package feedback produces grammar corrections for user utterances via a
// text completion provider.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Config holds feedback generation settings.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
}

// Correction is the structured feedback for one user utterance.
type Correction struct {
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
	// Perfect is set when the utterance needed no correction.
	Perfect bool `json:"perfect"`
}

const systemPrompt = `You are a concise language teacher. Given a student utterance in %s, respond with JSON only:
{"original": "<utterance>", "corrected": "<corrected version>", "explanation": "<one-sentence explanation in English>", "perfect": <true if no correction needed>}`

// Generator requests corrections with bounded retry.
type Generator struct {
	chat   ai.ChatProvider
	cfg    Config
	logger *logger.Logger
}

// NewGenerator creates a feedback generator.
func NewGenerator(chat ai.ChatProvider, cfg Config, log *logger.Logger) *Generator {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Generator{
		chat:   chat,
		cfg:    cfg,
		logger: log.Named("feedback"),
	}
}

// Correct generates feedback for one utterance. Transient provider
// failures are retried with exponential backoff.
func (g *Generator) Correct(ctx context.Context, targetLanguage, utterance string) (*Correction, error) {
	messages := []ai.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, targetLanguage)},
		{Role: "user", Content: utterance},
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := backoffDelay(attempt - 1)
			g.logger.Debug("Retrying feedback request",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		raw, err := g.chat.ChatCompletion(ctx, messages, ai.ChatConfig{
			Model:       g.cfg.Model,
			Temperature: g.cfg.Temperature,
			MaxTokens:   g.cfg.MaxTokens,
		})
		if err != nil {
			lastErr = err
			continue
		}

		correction, err := parseCorrection(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return correction, nil
	}

	return nil, fmt.Errorf("feedback failed after %d attempts: %w", g.cfg.MaxRetries, lastErr)
}

func backoffDelay(n int) time.Duration {
	if n > 6 {
		n = 6
	}
	return time.Duration(100*(1<<n)) * time.Millisecond
}

// parseCorrection tolerates markdown fences around the JSON body.
func parseCorrection(raw string) (*Correction, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var correction Correction
	if err := json.Unmarshal([]byte(text), &correction); err != nil {
		return nil, fmt.Errorf("unparseable correction: %w", err)
	}
	return &correction, nil
}
