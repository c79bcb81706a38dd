package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

const (
	// DefaultHost is the default host for the Gemini API
	DefaultHost = "generativelanguage.googleapis.com"
	// DefaultPath is the WebSocket path for BidiGenerateContent
	DefaultPath = "/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	// DefaultVoice is used when no voice is configured
	DefaultVoice = "Puck"
	// DefaultInputSampleRate is used when no capture rate is configured
	DefaultInputSampleRate = 16000
)

// Client talks to the Gemini API: the Live websocket for realtime audio
// and the REST generateContent endpoint for text completions.
type Client struct {
	apiKey     string
	host       string
	logger     *logger.Logger
	dialer     *websocket.Dialer
	httpClient *http.Client
}

// NewClient creates a new Gemini Client
func NewClient(apiKey string, log *logger.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		host:   DefaultHost,
		logger: log.Named("gemini"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// -- RealtimeProvider Implementation --

// OpenRealtimeChannel dials the Live API, sends the setup message, and
// starts the read pump. Hooks fire from the pump goroutine.
func (c *Client) OpenRealtimeChannel(ctx context.Context, config ai.RealtimeConfig, systemPrompt string, hooks ai.RealtimeHooks) (ai.RealtimeChannel, error) {
	u := url.URL{
		Scheme: "wss",
		Host:   c.host,
		Path:   DefaultPath,
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	c.logger.Info("Connecting to Gemini Live API",
		logger.String("model", config.Model))

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			c.logger.Error("Gemini WebSocket handshake failed",
				logger.Int("status_code", resp.StatusCode),
				logger.String("status", resp.Status))
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("dialing Gemini: %w", ai.ErrUnauthorized)
			}
		}
		return nil, fmt.Errorf("failed to dial Gemini: %w", err)
	}

	voiceName := config.Voice
	if voiceName == "" {
		voiceName = DefaultVoice
	}
	sampleRate := config.InputSampleRate
	if sampleRate == 0 {
		sampleRate = DefaultInputSampleRate
	}
	model := config.Model
	if !strings.Contains(model, "/") {
		model = "models/" + model
	}

	setup := &clientMessage{
		Setup: &setupPayload{
			Model: model,
			GenerationConfig: &generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: &voiceConfig{
						PrebuiltVoiceConfig: &prebuiltVoiceConfig{
							VoiceName: voiceName,
						},
					},
				},
			},
			SystemInstruction: &content{
				Parts: []part{{Text: systemPrompt}},
			},
			InputTranscription:  &struct{}{},
			OutputTranscription: &struct{}{},
		},
	}

	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup to Gemini: %w", err)
	}

	ch := &liveChannel{
		conn:       conn,
		hooks:      hooks,
		logger:     c.logger,
		sampleRate: sampleRate,
	}
	go ch.readPump()
	return ch, nil
}

// -- ChatProvider Implementation --

func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	apiURL := fmt.Sprintf("https://%s/v1beta/models/%s:generateContent?key=%s", c.host, config.Model, c.apiKey)

	contents := []content{}
	var systemInstruction *content

	for _, msg := range messages {
		if msg.Role == "system" {
			systemInstruction = &content{
				Parts: []part{{Text: msg.Content}},
			}
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: msg.Content}},
		})
	}

	reqBody := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     config.Temperature,
			"maxOutputTokens": config.MaxTokens,
		},
	}
	if systemInstruction != nil {
		reqBody["systemInstruction"] = systemInstruction
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini chat failed: %s %s", resp.Status, string(body))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", fmt.Errorf("no content in gemini response")
}
