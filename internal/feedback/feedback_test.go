package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor360/tutorvoice/internal/ai"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

type fakeChat struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeChat) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, cfg ai.ChatConfig) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func TestCorrectParsesResponse(t *testing.T) {
	chat := &fakeChat{responses: []string{
		`{"original": "yo es contento", "corrected": "yo estoy contento", "explanation": "Use estar for states.", "perfect": false}`,
	}}
	g := NewGenerator(chat, Config{Model: "gemini-2.0-flash"}, logger.NewNop())

	c, err := g.Correct(context.Background(), "Spanish", "yo es contento")
	require.NoError(t, err)
	assert.Equal(t, "yo estoy contento", c.Corrected)
	assert.False(t, c.Perfect)
	assert.Equal(t, 1, chat.calls)
}

func TestCorrectStripsMarkdownFences(t *testing.T) {
	chat := &fakeChat{responses: []string{
		"```json\n{\"original\": \"hola\", \"corrected\": \"hola\", \"explanation\": \"\", \"perfect\": true}\n```",
	}}
	g := NewGenerator(chat, Config{}, logger.NewNop())

	c, err := g.Correct(context.Background(), "Spanish", "hola")
	require.NoError(t, err)
	assert.True(t, c.Perfect)
}

func TestCorrectRetriesTransientFailures(t *testing.T) {
	chat := &fakeChat{
		errs: []error{errors.New("503"), errors.New("503"), nil},
		responses: []string{"", "",
			`{"original": "a", "corrected": "a", "explanation": "", "perfect": true}`,
		},
	}
	g := NewGenerator(chat, Config{MaxRetries: 3}, logger.NewNop())

	c, err := g.Correct(context.Background(), "French", "a")
	require.NoError(t, err)
	assert.True(t, c.Perfect)
	assert.Equal(t, 3, chat.calls)
}

func TestCorrectGivesUpAfterMaxRetries(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("boom"), errors.New("boom")}}
	g := NewGenerator(chat, Config{MaxRetries: 2}, logger.NewNop())

	_, err := g.Correct(context.Background(), "French", "a")
	require.Error(t, err)
	assert.Equal(t, 2, chat.calls)
}

func TestBackoffDelayCaps(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 6400*time.Millisecond, backoffDelay(6))
	assert.Equal(t, 6400*time.Millisecond, backoffDelay(10))
}
