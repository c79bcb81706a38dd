package audio

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutor360/tutorvoice/pkg/logger"
)

func TestFailedOpenReportsFreshStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	// sh rejects the ffmpeg flags and exits immediately, exercising the
	// early-exit path with stderr output on every attempt.
	capture := NewMicCapture(CaptureConfig{
		FFmpegPath:  sh,
		InputFormat: "alsa",
		Device:      "nonexistent",
	}, logger.NewNop())

	err1 := capture.Start(context.Background())
	require.Error(t, err1)
	err2 := capture.Start(context.Background())
	require.Error(t, err2)

	// The second failure must not carry the first attempt's output.
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	capture := NewMicCapture(CaptureConfig{FFmpegPath: "ffmpeg"}, logger.NewNop())
	capture.Stop()
	assert.NoError(t, capture.Err())
}
