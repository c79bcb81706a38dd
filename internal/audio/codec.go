package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the microphone capture rate sent upstream.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of audio returned by the model.
	PlaybackSampleRate = 24000
	// Channels is the channel count on both paths.
	Channels = 1
	// CaptureFrameSamples is the fixed per-channel frame size captured
	// from the microphone before encoding.
	CaptureFrameSamples = 4096
)

// Buffer holds decoded PCM as interleaved float32 samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   int
	Data       []float32
}

// Frames returns the per-channel sample count.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// ChannelData returns the samples of a single channel.
func (b *Buffer) ChannelData(ch int) []float32 {
	if ch < 0 || ch >= b.Channels {
		return nil
	}
	out := make([]float32, 0, b.Frames())
	for i := ch; i < len(b.Data); i += b.Channels {
		out = append(out, b.Data[i])
	}
	return out
}

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding audio frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding audio frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeFrame converts float samples to base64-wrapped little-endian PCM16.
// Samples outside [-1, 1] are clamped before quantization.
func EncodeFrame(samples []float32) string {
	if len(samples) == 0 {
		return ""
	}
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(v)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeFrame converts base64-wrapped little-endian PCM16 into a Buffer.
// An empty payload yields an empty buffer rather than an error.
func DecodeFrame(encoded string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(raw))}
	}
	data := make([]float32, len(raw)/2)
	for i := range data {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		data[i] = float32(v) / 32768
	}
	return &Buffer{SampleRate: sampleRate, Channels: channels, Data: data}, nil
}
