package recording

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNoDevice         = errors.New("no audio input device")
	ErrPermissionDenied = errors.New("microphone permission denied")
)

type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Source is a live microphone stream. Start opens the device and returns a
// frame channel that is closed when the stream ends; Stop releases the device.
type Source interface {
	Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error)
	Stop() error
	IsRecording() bool
}

type Config struct {
	Backend           string
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		Backend:           "pipewire",
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        8192,
		Device:            "",
		ChannelBufferSize: 30,
	}
}

// BytesPerSample of the signed 16-bit little-endian PCM every source emits.
const BytesPerSample = 2

// NewSource picks the capture backend named in config.
func NewSource(config Config) (Source, error) {
	switch config.Backend {
	case "", "pipewire":
		return NewRecorder(config), nil
	case "pulse":
		return NewPulseSource(config), nil
	default:
		return nil, fmt.Errorf("unsupported recording backend: %s", config.Backend)
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	if c.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
