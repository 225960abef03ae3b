package recording

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

// PulseSource records through the native PulseAudio protocol, which
// PipeWire also serves, without spawning a helper process.
type PulseSource struct {
	config    Config
	recording atomic.Bool

	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.RecordStream
	frames chan AudioFrame
	errs   chan error
	stop   chan struct{}
	done   chan struct{}
}

func NewPulseSource(config Config) *PulseSource {
	return &PulseSource{config: config}
}

func (p *PulseSource) IsRecording() bool {
	return p.recording.Load()
}

func (p *PulseSource) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.recording.Load() {
		return nil, nil, ErrAlreadyRecording
	}
	if err := p.config.validate(); err != nil {
		return nil, nil, err
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName("scribe"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: pulse: %v", ErrNoDevice, err)
	}

	frames := make(chan AudioFrame, p.config.ChannelBufferSize)
	errs := make(chan error, 1)

	var dropped atomic.Int64
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		data := make([]byte, len(buf)*BytesPerSample)
		for i, s := range buf {
			binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(s))
		}
		select {
		case frames <- AudioFrame{Data: data, Timestamp: time.Now()}:
		default:
			if dropped.Add(1)%50 == 1 {
				log.Printf("Recording: pulse dropped frames due to backpressure")
			}
		}
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(p.config.SampleRate),
		pulse.RecordLatency(0.05),
	}
	if p.config.Channels == 1 {
		opts = append(opts, pulse.RecordMono)
	} else {
		opts = append(opts, pulse.RecordStereo)
	}
	if p.config.Device != "" {
		source, err := client.SourceByID(p.config.Device)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("%w: pulse source %q: %v", ErrNoDevice, p.config.Device, err)
		}
		opts = append(opts, pulse.RecordSource(source))
	}

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		if isPermissionMessage(err.Error()) {
			return nil, nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, nil, fmt.Errorf("pulse record: %w", err)
	}

	p.client = client
	p.stream = stream
	p.frames = frames
	p.errs = errs
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.recording.Store(true)

	stop, done := p.stop, p.done
	go func() {
		defer close(done)
		stream.Start()
		select {
		case <-stop:
		case <-ctx.Done():
		}
		stream.Stop()
		stream.Close()
		client.Close()
		close(frames)
		close(errs)
		p.recording.Store(false)
	}()

	return frames, errs, nil
}

func (p *PulseSource) Stop() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop = nil
	p.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}
