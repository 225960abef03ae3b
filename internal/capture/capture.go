// Package capture turns a live microphone stream into discrete, independently
// decodable audio blocks.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/medicalscribe/scribe/internal/clock"
	"github.com/medicalscribe/scribe/internal/recording"
)

var ErrNotRecording = errors.New("not recording")

// Block is one contiguous slice of captured audio.
type Block struct {
	Index     int
	StartedAt time.Time
	EndedAt   time.Time
	MediaType string
	Bytes     []byte
}

func (b Block) Empty() bool { return len(b.Bytes) == 0 }

func (b Block) Duration() time.Duration { return b.EndedAt.Sub(b.StartedAt) }

// Filename is the upload name, derived from the media type.
func (b Block) Filename() string {
	switch b.MediaType {
	case MediaTypeWAV:
		return "recording.wav"
	case "audio/webm":
		return "recording.webm"
	case "audio/ogg":
		return "recording.ogg"
	}
	return "recording.bin"
}

// Capture accumulates frames from a Source into the current block. The device
// stream is acquired on the first Start and held across Stop/Start pairs until
// Release.
type Capture struct {
	source recording.Source
	clock  clock.Clock
	format Format

	// OnError receives stream failures reported by the source after Start.
	OnError func(error)

	mu        sync.Mutex
	holding   bool
	recording bool
	buf       bytes.Buffer
	startedAt time.Time
	cancel    context.CancelFunc
	pumpDone  chan struct{}
}

func New(source recording.Source, clk clock.Clock, format Format) *Capture {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Capture{source: source, clock: clk, format: format}
}

// Start begins a new block, acquiring the device stream if it is not held.
// Starting while already recording is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return nil
	}
	if !c.holding {
		if err := c.acquireLocked(ctx); err != nil {
			return err
		}
	}
	c.beginLocked()
	return nil
}

func (c *Capture) acquireLocked(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, errs, err := c.source.Start(streamCtx)
	if errors.Is(err, recording.ErrAlreadyRecording) {
		cancel()
		return fmt.Errorf("audio source held elsewhere: %w", err)
	}
	if err != nil {
		cancel()
		return err
	}

	c.holding = true
	c.cancel = cancel
	c.pumpDone = make(chan struct{})
	go c.pump(frames, errs, c.pumpDone)
	return nil
}

func (c *Capture) beginLocked() {
	c.buf.Reset()
	c.startedAt = c.clock.Now()
	c.recording = true
}

func (c *Capture) pump(frames <-chan recording.AudioFrame, errs <-chan error, done chan struct{}) {
	defer close(done)
	for frames != nil || errs != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			c.mu.Lock()
			if c.recording {
				c.buf.Write(frame.Data)
			}
			c.mu.Unlock()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("Capture: stream error: %v", err)
			if c.OnError != nil {
				c.OnError(err)
			}
		}
	}

	c.mu.Lock()
	c.holding = false
	c.mu.Unlock()
}

// Stop closes the current block. When not recording it returns an empty
// block. The device stream stays held.
func (c *Capture) Stop() Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Capture) stopLocked() Block {
	if !c.recording {
		return Block{}
	}
	c.recording = false

	end := c.clock.Now()
	blk := Block{StartedAt: c.startedAt, EndedAt: end, MediaType: MediaTypeWAV}
	if c.buf.Len() == 0 {
		return blk
	}

	pcm := make([]byte, c.buf.Len())
	copy(pcm, c.buf.Bytes())
	c.buf.Reset()

	blk.Bytes = EncodeWAV(pcm, c.format)
	if !blk.EndedAt.After(blk.StartedAt) {
		blk.EndedAt = blk.StartedAt.Add(max(c.format.Duration(len(pcm)), time.Nanosecond))
	}
	return blk
}

// Rotate closes the current block and opens the next one under a single lock,
// so every frame lands in exactly one of them.
func (c *Capture) Rotate() (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recording {
		return Block{}, ErrNotRecording
	}
	blk := c.stopLocked()
	if !c.holding {
		return blk, fmt.Errorf("restart capture: %w", recording.ErrNoDevice)
	}
	c.beginLocked()
	return blk, nil
}

// Release ends any open block and gives the device stream back.
func (c *Capture) Release() error {
	c.mu.Lock()
	c.stopLocked()
	c.buf.Reset()
	holding := c.holding
	cancel := c.cancel
	done := c.pumpDone
	c.cancel = nil
	c.mu.Unlock()

	if !holding && done == nil {
		return nil
	}

	err := c.source.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.holding = false
	c.pumpDone = nil
	c.mu.Unlock()
	return err
}

func (c *Capture) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Holding reports whether the device stream is acquired.
func (c *Capture) Holding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holding
}

// Buffered is the number of PCM bytes in the open block.
func (c *Capture) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}
