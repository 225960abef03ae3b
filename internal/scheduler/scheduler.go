// Package scheduler rotates the capture into fixed-cadence blocks and runs
// the elapsed-time ticker.
package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/clock"
)

const DefaultPeriod = 5 * time.Second

var ErrRunning = errors.New("scheduler already running")

// Rotator is the part of the capture the scheduler drives.
type Rotator interface {
	Rotate() (capture.Block, error)
	Stop() capture.Block
}

// BlockFunc receives every block in index order. final is set on the block
// that ends the run.
type BlockFunc func(blk capture.Block, final bool)

type Scheduler struct {
	capture Rotator
	clock   clock.Clock

	// OnError is called when a rotation cannot restart the capture. The run
	// ends after the block in hand has been delivered as final.
	OnError func(error)

	mu      sync.Mutex
	running bool
	next    int
	current *Loop
}

// Loop is one rotation run. Cancelling a Loop never touches a later run of
// the same Scheduler.
type Loop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Cancel ends the loop. A tick in progress completes first, then the tail
// block is delivered with final set. Cancel returns once it has been.
func (l *Loop) Cancel() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.stop) })
	<-l.done
}

// Done is closed when the loop has delivered its final block.
func (l *Loop) Done() <-chan struct{} { return l.done }

func New(c Rotator, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{capture: c, clock: clk}
}

// Run starts rotating every period. It returns immediately.
func (s *Scheduler) Run(period time.Duration, onBlock BlockFunc) (*Loop, error) {
	if period <= 0 {
		period = DefaultPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunning
	}
	s.running = true
	l := &Loop{stop: make(chan struct{}), done: make(chan struct{})}
	s.current = l

	ticker := s.clock.NewTicker(period)
	go s.loop(ticker, l, onBlock)
	return l, nil
}

func (s *Scheduler) loop(ticker clock.Ticker, l *Loop, onBlock BlockFunc) {
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.running = false
		if s.current == l {
			s.current = nil
		}
		s.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ticker.C():
			blk, err := s.capture.Rotate()
			blk.Index = s.nextIndex()
			if err != nil {
				log.Printf("Scheduler: rotation failed at block %d: %v", blk.Index, err)
				onBlock(blk, true)
				if s.OnError != nil {
					s.OnError(err)
				}
				return
			}
			onBlock(blk, false)
		case <-l.stop:
			blk := s.capture.Stop()
			blk.Index = s.nextIndex()
			onBlock(blk, true)
			return
		}
	}
}

func (s *Scheduler) nextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.next
	s.next++
	return i
}

// Cancel ends whichever loop is currently running.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	l := s.current
	s.mu.Unlock()
	l.Cancel()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reset restarts block numbering at zero. It has no effect while running.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.next = 0
	}
}

// NextIndex is the index the next block will receive.
func (s *Scheduler) NextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// StartTicker calls fn every interval until the returned stop is called.
// stop waits for a running fn to return.
func StartTicker(clk clock.Clock, interval time.Duration, fn func(time.Time)) (stop func()) {
	if clk == nil {
		clk = clock.Real{}
	}
	ticker := clk.NewTicker(interval)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case now := <-ticker.C():
				fn(now)
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			ticker.Stop()
			<-done
		})
	}
}
