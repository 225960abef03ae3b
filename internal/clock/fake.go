package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Tickers and timers fire from within
// Advance, in time order. Timer callbacks run synchronously; ticks are
// delivered with a blocking send so the consumer has received each tick
// before Advance moves on.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:   f,
		period:  d,
		next:    f.now.Add(d),
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every ticker and timer that
// falls due on the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		tk, tm, at := f.nextDue(target)
		if tk == nil && tm == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at
		if tm != nil {
			f.removeTimer(tm)
			f.mu.Unlock()
			tm.fn()
			continue
		}
		tk.next = tk.next.Add(tk.period)
		f.mu.Unlock()

		select {
		case tk.ch <- at:
		case <-tk.stopped:
		}
	}
}

// Pending reports how many timers are armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDue(target time.Time) (*fakeTicker, *fakeTimer, time.Time) {
	var (
		bestTicker *fakeTicker
		bestTimer  *fakeTimer
		best       time.Time
	)
	for _, t := range f.tickers {
		if t.next.After(target) {
			continue
		}
		if bestTicker == nil && bestTimer == nil || t.next.Before(best) {
			bestTicker, bestTimer, best = t, nil, t.next
		}
	}
	for _, t := range f.timers {
		if t.at.After(target) {
			continue
		}
		if bestTicker == nil && bestTimer == nil || t.at.Before(best) {
			bestTicker, bestTimer, best = nil, t, t.at
		}
	}
	return bestTicker, bestTimer, best
}

func (f *Fake) removeTimer(t *fakeTimer) bool {
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Fake) removeTicker(t *fakeTicker) {
	for i, other := range f.tickers {
		if other == t {
			f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock    *Fake
	period   time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.clock.mu.Lock()
		t.clock.removeTicker(t)
		t.clock.mu.Unlock()
	})
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeTimer(t)
}
