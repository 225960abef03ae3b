// Package insights drives the live copilot: it waits for the transcript to
// settle, sends at most one analysis at a time and keeps only the newest
// answer.
package insights

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/clock"
	"github.com/medicalscribe/scribe/internal/diag"
	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/models"
)

type Config struct {
	QuietPeriod time.Duration
	MinChars    int
}

func DefaultConfig() Config {
	return Config{QuietPeriod: 3500 * time.Millisecond, MinChars: 10}
}

// State is what the UI shows. Insight survives failed requests; LastError
// holds the message of the most recent failure and clears on success.
type State struct {
	Insight    string `json:"insight"`
	LastError  string `json:"lastError,omitempty"`
	Generation uint64 `json:"generation"`
	Pending    bool   `json:"pending"`
	Loading    bool   `json:"loading"`
}

type Orchestrator struct {
	cfg     Config
	copilot llm.Copilot
	clock   clock.Clock
	diag    *diag.Logger

	root     context.Context
	stopRoot context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	scenario models.Scenario
	latest   string
	lastSent string
	timer    clock.Timer
	timerSeq uint64
	gen      uint64
	cancel   context.CancelFunc
	state    State
	onUpdate func(State)
	closed   bool
}

func New(cfg Config, copilot llm.Copilot, clk clock.Clock, dl *diag.Logger) *Orchestrator {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultConfig().QuietPeriod
	}
	if cfg.MinChars < 0 {
		cfg.MinChars = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	root, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		copilot:  copilot,
		clock:    clk,
		diag:     dl,
		root:     root,
		stopRoot: stop,
		scenario: models.ScenarioPS,
	}
}

// OnUpdate registers the callback invoked after every state change. It runs
// outside the orchestrator's lock.
func (o *Orchestrator) OnUpdate(fn func(State)) {
	o.mu.Lock()
	o.onUpdate = fn
	o.mu.Unlock()
}

func (o *Orchestrator) SetScenario(s models.Scenario) {
	o.mu.Lock()
	o.scenario = s
	o.mu.Unlock()
}

// SetConfig applies to the next quiet period.
func (o *Orchestrator) SetConfig(cfg Config) {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultConfig().QuietPeriod
	}
	if cfg.MinChars < 0 {
		cfg.MinChars = 0
	}
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

// OnTranscriptChanged restarts the quiet period with text as the candidate.
func (o *Orchestrator) OnTranscriptChanged(text string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.latest = text
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timerSeq++
	seq := o.timerSeq
	o.timer = o.clock.AfterFunc(o.cfg.QuietPeriod, func() { o.fire(seq) })
	o.state.Pending = true
	st, fn := o.state, o.onUpdate
	o.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

func (o *Orchestrator) fire(seq uint64) {
	o.mu.Lock()
	if o.closed || seq != o.timerSeq {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.state.Pending = false
	text := o.latest

	if !o.eligible(text) {
		st, fn := o.state, o.onUpdate
		o.mu.Unlock()
		if fn != nil {
			fn(st)
		}
		return
	}

	o.lastSent = text
	o.gen++
	gen := o.gen
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(o.root)
	o.cancel = cancel
	scenario := o.scenario
	o.state.Loading = true
	st, fn := o.state, o.onUpdate
	o.wg.Add(1)
	o.mu.Unlock()

	if fn != nil {
		fn(st)
	}
	go o.request(ctx, gen, text, scenario)
}

func (o *Orchestrator) eligible(text string) bool {
	if text == o.lastSent {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) > o.cfg.MinChars
}

func (o *Orchestrator) request(ctx context.Context, gen uint64, text string, scenario models.Scenario) {
	defer o.wg.Done()

	start := time.Now()
	insight, err := o.copilot.Copilot(ctx, text, scenario)
	latency := time.Since(start)

	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		o.diag.InsightDropped(gen, "superseded")
		return
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state.Loading = false
	o.state.Generation = gen

	if err != nil {
		// only our own cancellation is a drop; a timeout is a failure to show
		if ctx.Err() != nil && apierr.IsCancelled(err) {
			st, fn := o.state, o.onUpdate
			o.mu.Unlock()
			o.diag.InsightDropped(gen, "cancelled")
			if fn != nil {
				fn(st)
			}
			return
		}
		o.state.LastError = apierr.UserMessage(err)
		st, fn := o.state, o.onUpdate
		o.mu.Unlock()

		log.Printf("Insights: generation %d failed: %v", gen, err)
		o.diag.InsightFailed(gen, apierr.KindOf(err).String(), err)
		if fn != nil {
			fn(st)
		}
		return
	}

	o.state.Insight = insight
	o.state.LastError = ""
	st, fn := o.state, o.onUpdate
	o.mu.Unlock()

	o.diag.Insight(gen, utf8.RuneCountInString(insight), latency)
	if fn != nil {
		fn(st)
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset drops the pending timer, any in-flight request and the shown
// insight. Responses that arrive afterwards are ignored.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.resetLocked()
	st, fn := o.state, o.onUpdate
	o.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

func (o *Orchestrator) resetLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerSeq++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	o.latest = ""
	o.lastSent = ""
	o.state = State{}
}

// Close resets and waits for in-flight requests to return. The orchestrator
// ignores further input.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.resetLocked()
	o.closed = true
	o.mu.Unlock()

	o.stopRoot()
	o.wg.Wait()
}
