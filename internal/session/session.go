// Package session runs one consultation: recording is rotated into blocks,
// every block is transcribed into the running transcript, the live copilot
// follows the transcript and finalize turns it into the document bundle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/archive"
	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/clock"
	"github.com/medicalscribe/scribe/internal/diag"
	"github.com/medicalscribe/scribe/internal/insights"
	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/notify"
	"github.com/medicalscribe/scribe/internal/recording"
	"github.com/medicalscribe/scribe/internal/scheduler"
	"github.com/medicalscribe/scribe/internal/transcriber"
	"github.com/medicalscribe/scribe/internal/transcript"
)

var (
	ErrClosed        = errors.New("session closed")
	ErrBusy          = errors.New("session busy")
	ErrNoBundle      = errors.New("consultation not finalized")
	ErrEmptyDocument = errors.New("document is empty")
	ErrInvalid       = errors.New("invalid input")

	// ErrDiscarded is returned by an operation whose session was cleared
	// before it completed.
	ErrDiscarded = errors.New("session cleared")
)

type Status string

const (
	Idle       Status = "idle"
	Recording  Status = "recording"
	Processing Status = "processing"
	Results    Status = "results"
	Failed     Status = "error"
)

type operation int

const (
	opNone operation = iota
	opStarting
	opStopping
	opFinalizing
)

type Config struct {
	Scenario    models.Scenario
	BlockPeriod time.Duration
	Insights    insights.Config
	// Persist also sends the finished consultation to the backend analysis
	// endpoint, which stores it and returns its id.
	Persist bool
}

func DefaultConfig() Config {
	return Config{
		Scenario:    models.ScenarioPS,
		BlockPeriod: scheduler.DefaultPeriod,
		Insights:    insights.DefaultConfig(),
	}
}

type Analyzer interface {
	Analyze(ctx context.Context, payload models.AnalyzeRequest) (*models.AnalyzeResponse, error)
}

type Archiver interface {
	Save(rec *archive.Record) error
}

type ProfileSource interface {
	Profile() models.PhysicianProfile
}

type Exporter interface {
	Export(profile models.PhysicianProfile, kind models.DocumentKind, content string, now time.Time) (string, error)
}

// Deps are the collaborators of a Controller. Analyzer and Archive are
// optional.
type Deps struct {
	Capture     *capture.Capture
	Transcriber transcriber.Transcriber
	Clinical    llm.Clinical
	Analyzer    Analyzer
	Archive     Archiver
	Profile     ProfileSource
	Exporter    Exporter
	Notifier    notify.Notifier
	Diag        *diag.Logger
	Clock       clock.Clock
}

// Snapshot is the page-level view of the session.
type Snapshot struct {
	SessionID      string          `json:"sessionId,omitempty"`
	Status         Status          `json:"status"`
	Recording      bool            `json:"recording"`
	Busy           bool            `json:"busy"`
	ElapsedSeconds int             `json:"elapsedSeconds"`
	Transcript     string          `json:"transcript"`
	LastError      string          `json:"lastError,omitempty"`
	Note           string          `json:"note,omitempty"`
	Scenario       models.Scenario `json:"scenario"`
	Patient        models.Patient  `json:"patient"`
	Insights       insights.State  `json:"insights"`
	Bundle         *models.Bundle  `json:"bundle,omitempty"`
	ConsultationID *int64          `json:"consultationId,omitempty"`
	ArchiveID      string          `json:"archiveId,omitempty"`
	Blocks         int             `json:"blocks"`
	PendingUploads int             `json:"pendingUploads"`
}

// run is one Recording period, from ToggleRecord to its stop.
type run struct {
	epoch      uint64
	ctx        context.Context
	uploads    sync.WaitGroup
	loop       *scheduler.Loop
	stopTicker func()
}

type Controller struct {
	cfg         Config
	capture     *capture.Capture
	sched       *scheduler.Scheduler
	transcript  *transcript.Buffer
	insights    *insights.Orchestrator
	transcriber transcriber.Transcriber
	clinical    llm.Clinical
	analyzer    Analyzer
	archive     Archiver
	profile     ProfileSource
	exporter    Exporter
	notifier    notify.Notifier
	diag        *diag.Logger
	clock       clock.Clock

	root     context.Context
	stopRoot context.CancelFunc

	// startMu keeps Clear and Close from interleaving with a device start.
	startMu sync.Mutex

	mu             sync.Mutex
	status         Status
	op             operation
	run            *run
	epoch          uint64
	epochCtx       context.Context
	epochCancel    context.CancelFunc
	sessionID      string
	elapsed        int
	pending        int
	blocks         int
	lastError      string
	note           string
	scenario       models.Scenario
	patient        models.Patient
	bundle         *models.Bundle
	consultationID *int64
	archiveID      string
	closed         bool

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.BlockPeriod <= 0 {
		cfg.BlockPeriod = scheduler.DefaultPeriod
	}
	if cfg.Scenario == "" {
		cfg.Scenario = models.ScenarioPS
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Diag == nil {
		deps.Diag = diag.Nop()
	}

	root, stop := context.WithCancel(context.Background())
	epochCtx, epochCancel := context.WithCancel(root)

	c := &Controller{
		cfg:         cfg,
		capture:     deps.Capture,
		sched:       scheduler.New(deps.Capture, deps.Clock),
		transcript:  transcript.New(),
		insights:    insights.New(cfg.Insights, deps.Clinical, deps.Clock, deps.Diag),
		transcriber: deps.Transcriber,
		clinical:    deps.Clinical,
		analyzer:    deps.Analyzer,
		archive:     deps.Archive,
		profile:     deps.Profile,
		exporter:    deps.Exporter,
		notifier:    deps.Notifier,
		diag:        deps.Diag,
		clock:       deps.Clock,
		root:        root,
		stopRoot:    stop,
		status:      Idle,
		epochCtx:    epochCtx,
		epochCancel: epochCancel,
		scenario:    cfg.Scenario,
		subs:        make(map[int]chan Snapshot),
	}

	c.insights.SetScenario(cfg.Scenario)
	c.insights.OnUpdate(func(insights.State) { c.publish() })
	c.sched.OnError = func(err error) { go c.streamLost(err) }
	c.capture.OnError = func(err error) {
		c.setNote("Microphone error: " + err.Error())
	}
	return c
}

// Reconfigure applies new block, insight and persistence settings. The block
// period takes effect at the next recording start; the current scenario is
// kept.
func (c *Controller) Reconfigure(cfg Config) {
	c.mu.Lock()
	if cfg.BlockPeriod > 0 {
		c.cfg.BlockPeriod = cfg.BlockPeriod
	}
	c.cfg.Persist = cfg.Persist
	c.cfg.Insights = cfg.Insights
	c.mu.Unlock()

	c.insights.SetConfig(cfg.Insights)
}

// ToggleRecord starts recording when the session is not recording and stops
// it otherwise. Stopping waits for the tail block and every pending upload.
func (c *Controller) ToggleRecord(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.op != opNone {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.status == Recording {
		c.mu.Unlock()
		return c.stopRecording()
	}
	c.op = opStarting
	c.mu.Unlock()

	return c.startRecording(ctx)
}

func (c *Controller) startRecording(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	epoch, epochCtx, period := c.epoch, c.epochCtx, c.cfg.BlockPeriod
	c.mu.Unlock()

	if err := c.capture.Start(ctx); err != nil {
		msg := startErrorMessage(err)
		c.mu.Lock()
		if c.epoch == epoch {
			c.op = opNone
			c.lastError = msg
		}
		c.mu.Unlock()

		log.Printf("Session: failed to start recording: %v", err)
		c.notifier.Error(msg)
		c.publish()
		return fmt.Errorf("start recording: %w", err)
	}

	r := &run{epoch: epoch, ctx: epochCtx}
	loop, err := c.sched.Run(period, func(blk capture.Block, final bool) {
		c.onBlock(r, blk, final)
	})
	if err != nil {
		c.capture.Release()
		c.mu.Lock()
		c.op = opNone
		c.mu.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	r.loop = loop
	r.stopTicker = scheduler.StartTicker(c.clock, time.Second, func(time.Time) { c.tick(r) })

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		c.teardown(r)
		return ErrDiscarded
	}
	c.run = r
	c.status = Recording
	c.op = opNone
	c.lastError = ""
	started := c.sessionID == ""
	if started {
		c.sessionID = uuid.NewString()
	}
	id, scenario := c.sessionID, c.scenario
	c.mu.Unlock()

	if started {
		c.diag.SessionStart(id, string(scenario))
	}
	log.Printf("Session: recording started (session %s)", id)
	c.notifier.RecordingStarted()
	c.publish()
	return nil
}

func startErrorMessage(err error) string {
	switch {
	case errors.Is(err, recording.ErrPermissionDenied):
		return apierr.UserMessage(&apierr.Error{Kind: apierr.KindPermission, Err: err})
	case errors.Is(err, recording.ErrNoDevice):
		return "No microphone found."
	case errors.Is(err, recording.ErrAlreadyRecording):
		return "Microphone is in use by another program."
	}
	return "Could not start recording: " + err.Error()
}

func (c *Controller) stopRecording() error {
	c.mu.Lock()
	r := c.run
	if c.status != Recording || r == nil {
		c.mu.Unlock()
		return nil
	}
	c.status = Processing
	c.op = opStopping
	c.mu.Unlock()

	log.Printf("Session: stopping recording")
	c.notifier.RecordingEnded()
	c.publish()

	if !c.halt(r) {
		return ErrDiscarded
	}

	c.mu.Lock()
	c.run = nil
	c.op = opNone
	c.status = c.restingStatus()
	c.mu.Unlock()

	log.Printf("Session: recording stopped")
	c.publish()
	return nil
}

// restingStatus is where a stopped session settles.
func (c *Controller) restingStatus() Status {
	if c.bundle != nil {
		return Results
	}
	return Idle
}

// halt ends r: the tail block is delivered, pending uploads drain and the
// device is released. It reports whether r's session is still current.
func (c *Controller) halt(r *run) bool {
	r.loop.Cancel()
	if r.stopTicker != nil {
		r.stopTicker()
	}
	r.uploads.Wait()

	c.mu.Lock()
	current := r.epoch == c.epoch
	c.mu.Unlock()

	// a Clear has already released the device, possibly for a newer run
	if current {
		if err := c.capture.Release(); err != nil {
			log.Printf("Session: error releasing capture: %v", err)
		}
	}
	return current
}

// teardown stops everything r holds without waiting for uploads.
func (c *Controller) teardown(r *run) {
	if r != nil {
		r.loop.Cancel()
		if r.stopTicker != nil {
			r.stopTicker()
		}
	}
	if err := c.capture.Release(); err != nil {
		log.Printf("Session: error releasing capture: %v", err)
	}
	c.sched.Reset()
}

func (c *Controller) streamLost(err error) {
	c.mu.Lock()
	if c.status != Recording || c.op != opNone {
		c.mu.Unlock()
		return
	}
	c.lastError = "Recording interrupted: microphone unavailable."
	c.mu.Unlock()

	log.Printf("Session: audio stream lost: %v", err)
	c.notifier.Error("Recording interrupted: microphone unavailable.")
	if err := c.stopRecording(); err != nil {
		log.Printf("Session: error stopping after stream loss: %v", err)
	}
}

func (c *Controller) tick(r *run) {
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) onBlock(r *run, blk capture.Block, final bool) {
	if blk.Empty() {
		return
	}

	c.mu.Lock()
	if r.epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.pending++
	c.blocks++
	r.uploads.Add(1)
	c.mu.Unlock()

	if final {
		log.Printf("Session: uploading tail block %d (%d bytes)", blk.Index, len(blk.Bytes))
	}
	c.publish()
	go c.upload(r, blk)
}

func (c *Controller) upload(r *run, blk capture.Block) {
	defer r.uploads.Done()

	start := time.Now()
	text, err := c.transcriber.Transcribe(r.ctx, blk)
	latency := time.Since(start)

	c.mu.Lock()
	if r.epoch != c.epoch {
		c.mu.Unlock()
		log.Printf("Session: dropping block %d of a cleared session", blk.Index)
		return
	}
	c.pending--

	if err != nil {
		note := fmt.Sprintf("Block %d not transcribed: %s", blk.Index+1, apierr.UserMessage(err))
		c.note = note
		c.mu.Unlock()

		log.Printf("Session: transcription of block %d failed: %v", blk.Index, err)
		c.diag.BlockFailed(blk.Index, apierr.KindOf(err).String(), err)
		c.notifier.Notify("Transcription", note)
		c.publish()
		return
	}

	changed := c.transcript.Append(blk.Index, text)
	snapshot := c.transcript.Snapshot()
	c.mu.Unlock()

	c.diag.Block(blk.Index, len(blk.Bytes), blk.Duration(), latency, utf8.RuneCountInString(text))
	if changed {
		c.insights.OnTranscriptChanged(snapshot)
	}
	c.publish()
}

// Finalize stops recording if needed and systematizes the transcript. An
// empty transcript makes it a no-op. On failure the session moves to the
// error status with the transcript intact.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.op != opNone {
		c.mu.Unlock()
		return ErrBusy
	}
	r := c.run
	recordingNow := c.status == Recording && r != nil
	if !recordingNow && strings.TrimSpace(c.transcript.Snapshot()) == "" {
		c.mu.Unlock()
		return nil
	}
	c.op = opFinalizing
	c.status = Processing
	c.mu.Unlock()
	c.publish()

	if recordingNow {
		c.notifier.RecordingEnded()
		if !c.halt(r) {
			return ErrDiscarded
		}
	}

	c.mu.Lock()
	c.run = nil
	text := c.transcript.Snapshot()
	if strings.TrimSpace(text) == "" {
		c.op = opNone
		c.status = c.restingStatus()
		c.mu.Unlock()
		c.publish()
		return nil
	}
	epoch := c.epoch
	scenario, patient, persist := c.scenario, c.patient, c.cfg.Persist
	c.lastError = ""
	c.mu.Unlock()
	c.publish()

	log.Printf("Session: systematizing %d characters", utf8.RuneCountInString(text))
	// a finalize outlives the caller; a Clear drops its result instead
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	bundle, err := c.clinical.Systematize(callCtx, text, scenario)
	c.diag.Finalize(utf8.RuneCountInString(text), time.Since(start), err)

	var consultationID *int64
	var persistNote string
	if err == nil && persist && c.analyzer != nil {
		consultationID, persistNote = c.persist(callCtx, text, scenario, patient)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		log.Printf("Session: dropping finalize result of a cleared session")
		return ErrDiscarded
	}
	c.op = opNone

	if err != nil {
		c.status = Failed
		c.lastError = apierr.UserMessage(err)
		msg := c.lastError
		c.mu.Unlock()

		log.Printf("Session: finalize failed: %v", err)
		c.notifier.Error(msg)
		c.publish()
		return fmt.Errorf("systematize: %w", err)
	}

	c.bundle = &bundle
	c.consultationID = consultationID
	if persistNote != "" {
		c.note = persistNote
	}
	c.status = Results
	rec := &archive.Record{
		SessionID:      c.sessionID,
		CreatedAt:      c.clock.Now(),
		PatientName:    patient.Name,
		PatientAge:     patient.Age,
		Scenario:       scenario,
		Elapsed:        time.Duration(c.elapsed) * time.Second,
		Transcript:     text,
		Insight:        c.insights.State().Insight,
		Bundle:         bundle,
		ConsultationID: consultationID,
	}
	c.mu.Unlock()

	if c.archive != nil {
		if err := c.archive.Save(rec); err != nil {
			log.Printf("Session: failed to archive consultation: %v", err)
		} else {
			c.mu.Lock()
			if c.epoch == epoch {
				c.archiveID = rec.ID
			}
			c.mu.Unlock()
		}
	}

	log.Printf("Session: consultation finalized")
	c.notifier.Finalized(bundle.Count())
	c.publish()
	return nil
}

func (c *Controller) persist(ctx context.Context, text string, scenario models.Scenario, patient models.Patient) (*int64, string) {
	resp, err := c.analyzer.Analyze(ctx, models.AnalyzeRequest{
		NomeCompleto:       patient.Name,
		Idade:              patient.Age,
		CenarioAtendimento: string(scenario),
		TextoTranscrito:    text,
	})
	if err != nil {
		log.Printf("Session: failed to persist consultation: %v", err)
		return nil, "Consultation not saved on the server: " + apierr.UserMessage(err)
	}
	if resp.ConsultationID == nil {
		return nil, ""
	}
	log.Printf("Session: consultation persisted with id %d", *resp.ConsultationID)
	return resp.ConsultationID, ""
}

// Clear returns the session to idle from any status: capture and timers stop,
// in-flight responses are dropped and the transcript, patient fields,
// elapsed time, insight and documents are discarded.
func (c *Controller) Clear() {
	c.startMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.startMu.Unlock()
		return
	}
	r := c.resetLocked("cleared")
	c.mu.Unlock()

	// a start waits until the old loop and device are gone
	c.teardown(r)
	c.startMu.Unlock()
	c.insights.Reset()
	log.Printf("Session: cleared")
	c.publish()
}

// Close tears the session down like Clear and refuses further operations.
func (c *Controller) Close() {
	c.startMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.startMu.Unlock()
		return
	}
	r := c.resetLocked("closed")
	c.closed = true
	c.mu.Unlock()

	c.teardown(r)
	c.startMu.Unlock()
	c.insights.Close()
	c.stopRoot()

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
	log.Printf("Session: closed")
}

func (c *Controller) resetLocked(reason string) *run {
	r := c.run
	c.run = nil

	if c.sessionID != "" {
		c.diag.SessionEnd(c.sessionID, reason, c.blocks, time.Duration(c.elapsed)*time.Second)
	}

	c.epoch++
	c.epochCancel()
	c.epochCtx, c.epochCancel = context.WithCancel(c.root)

	c.transcript.Clear()
	c.status = Idle
	c.op = opNone
	c.sessionID = ""
	c.elapsed = 0
	c.pending = 0
	c.blocks = 0
	c.lastError = ""
	c.note = ""
	c.patient = models.Patient{}
	c.bundle = nil
	c.consultationID = nil
	c.archiveID = ""
	return r
}

// SetPatient updates the patient header fields.
func (c *Controller) SetPatient(name string, age int) error {
	if age < 0 || age > 150 {
		return fmt.Errorf("%w: patient age %d out of range", ErrInvalid, age)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.patient = models.Patient{Name: strings.TrimSpace(name), Age: age}
	c.mu.Unlock()
	c.publish()
	return nil
}

// SetScenario changes the care setting sent with every AI request.
func (c *Controller) SetScenario(s models.Scenario) error {
	s, err := models.ParseScenario(string(s))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.scenario = s
	c.mu.Unlock()

	c.insights.SetScenario(s)
	c.publish()
	return nil
}

// Export renders one document of the finalized bundle to a PDF and returns
// its path.
func (c *Controller) Export(kind models.DocumentKind) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	bundle := c.bundle
	c.mu.Unlock()

	if bundle == nil {
		return "", ErrNoBundle
	}
	content, ok := bundle.Document(kind)
	if !ok {
		return "", fmt.Errorf("%w: unknown document %q", ErrInvalid, kind)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%s: %w", kind, ErrEmptyDocument)
	}

	var profile models.PhysicianProfile
	if c.profile != nil {
		profile = c.profile.Profile()
	}
	return c.exporter.Export(profile, kind, content, c.clock.Now())
}

func (c *Controller) setNote(note string) {
	c.mu.Lock()
	c.note = note
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:      c.sessionID,
		Status:         c.status,
		Recording:      c.status == Recording,
		Busy:           c.op != opNone || c.pending > 0,
		ElapsedSeconds: c.elapsed,
		Transcript:     c.transcript.Snapshot(),
		LastError:      c.lastError,
		Note:           c.note,
		Scenario:       c.scenario,
		Patient:        c.patient,
		Insights:       c.insights.State(),
		ConsultationID: c.consultationID,
		ArchiveID:      c.archiveID,
		Blocks:         c.blocks,
		PendingUploads: c.pending,
	}
	if c.bundle != nil {
		b := *c.bundle
		snap.Bundle = &b
	}
	return snap
}

// Subscribe returns a channel that receives the current snapshot and then
// the latest one after every change. Slow readers only miss intermediate
// snapshots. The channel is closed by cancel or by Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	c.mu.Lock()
	closed := c.closed
	if !closed {
		ch <- c.snapshotLocked()
	}
	c.mu.Unlock()
	if closed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
