// Package daemon owns the consultation session and serves it over the
// control socket and the local HTTP API.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/medicalscribe/scribe/internal/archive"
	"github.com/medicalscribe/scribe/internal/bus"
	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/clock"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/deps"
	"github.com/medicalscribe/scribe/internal/diag"
	"github.com/medicalscribe/scribe/internal/httpapi"
	"github.com/medicalscribe/scribe/internal/insights"
	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/notify"
	"github.com/medicalscribe/scribe/internal/pdf"
	"github.com/medicalscribe/scribe/internal/profile"
	"github.com/medicalscribe/scribe/internal/recording"
	"github.com/medicalscribe/scribe/internal/session"
	"github.com/medicalscribe/scribe/internal/storage"
	"github.com/medicalscribe/scribe/internal/transcriber"
)

const (
	archiveFile = "consultations.db"
	storeDir    = "store"
)

// Options replace parts of the daemon that normally come from the
// configuration. Zero values mean "build from config".
type Options struct {
	ConfigPath  string
	Source      recording.Source
	Clock       clock.Clock
	Transcriber transcriber.Transcriber
	Clinical    llm.Clinical
	Notifier    notify.Notifier
}

type Daemon struct {
	cfgMgr    *config.Manager
	providers *providers
	keep      fixed

	store    storage.Store
	profiles *profile.Service
	archive  *archive.Store
	diag     *diag.Logger
	capture  *capture.Capture
	exporter *exporter
	session  *session.Controller
	api      *httpapi.Server

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func New() (*Daemon, error) {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) (*Daemon, error) {
	var (
		mgr *config.Manager
		err error
	)
	if opts.ConfigPath != "" {
		mgr, err = config.NewManagerAt(opts.ConfigPath)
	} else {
		mgr, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.GetConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir, err := cfg.GetDataDir()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfgMgr:    mgr,
		providers: &providers{},
		keep: fixed{
			transcriber: opts.Transcriber,
			clinical:    opts.Clinical,
			notifier:    opts.Notifier,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	ok := false
	defer func() {
		if !ok {
			d.closeResources()
		}
	}()

	if d.diag, err = diag.Open(dataDir); err != nil {
		log.Printf("Daemon: diagnostics log disabled: %v", err)
		d.diag = diag.Nop()
	}

	if d.store, err = storage.Open(filepath.Join(dataDir, storeDir)); err != nil {
		return nil, err
	}
	d.profiles = profile.New(d.store)

	if cfg.Session.Archive {
		if d.archive, err = archive.Open(filepath.Join(dataDir, archiveFile)); err != nil {
			return nil, err
		}
	}

	if err := d.providers.apply(cfg, d.keep, d.profiles.DoctorName); err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		if source, err = recording.NewSource(cfg.ToRecordingConfig()); err != nil {
			return nil, fmt.Errorf("audio source: %w", err)
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	d.capture = capture.New(source, clk, capture.Format{SampleRate: cfg.Recording.SampleRate, Channels: cfg.Recording.Channels})

	d.exporter = &exporter{}
	d.exporter.set(pdf.New(cfg.ToPDFOptions()))

	deps := session.Deps{
		Capture:     d.capture,
		Transcriber: d.providers,
		Clinical:    d.providers,
		Analyzer:    d.providers,
		Profile:     d.profiles,
		Exporter:    d.exporter,
		Notifier:    d.providers,
		Diag:        d.diag,
		Clock:       clk,
	}
	// a nil *archive.Store must not become a non-nil interface
	if d.archive != nil {
		deps.Archive = d.archive
	}
	d.session = session.New(sessionConfig(cfg), deps)

	var history httpapi.History
	if d.archive != nil {
		history = d.archive
	}
	d.api = httpapi.New(d.session, d.profiles, history)

	d.cfgMgr.OnReload(d.reload)

	ok = true
	return d, nil
}

func sessionConfig(cfg *config.Config) session.Config {
	scenario, err := models.ParseScenario(cfg.Session.Scenario)
	if err != nil {
		scenario = models.ScenarioPS
	}
	return session.Config{
		Scenario:    scenario,
		BlockPeriod: cfg.Recording.BlockPeriod,
		Insights: insights.Config{
			QuietPeriod: cfg.Copilot.QuietPeriod,
			MinChars:    cfg.Copilot.MinChars,
		},
		Persist: cfg.Session.Persist,
	}
}

// Session is the controller this daemon serves.
func (d *Daemon) Session() *session.Controller { return d.session }

// APIAddr is the bound HTTP address while Run is active, empty when the API
// is disabled.
func (d *Daemon) APIAddr() string { return d.api.Addr() }

// Stop asks Run to return.
func (d *Daemon) Stop() { d.cancel() }

func warnMissingTools(recordingBackend string) {
	for _, status := range deps.CheckAll(deps.ToolsFor(recordingBackend)) {
		switch {
		case status.Installed:
		case status.Required:
			log.Printf("Daemon: %s not found, %s will fail", status.Name, status.Purpose)
		default:
			log.Printf("Daemon: %s not found, %s unavailable", status.Name, status.Purpose)
		}
	}
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	defer d.closeResources()
	defer d.session.Close()

	warnMissingTools(d.cfgMgr.GetConfig().Recording.Backend)

	if err := d.cfgMgr.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config hot reload disabled: %v", err)
	}
	defer d.cfgMgr.Stop()

	if listen := d.cfgMgr.GetConfig().HTTP.Listen; listen != "" {
		if err := d.api.Start(listen); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := d.api.Shutdown(ctx); err != nil {
				log.Printf("Daemon: HTTP shutdown: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) closeResources() {
	d.closeOnce.Do(d.close)
}

func (d *Daemon) close() {
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			log.Printf("Daemon: error closing archive: %v", err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("Daemon: error closing store: %v", err)
		}
	}
	if d.diag != nil {
		d.diag.Close()
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	req, err := bus.ParseRequest(line)
	if err != nil {
		fmt.Fprintf(c, "ERR %v\n", err)
		return
	}

	switch req.Cmd {
	case bus.CmdToggle:
		if err := d.session.ToggleRecord(d.ctx); err != nil {
			d.replyError(c, err)
			return
		}
		fmt.Fprintf(c, "OK status=%s\n", d.session.Snapshot().Status)
	case bus.CmdFinalize:
		if err := d.session.Finalize(d.ctx); err != nil {
			d.replyError(c, err)
			return
		}
		snap := d.session.Snapshot()
		documents := 0
		if snap.Bundle != nil {
			documents = snap.Bundle.Count()
		}
		fmt.Fprintf(c, "OK status=%s documents=%d\n", snap.Status, documents)
	case bus.CmdClear:
		d.session.Clear()
		fmt.Fprint(c, "OK cleared\n")
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS %s\n", statusLine(d.session.Snapshot()))
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdPatient:
		name, age, err := parsePatient(req.Arg)
		if err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		if err := d.session.SetPatient(name, age); err != nil {
			d.replyError(c, err)
			return
		}
		fmt.Fprint(c, "OK patient\n")
	case bus.CmdScenario:
		if err := d.session.SetScenario(models.Scenario(req.Arg)); err != nil {
			d.replyError(c, err)
			return
		}
		fmt.Fprintf(c, "OK scenario=%s\n", d.session.Snapshot().Scenario)
	case bus.CmdExport:
		kind, err := models.ParseDocumentKind(req.Arg)
		if err != nil {
			fmt.Fprintf(c, "ERR %v\n", err)
			return
		}
		path, err := d.session.Export(kind)
		if err != nil {
			d.replyError(c, err)
			return
		}
		fmt.Fprintf(c, "OK %s\n", path)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Unknown command: %c", req.Cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", req.Cmd)
	}
}

// replyError prefers the message the session shows to the user.
func (d *Daemon) replyError(c net.Conn, err error) {
	msg := err.Error()
	if !errors.Is(err, session.ErrBusy) && !errors.Is(err, session.ErrInvalid) {
		if last := d.session.Snapshot().LastError; last != "" {
			msg = last
		}
	}
	fmt.Fprintf(c, "ERR %s\n", strings.ReplaceAll(msg, "\n", " "))
}

func statusLine(s session.Snapshot) string {
	return fmt.Sprintf("status=%s recording=%t busy=%t elapsed=%d blocks=%d pending=%d chars=%d scenario=%s",
		s.Status, s.Recording, s.Busy, s.ElapsedSeconds, s.Blocks, s.PendingUploads,
		utf8.RuneCountInString(s.Transcript), s.Scenario)
}

// parsePatient reads "<age> <name>"; the name may contain spaces.
func parsePatient(arg string) (string, int, error) {
	ageStr, name, _ := strings.Cut(strings.TrimSpace(arg), " ")
	age, err := strconv.Atoi(ageStr)
	if err != nil {
		return "", 0, fmt.Errorf("patient: age must be a number, got %q", ageStr)
	}
	return strings.TrimSpace(name), age, nil
}

// reload applies a new configuration to the running daemon. Audio source
// and storage changes need a restart.
func (d *Daemon) reload(old, cfg *config.Config) {
	if err := d.providers.apply(cfg, d.keep, d.profiles.DoctorName); err != nil {
		log.Printf("Daemon: keeping previous providers: %v", err)
	}
	d.session.Reconfigure(sessionConfig(cfg))
	d.exporter.set(pdf.New(cfg.ToPDFOptions()))

	prev, next := old.Recording, cfg.Recording
	prev.BlockPeriod, next.BlockPeriod = 0, 0
	if prev != next {
		log.Printf("Daemon: recording device settings change on restart")
	}
	if old.Storage != cfg.Storage || old.Session.Archive != cfg.Session.Archive {
		log.Printf("Daemon: storage settings change on restart")
	}
	if old.HTTP != cfg.HTTP {
		log.Printf("Daemon: http.listen changes on restart")
	}
	log.Printf("Daemon: configuration applied")
}
