package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/bus"
	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/clock"
	"github.com/medicalscribe/scribe/internal/httpapi"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/notify"
	"github.com/medicalscribe/scribe/internal/session"
	"github.com/medicalscribe/scribe/internal/testutil"
)

var testBundle = models.Bundle{
	Prontuario:  "Paciente com cefaleia tensional.",
	Receituario: "Dipirona 500mg se dor.",
	Orientacoes: "Hidratação.",
}

type fixture struct {
	d      *Daemon
	src    *testutil.MockSource
	tr     *testutil.MockTranscriber
	ai     *testutil.MockClinical
	outDir string
}

// newFixture builds a daemon whose config, data and socket all live in a
// fresh temp directory.
func newFixture(t *testing.T, listen string) *fixture {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("unix socket paths are set up for linux")
	}

	// t.TempDir paths can exceed the unix socket path limit
	root, err := os.MkdirTemp("", "scribe-daemon")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(root) })
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))

	outDir := filepath.Join(root, "pdf")
	content := fmt.Sprintf(`[storage]
dir = %q

[export]
output_dir = %q

[http]
listen = %q

[notifications]
type = "none"
`, filepath.Join(root, "data"), outDir, listen)
	cfgPath := filepath.Join(root, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		src:    testutil.NewMockSource(),
		tr:     testutil.NewMockTranscriber(),
		ai:     testutil.NewMockClinical(testBundle),
		outDir: outDir,
	}
	f.tr.TranscribeFunc = func(ctx context.Context, blk capture.Block) (string, error) {
		return "Paciente relata cefaleia há três dias", nil
	}
	f.d, err = NewWithOptions(Options{
		ConfigPath:  cfgPath,
		Source:      f.src,
		Clock:       clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		Transcriber: f.tr,
		Clinical:    f.ai,
		Notifier:    notify.Nop{},
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	return f
}

// start runs the daemon and waits until the socket answers.
func (f *fixture) start(t *testing.T) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.d.Run()
	}()

	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		if _, err := bus.SendCommand(bus.CmdStatus); err == nil {
			break
		}
		if i == maxAttempts-1 {
			t.Fatal("daemon failed to start within timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		bus.SendCommand(bus.CmdQuit)
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("daemon did not exit within timeout")
		}
	})
}

// speak feeds audio into the open block and waits for capture to buffer it.
func (f *fixture) speak(t *testing.T) {
	t.Helper()
	want := f.d.capture.Buffered() + 3200
	if !f.src.Push(make([]byte, 3200)) {
		t.Fatal("source is not streaming")
	}
	testutil.WaitForCondition(t, func() bool { return f.d.capture.Buffered() == want }, time.Second)
}

func TestConsultationOverSocket(t *testing.T) {
	f := newFixture(t, "127.0.0.1:0")
	f.start(t)

	reply, err := bus.Send(bus.CmdToggle, "")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if reply != "OK status=recording" {
		t.Fatalf("toggle reply = %q", reply)
	}
	if !f.src.IsRecording() {
		t.Fatal("microphone not acquired")
	}

	f.speak(t)

	if reply, err = bus.Send(bus.CmdToggle, ""); err != nil || reply != "OK status=idle" {
		t.Fatalf("stop: %q, %v", reply, err)
	}

	reply, err = bus.Send(bus.CmdStatus, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st := bus.ParseStatus(reply)
	if st["status"] != "idle" || st["recording"] != "false" || st["blocks"] != "1" || st["scenario"] != "PS" {
		t.Errorf("status = %v", st)
	}
	if st["chars"] == "0" {
		t.Error("transcript empty after stop")
	}

	if reply, err = bus.Send(bus.CmdPatient, "42 Maria da Silva"); err != nil || reply != "OK patient" {
		t.Fatalf("patient: %q, %v", reply, err)
	}
	if p := f.d.Session().Snapshot().Patient; p.Name != "Maria da Silva" || p.Age != 42 {
		t.Errorf("patient = %+v", p)
	}

	if reply, err = bus.Send(bus.CmdScenario, "UBS"); err != nil || reply != "OK scenario=UBS" {
		t.Fatalf("scenario: %q, %v", reply, err)
	}

	if reply, err = bus.Send(bus.CmdFinalize, ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if reply != "OK status=results documents=3" {
		t.Errorf("finalize reply = %q", reply)
	}
	if calls := f.ai.SystematizeCalls(); len(calls) != 1 || !strings.Contains(calls[0], "cefaleia") {
		t.Errorf("systematize calls = %q", calls)
	}

	reply, err = bus.Send(bus.CmdExport, "receituario")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := strings.TrimPrefix(reply, "OK ")
	if filepath.Dir(path) != f.outDir {
		t.Errorf("exported to %s, want a file in %s", path, f.outDir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("exported file: %v", err)
	}

	_, err = bus.Send(bus.CmdExport, "atestado")
	var remote *bus.RemoteError
	if !errors.As(err, &remote) {
		t.Errorf("exporting an empty document: err = %v", err)
	}

	if reply, err = bus.Send(bus.CmdClear, ""); err != nil || reply != "OK cleared" {
		t.Fatalf("clear: %q, %v", reply, err)
	}
	snap := f.d.Session().Snapshot()
	if snap.Status != session.Idle || snap.Transcript != "" || snap.Bundle != nil {
		t.Errorf("after clear: %+v", snap)
	}
}

func TestSocketErrors(t *testing.T) {
	f := newFixture(t, "127.0.0.1:0")
	f.start(t)

	tests := []struct {
		name string
		cmd  byte
		arg  string
	}{
		{"finalize without transcript", bus.CmdFinalize, ""},
		{"export before finalize", bus.CmdExport, "prontuario"},
		{"unknown document", bus.CmdExport, "laudo"},
		{"bad age", bus.CmdPatient, "abc Maria"},
		{"age out of range", bus.CmdPatient, "200 Maria"},
		{"unknown scenario", bus.CmdScenario, "Hospital"},
		{"unknown command", 'z', ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bus.Send(tt.cmd, tt.arg)
			var remote *bus.RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("err = %v, want a remote error", err)
			}
		})
	}

	reply, err := bus.Send(bus.CmdVersion, "")
	if err != nil || reply != "STATUS proto="+bus.ProtoVer {
		t.Errorf("version: %q, %v", reply, err)
	}
}

func TestHTTPAPIServesSession(t *testing.T) {
	f := newFixture(t, "127.0.0.1:0")
	f.start(t)

	addr := f.d.APIAddr()
	if addr == "" {
		t.Fatal("HTTP API not started")
	}
	client := httpapi.NewClient(addr)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := client.SetPatient(ctx, "João", 30); err != nil {
		t.Fatalf("SetPatient: %v", err)
	}
	snap, err := client.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Patient.Name != "João" || snap.Status != session.Idle {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := client.SaveProfile(ctx, httpapi.ProfileView{Profile: models.PhysicianProfile{Nome: "Dra Ana", CRM: "123"}}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	view, err := client.Profile(ctx)
	if err != nil || view.Profile.Nome != "Dra Ana" {
		t.Errorf("Profile = %+v, %v", view, err)
	}
}

func TestHTTPDisabled(t *testing.T) {
	// an explicit empty listen address turns the API off
	f := newFixture(t, "")
	f.start(t)
	if addr := f.d.APIAddr(); addr != "" {
		t.Errorf("API listening on %s", addr)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	f := newFixture(t, "127.0.0.1:0")
	f.start(t)

	if err := bus.CheckExistingDaemon(); err == nil {
		t.Error("a running daemon should be detected")
	}
}

func TestReloadAppliesExportDir(t *testing.T) {
	f := newFixture(t, "127.0.0.1:0")
	t.Cleanup(func() {
		f.d.Session().Close()
		f.d.closeResources()
	})
	ctx := context.Background()
	s := f.d.Session()

	if err := s.ToggleRecord(ctx); err != nil {
		t.Fatal(err)
	}
	f.speak(t)
	if err := s.ToggleRecord(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	old := f.d.cfgMgr.GetConfig()
	next := f.d.cfgMgr.GetConfig()
	next.Export.OutputDir = filepath.Join(f.outDir, "reloaded")
	next.Copilot.QuietPeriod = time.Second
	f.d.reload(old, next)

	path, err := s.Export(models.DocProntuario)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(path) != next.Export.OutputDir {
		t.Errorf("exported to %s after reload", path)
	}
	// injected adapters survive the reload
	if f.d.providers.current() != (notify.Nop{}) {
		t.Error("notifier replaced by reload")
	}
}

func TestParsePatient(t *testing.T) {
	tests := []struct {
		arg     string
		name    string
		age     int
		wantErr bool
	}{
		{"42 Maria da Silva", "Maria da Silva", 42, false},
		{"  7   Pedro ", "Pedro", 7, false},
		{"30", "", 30, false},
		{"Maria 42", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		name, age, err := parsePatient(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePatient(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (name != tt.name || age != tt.age) {
			t.Errorf("parsePatient(%q) = %q, %d", tt.arg, name, age)
		}
	}
}

func TestStatusLine(t *testing.T) {
	got := statusLine(session.Snapshot{
		Status:         session.Recording,
		Recording:      true,
		ElapsedSeconds: 65,
		Blocks:         13,
		PendingUploads: 2,
		Transcript:     "olá",
		Scenario:       models.ScenarioPS,
	})
	want := "status=recording recording=true busy=false elapsed=65 blocks=13 pending=2 chars=3 scenario=PS"
	if got != want {
		t.Errorf("statusLine = %q, want %q", got, want)
	}
	if parsed := bus.ParseStatus("STATUS " + got); parsed["chars"] != "3" {
		t.Errorf("ParseStatus(statusLine) = %v", parsed)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := testutil.CreateTempConfigFile(t, "[recording]\nbackend = \"alsa\"\n")
	if _, err := NewWithOptions(Options{ConfigPath: path, Source: testutil.NewMockSource()}); err == nil {
		t.Error("invalid recording backend accepted")
	}
}
