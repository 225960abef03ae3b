package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/archive"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/session"
)

type fakeSession struct {
	mu          sync.Mutex
	snap        session.Snapshot
	toggleErr   error
	finalizeErr error
	exportErr   error
	exported    []models.DocumentKind
	cleared     int
	subs        chan session.Snapshot
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		snap: session.Snapshot{Status: session.Idle, Scenario: models.ScenarioPS},
		subs: make(chan session.Snapshot, 8),
	}
}

func (f *fakeSession) ToggleRecord(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toggleErr != nil {
		return f.toggleErr
	}
	if f.snap.Status == session.Recording {
		f.snap.Status, f.snap.Recording = session.Idle, false
	} else {
		f.snap.Status, f.snap.Recording = session.Recording, true
	}
	return nil
}

func (f *fakeSession) Finalize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		f.snap.Status = session.Failed
		f.snap.LastError = "Serviço de IA indisponível."
		return f.finalizeErr
	}
	f.snap.Status = session.Results
	f.snap.Bundle = &models.Bundle{Prontuario: "ok"}
	return nil
}

func (f *fakeSession) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.snap = session.Snapshot{Status: session.Idle, Scenario: f.snap.Scenario}
}

func (f *fakeSession) SetPatient(name string, age int) error {
	if age < 0 {
		return fmt.Errorf("%w: age", session.ErrInvalid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Patient = models.Patient{Name: name, Age: age}
	return nil
}

func (f *fakeSession) SetScenario(s models.Scenario) error {
	parsed, err := models.ParseScenario(string(s))
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrInvalid, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Scenario = parsed
	return nil
}

func (f *fakeSession) Export(kind models.DocumentKind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exportErr != nil {
		return "", f.exportErr
	}
	f.exported = append(f.exported, kind)
	return "/tmp/" + string(kind) + "_1.pdf", nil
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Subscribe() (<-chan session.Snapshot, func()) {
	f.subs <- f.Snapshot()
	return f.subs, func() {}
}

type fakeProfiles struct {
	profile models.PhysicianProfile
	doctor  string
}

func (p *fakeProfiles) Profile() models.PhysicianProfile { return p.profile }
func (p *fakeProfiles) Save(pr models.PhysicianProfile) error { p.profile = pr; return nil }
func (p *fakeProfiles) DoctorName() string { return p.doctor }
func (p *fakeProfiles) SetDoctorName(name string) error { p.doctor = name; return nil }

func newTestServer(t *testing.T, sess Session, profiles Profiles, history History) (*httptest.Server, *Client) {
	t.Helper()
	ts := httptest.NewServer(New(sess, profiles, history).Handler())
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL)
}

func TestSessionLifecycle(t *testing.T) {
	sess := newFakeSession()
	_, client := newTestServer(t, sess, nil, nil)
	ctx := context.Background()

	snap, err := client.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Status != session.Idle || snap.Scenario != models.ScenarioPS {
		t.Errorf("initial snapshot = %+v", snap)
	}

	if snap, err = client.Toggle(ctx); err != nil || !snap.Recording {
		t.Fatalf("Toggle = %+v, %v", snap, err)
	}
	if snap, err = client.Finalize(ctx); err != nil || snap.Status != session.Results || snap.Bundle == nil {
		t.Fatalf("Finalize = %+v, %v", snap, err)
	}
	if snap, err = client.Clear(ctx); err != nil || snap.Status != session.Idle || snap.Bundle != nil {
		t.Fatalf("Clear = %+v, %v", snap, err)
	}
	if sess.cleared != 1 {
		t.Errorf("Clear called %d times", sess.cleared)
	}
}

func TestPatientAndScenario(t *testing.T) {
	sess := newFakeSession()
	_, client := newTestServer(t, sess, nil, nil)
	ctx := context.Background()

	snap, err := client.SetPatient(ctx, "Maria Souza", 57)
	if err != nil {
		t.Fatalf("SetPatient: %v", err)
	}
	if snap.Patient != (models.Patient{Name: "Maria Souza", Age: 57}) {
		t.Errorf("Patient = %+v", snap.Patient)
	}

	snap, err = client.SetScenario(ctx, "consultorio")
	if err != nil {
		t.Fatalf("SetScenario: %v", err)
	}
	if snap.Scenario != models.ScenarioConsultorio {
		t.Errorf("Scenario = %q", snap.Scenario)
	}

	var apiErr *APIError
	if _, err := client.SetScenario(ctx, "cirurgia"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid scenario error = %v", err)
	}
	if _, err := client.SetPatient(ctx, "Ana", -3); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid age error = %v", err)
	}
}

func TestMalformedBodies(t *testing.T) {
	ts, _ := newTestServer(t, newFakeSession(), nil, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"not json", "/api/session/patient", "name=Ana"},
		{"unknown field", "/api/session/patient", `{"name":"Ana","age":3,"cpf":"1"}`},
		{"wrong type", "/api/session/patient", `{"name":"Ana","age":"three"}`},
		{"empty", "/api/session/scenario", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPut, ts.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Detail == "" {
				t.Errorf("error body = %+v, %v", body, err)
			}
		})
	}
}

func TestErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"busy", session.ErrBusy, http.StatusConflict, "session busy"},
		{"closed", session.ErrClosed, http.StatusConflict, "session closed"},
		{"cleared", session.ErrDiscarded, http.StatusConflict, "session cleared"},
		{"upstream", errors.New("systematize: status 503"), http.StatusBadGateway, "Serviço de IA indisponível."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.finalizeErr = tt.err
			_, client := newTestServer(t, sess, nil, nil)

			_, err := client.Finalize(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Finalize error = %v, want APIError", err)
			}
			if apiErr.StatusCode != tt.wantStatus || apiErr.Detail != tt.wantDetail {
				t.Errorf("got %d %q, want %d %q", apiErr.StatusCode, apiErr.Detail, tt.wantStatus, tt.wantDetail)
			}
		})
	}

	sess := newFakeSession()
	sess.toggleErr = session.ErrBusy
	_, client := newTestServer(t, sess, nil, nil)
	if _, err := client.Toggle(context.Background()); !IsConflict(err) {
		t.Errorf("Toggle on busy session = %v, want conflict", err)
	}
}

func TestExport(t *testing.T) {
	sess := newFakeSession()
	_, client := newTestServer(t, sess, nil, nil)
	ctx := context.Background()

	path, err := client.Export(ctx, models.DocReceituario)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if path != "/tmp/receituario_1.pdf" {
		t.Errorf("path = %q", path)
	}

	if _, err := client.Export(ctx, "laudo"); err == nil {
		t.Error("unknown document kind accepted")
	}

	sess.exportErr = session.ErrNoBundle
	if _, err := client.Export(ctx, models.DocAtestado); !IsConflict(err) {
		t.Errorf("export before finalize = %v, want conflict", err)
	}
	if len(sess.exported) != 1 {
		t.Errorf("exported = %v", sess.exported)
	}
}

func TestForeignOriginRejected(t *testing.T) {
	ts, _ := newTestServer(t, newFakeSession(), nil, nil)

	tests := []struct {
		origin string
		want   int
	}{
		{"", http.StatusOK},
		{"http://localhost:5173", http.StatusOK},
		{"http://127.0.0.1:8765", http.StatusOK},
		{"https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/session/toggle", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("Origin %q: status %d, want %d", tt.origin, resp.StatusCode, tt.want)
		}
	}
}

func TestWatch(t *testing.T) {
	sess := newFakeSession()
	_, client := newTestServer(t, sess, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan session.Snapshot, 8)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, func(s session.Snapshot) { got <- s })
	}()

	next := func() session.Snapshot {
		t.Helper()
		select {
		case s := <-got:
			return s
		case <-ctx.Done():
			t.Fatal("no snapshot received")
		}
		return session.Snapshot{}
	}

	if first := next(); first.Status != session.Idle {
		t.Errorf("first snapshot = %+v", first)
	}

	sess.subs <- session.Snapshot{Status: session.Recording, Recording: true, ElapsedSeconds: 3, Transcript: "bom dia"}
	if s := next(); s.ElapsedSeconds != 3 || s.Transcript != "bom dia" {
		t.Errorf("pushed snapshot = %+v", s)
	}

	// the session closing ends the stream cleanly
	close(sess.subs)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Watch did not return after the session closed")
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	_, client := newTestServer(t, newFakeSession(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.Watch(ctx, func(session.Snapshot) {
			select {
			case first <- struct{}{}:
			default:
			}
		})
	}()

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestProfile(t *testing.T) {
	profiles := &fakeProfiles{profile: models.PhysicianProfile{Nome: "Dra Ana"}}
	_, client := newTestServer(t, newFakeSession(), profiles, nil)
	ctx := context.Background()

	view, err := client.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if view.Profile.Nome != "Dra Ana" {
		t.Errorf("Profile = %+v", view)
	}

	view.Profile.CRM = "12345-SP"
	view.DoctorName = "Dra Ana"
	saved, err := client.SaveProfile(ctx, view)
	if err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if saved.Profile.CRM != "12345-SP" || profiles.doctor != "Dra Ana" {
		t.Errorf("saved = %+v, doctor = %q", saved, profiles.doctor)
	}

	_, disabled := newTestServer(t, newFakeSession(), nil, nil)
	var apiErr *APIError
	if _, err := disabled.Profile(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("profile without storage = %v", err)
	}
}

func TestHistory(t *testing.T) {
	store, err := archive.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	id := int64(7)
	rec := &archive.Record{
		SessionID:      "s-1",
		CreatedAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		PatientName:    "João",
		PatientAge:     40,
		Scenario:       models.ScenarioUBS,
		Elapsed:        95 * time.Second,
		Transcript:     "dor lombar",
		Bundle:         models.Bundle{Prontuario: "Lombalgia mecânica."},
		ConsultationID: &id,
	}
	if err := store.Save(rec); err != nil {
		t.Fatal(err)
	}

	_, client := newTestServer(t, newFakeSession(), nil, store)
	ctx := context.Background()

	list, err := client.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID || list[0].ElapsedSeconds != 95 || list[0].PatientName != "João" {
		t.Errorf("History = %+v", list)
	}

	full, err := client.HistoryRecord(ctx, rec.ID[:8])
	if err != nil {
		t.Fatalf("HistoryRecord: %v", err)
	}
	if full.Transcript != "dor lombar" || full.Bundle.Prontuario != "Lombalgia mecânica." || full.ConsultationID == nil || *full.ConsultationID != 7 {
		t.Errorf("HistoryRecord = %+v", full)
	}

	var apiErr *APIError
	if _, err := client.HistoryRecord(ctx, "nope"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("missing record = %v", err)
	}

	ts, _ := newTestServer(t, newFakeSession(), nil, store)
	resp, err := http.Get(ts.URL + "/api/history?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := New(newFakeSession(), nil, nil)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	client := NewClient(srv.Addr())
	if _, err := client.Snapshot(context.Background()); err != nil {
		t.Errorf("Snapshot over TCP: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Error("server still answering after shutdown")
	}
}
