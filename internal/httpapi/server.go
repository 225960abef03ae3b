// Package httpapi exposes the running session over a local HTTP API with a
// WebSocket stream of snapshots.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/medicalscribe/scribe/internal/archive"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/session"
)

type Session interface {
	ToggleRecord(ctx context.Context) error
	Finalize(ctx context.Context) error
	Clear()
	SetPatient(name string, age int) error
	SetScenario(s models.Scenario) error
	Export(kind models.DocumentKind) (string, error)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

type Profiles interface {
	Profile() models.PhysicianProfile
	Save(p models.PhysicianProfile) error
	DoctorName() string
	SetDoctorName(name string) error
}

type History interface {
	List(limit int) ([]archive.Summary, error)
	Get(id string) (*archive.Record, error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Server struct {
	session  Session
	profiles Profiles
	history  History

	router   *mux.Router
	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener
}

// New builds the API. profiles and history may be nil; their routes then
// answer 404.
func New(sess Session, profiles Profiles, history History) *Server {
	s := &Server{
		session:  sess,
		profiles: profiles,
		history:  history,
		router:   mux.NewRouter(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: localOrigin}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(rejectForeignOrigin)

	api.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/session/toggle", s.toggle).Methods(http.MethodPost)
	api.HandleFunc("/session/finalize", s.finalize).Methods(http.MethodPost)
	api.HandleFunc("/session/clear", s.clear).Methods(http.MethodPost)
	api.HandleFunc("/session/patient", s.setPatient).Methods(http.MethodPut)
	api.HandleFunc("/session/scenario", s.setScenario).Methods(http.MethodPut)
	api.HandleFunc("/session/export/{kind}", s.export).Methods(http.MethodPost)
	api.HandleFunc("/session/events", s.events).Methods(http.MethodGet)

	api.HandleFunc("/profile", s.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.putProfile).Methods(http.MethodPut)

	api.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.getHistory).Methods(http.MethodGet)

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP: server error: %v", err)
		}
	}()
	log.Printf("HTTP: listening on %s", ln.Addr())
	return nil
}

// Addr is the bound address, useful when Start was given port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type PatientRequest struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type ScenarioRequest struct {
	Scenario string `json:"scenario"`
}

type ExportResponse struct {
	Path string `json:"path"`
}

type ProfileView struct {
	Profile    models.PhysicianProfile `json:"profile"`
	DoctorName string                  `json:"doctorName"`
}

type HistoryEntry struct {
	ID             string          `json:"id"`
	CreatedAt      time.Time       `json:"createdAt"`
	PatientName    string          `json:"patientName"`
	Scenario       models.Scenario `json:"scenario"`
	ElapsedSeconds int             `json:"elapsedSeconds"`
}

type HistoryRecord struct {
	HistoryEntry
	SessionID      string        `json:"sessionId"`
	PatientAge     int           `json:"patientAge"`
	Transcript     string        `json:"transcript"`
	Insight        string        `json:"insight"`
	Bundle         models.Bundle `json:"bundle"`
	ConsultationID *int64        `json:"consultationId,omitempty"`
}

// Event is one WebSocket message.
type Event struct {
	Type     string           `json:"type"`
	Snapshot session.Snapshot `json:"snapshot"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ToggleRecord(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Finalize(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	s.session.Clear()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) setPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetPatient(req.Name, req.Age); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) setScenario(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetScenario(models.Scenario(req.Scenario)); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseDocumentKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.session.Export(kind)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{Path: path})
}

// events pushes the current snapshot and then every change until the client
// goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("HTTP: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	// the reader only watches for close frames and pongs
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Event{Type: "snapshot", Snapshot: snap}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusNotFound, "profile storage disabled")
		return
	}
	writeJSON(w, http.StatusOK, ProfileView{Profile: s.profiles.Profile(), DoctorName: s.profiles.DoctorName()})
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusNotFound, "profile storage disabled")
		return
	}
	var req ProfileView
	if !decode(w, r, &req) {
		return
	}
	if err := s.profiles.Save(req.Profile); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.profiles.SetDoctorName(req.DoctorName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ProfileView{Profile: s.profiles.Profile(), DoctorName: s.profiles.DoctorName()})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	summaries, err := s.history.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]HistoryEntry, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, HistoryEntry{
			ID:             sum.ID,
			CreatedAt:      sum.CreatedAt,
			PatientName:    sum.PatientName,
			Scenario:       sum.Scenario,
			ElapsedSeconds: int(sum.Elapsed / time.Second),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	rec, err := s.history.Get(mux.Vars(r)["id"])
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, HistoryRecord{
		HistoryEntry: HistoryEntry{
			ID:             rec.ID,
			CreatedAt:      rec.CreatedAt,
			PatientName:    rec.PatientName,
			Scenario:       rec.Scenario,
			ElapsedSeconds: int(rec.Elapsed / time.Second),
		},
		SessionID:      rec.SessionID,
		PatientAge:     rec.PatientAge,
		Transcript:     rec.Transcript,
		Insight:        rec.Insight,
		Bundle:         rec.Bundle,
		ConsultationID: rec.ConsultationID,
	})
}

// fail maps session errors onto status codes: bad input 400, state
// conflicts 409, everything else is an upstream or device failure.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	detail := err.Error()
	switch {
	case errors.Is(err, session.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrClosed),
		errors.Is(err, session.ErrDiscarded), errors.Is(err, session.ErrNoBundle),
		errors.Is(err, session.ErrEmptyDocument):
		status = http.StatusConflict
	default:
		if msg := s.session.Snapshot().LastError; msg != "" {
			detail = msg
		}
	}
	log.Printf("HTTP: request failed: %v", err)
	writeError(w, status, detail)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("HTTP: error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// localOrigin accepts requests without an Origin header (CLI, curl) and
// pages served from the loopback interface.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func rejectForeignOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !localOrigin(r) {
			writeError(w, http.StatusForbidden, "cross-origin requests are not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}
