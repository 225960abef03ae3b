// Package archive keeps a local record of every finalized consultation.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/medicalscribe/scribe/internal/models"
)

var ErrNotFound = errors.New("consultation not found")

type Record struct {
	ID             string
	SessionID      string
	CreatedAt      time.Time
	PatientName    string
	PatientAge     int
	Scenario       models.Scenario
	Elapsed        time.Duration
	Transcript     string
	Insight        string
	Bundle         models.Bundle
	ConsultationID *int64
}

// Summary is the listing view of a record.
type Summary struct {
	ID          string
	CreatedAt   time.Time
	PatientName string
	Scenario    models.Scenario
	Elapsed     time.Duration
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS consultations (
	id TEXT PRIMARY KEY,
	sessionId TEXT NOT NULL,
	createdAt REAL NOT NULL,
	patientName TEXT NOT NULL DEFAULT '',
	patientAge INTEGER NOT NULL DEFAULT 0,
	scenario TEXT NOT NULL,
	elapsedSeconds INTEGER NOT NULL DEFAULT 0,
	transcript TEXT NOT NULL,
	insight TEXT NOT NULL DEFAULT '',
	prontuario TEXT NOT NULL DEFAULT '',
	receituario TEXT NOT NULL DEFAULT '',
	atestado TEXT NOT NULL DEFAULT '',
	exames TEXT NOT NULL DEFAULT '',
	orientacoes TEXT NOT NULL DEFAULT '',
	consultationId INTEGER
);
CREATE INDEX IF NOT EXISTS idx_consultations_created ON consultations(createdAt);
`

// Open opens the archive at path with WAL, creating it if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return open(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
}

// OpenMemory returns an archive that is discarded on Close.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts rec, assigning an ID and creation time when missing.
func (s *Store) Save(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var consultationID sql.NullInt64
	if rec.ConsultationID != nil {
		consultationID = sql.NullInt64{Int64: *rec.ConsultationID, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO consultations (
			id, sessionId, createdAt, patientName, patientAge, scenario, elapsedSeconds,
			transcript, insight, prontuario, receituario, atestado, exames, orientacoes, consultationId
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, unixFromTime(rec.CreatedAt), rec.PatientName, rec.PatientAge,
		string(rec.Scenario), int64(rec.Elapsed/time.Second), rec.Transcript, rec.Insight,
		rec.Bundle.Prontuario, rec.Bundle.Receituario, rec.Bundle.Atestado, rec.Bundle.Exames,
		rec.Bundle.Orientacoes, consultationID)
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

// List returns the newest consultations first.
func (s *Store) List(limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, createdAt, patientName, scenario, elapsedSeconds
		FROM consultations
		ORDER BY createdAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query consultations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var createdAt float64
		var scenario string
		var elapsed int64
		if err := rows.Scan(&sum.ID, &createdAt, &sum.PatientName, &scenario, &elapsed); err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		sum.CreatedAt = timeFromUnix(createdAt)
		sum.Scenario = models.Scenario(scenario)
		sum.Elapsed = time.Duration(elapsed) * time.Second
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads one record by ID or by a unique ID prefix.
func (s *Store) Get(id string) (*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, sessionId, createdAt, patientName, patientAge, scenario, elapsedSeconds,
			transcript, insight, prontuario, receituario, atestado, exames, orientacoes, consultationId
		FROM consultations
		WHERE id = ? OR id LIKE ? || '%'
		ORDER BY id = ? DESC
		LIMIT 2
	`, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("query consultation: %w", err)
	}
	defer rows.Close()

	var found []*Record
	for rows.Next() {
		var rec Record
		var createdAt float64
		var scenario string
		var elapsed int64
		var consultationID sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &createdAt, &rec.PatientName, &rec.PatientAge,
			&scenario, &elapsed, &rec.Transcript, &rec.Insight,
			&rec.Bundle.Prontuario, &rec.Bundle.Receituario, &rec.Bundle.Atestado,
			&rec.Bundle.Exames, &rec.Bundle.Orientacoes, &consultationID); err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		rec.CreatedAt = timeFromUnix(createdAt)
		rec.Scenario = models.Scenario(scenario)
		rec.Elapsed = time.Duration(elapsed) * time.Second
		if consultationID.Valid {
			v := consultationID.Int64
			rec.ConsultationID = &v
		}
		found = append(found, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, ErrNotFound
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("ambiguous consultation id %q", id)
	}
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
