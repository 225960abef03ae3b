package daemon

import (
	"sync"
	"time"

	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/pdf"
)

// exporter lets a reload change the output directory under a live session.
type exporter struct {
	mu  sync.RWMutex
	pdf *pdf.Exporter
}

func (e *exporter) set(p *pdf.Exporter) {
	e.mu.Lock()
	e.pdf = p
	e.mu.Unlock()
}

func (e *exporter) Export(profile models.PhysicianProfile, kind models.DocumentKind, content string, now time.Time) (string, error) {
	e.mu.RLock()
	p := e.pdf
	e.mu.RUnlock()
	return p.Export(profile, kind, content, now)
}
