package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/medicalscribe/scribe/internal/backend"
	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/notify"
	"github.com/medicalscribe/scribe/internal/transcriber"
)

// providers holds the adapters built from the current configuration and is
// what the session talks to, so a reload swaps them under a live session.
// Calls already in flight finish on the adapter they started with.
type providers struct {
	mu          sync.RWMutex
	backend     *backend.Client
	transcriber transcriber.Transcriber
	clinical    llm.Clinical
	notifier    notify.Notifier
}

// fixed are adapters supplied by the caller that a reload must keep.
type fixed struct {
	transcriber transcriber.Transcriber
	clinical    llm.Clinical
	notifier    notify.Notifier
}

func (p *providers) apply(cfg *config.Config, keep fixed, doctorName func() string) error {
	client := backend.New(cfg.Backend.URL, cfg.Backend.Timeout)

	tr := keep.transcriber
	if tr == nil {
		var err error
		tr, err = transcriber.New(cfg.ToTranscriberConfig(), client, doctorName)
		if err != nil {
			return fmt.Errorf("transcriber: %w", err)
		}
	}

	clinical := keep.clinical
	if clinical == nil {
		var err error
		clinical, err = llm.New(cfg.ToLLMConfig(), client)
		if err != nil {
			return fmt.Errorf("llm: %w", err)
		}
	}

	n := keep.notifier
	if n == nil {
		n = notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)
	}

	p.mu.Lock()
	p.backend = client
	p.transcriber = tr
	p.clinical = clinical
	p.notifier = n
	p.mu.Unlock()
	return nil
}

func (p *providers) Backend() *backend.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backend
}

func (p *providers) Transcribe(ctx context.Context, blk capture.Block) (string, error) {
	p.mu.RLock()
	tr := p.transcriber
	p.mu.RUnlock()
	return tr.Transcribe(ctx, blk)
}

func (p *providers) Copilot(ctx context.Context, transcript string, scenario models.Scenario) (string, error) {
	p.mu.RLock()
	c := p.clinical
	p.mu.RUnlock()
	return c.Copilot(ctx, transcript, scenario)
}

func (p *providers) Systematize(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error) {
	p.mu.RLock()
	c := p.clinical
	p.mu.RUnlock()
	return c.Systematize(ctx, transcript, scenario)
}

// Analyze always goes to the backend; it is the persistence endpoint.
func (p *providers) Analyze(ctx context.Context, payload models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	return p.Backend().Analyze(ctx, payload)
}

func (p *providers) current() notify.Notifier {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.notifier
}

// notifications run on their own goroutine
func (p *providers) RecordingStarted()            { go p.current().RecordingStarted() }
func (p *providers) RecordingEnded()              { go p.current().RecordingEnded() }
func (p *providers) Finalized(documents int)      { go p.current().Finalized(documents) }
func (p *providers) Notify(title, message string) { go p.current().Notify(title, message) }
func (p *providers) Error(msg string)             { go p.current().Error(msg) }
