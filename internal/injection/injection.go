// Package injection types text into the focused window, such as an
// electronic health record form, with the clipboard as a last resort.
package injection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Backend delivers text to the focused application.
type Backend interface {
	Name() string
	Available() error
	Inject(ctx context.Context, text string, timeout time.Duration) error
}

var DefaultBackends = []string{"wtype", "ydotool", "clipboard"}

const DefaultTimeout = 30 * time.Second

type Injector struct {
	backends []Backend
	timeout  time.Duration
}

// New tries backends in the given order.
func New(timeout time.Duration, backends ...Backend) *Injector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Injector{backends: backends, timeout: timeout}
}

// NewByName builds an Injector from backend names.
func NewByName(names []string, timeout time.Duration) (*Injector, error) {
	if len(names) == 0 {
		names = DefaultBackends
	}
	backends := make([]Backend, 0, len(names))
	for _, name := range names {
		b, err := backendByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return New(timeout, backends...), nil
}

func backendByName(name string) (Backend, error) {
	switch name {
	case "wtype":
		return wtypeBackend{}, nil
	case "ydotool":
		return ydotoolBackend{}, nil
	case "clipboard":
		return clipboardBackend{}, nil
	}
	return nil, fmt.Errorf("unknown injection backend %q (use wtype, ydotool or clipboard)", name)
}

// Inject returns the name of the backend that delivered the text.
func (i *Injector) Inject(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("cannot inject empty text")
	}
	if len(i.backends) == 0 {
		return "", errors.New("no injection backends configured")
	}

	var errs []error
	for _, b := range i.backends {
		if err := b.Available(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		if err := b.Inject(ctx, text, i.timeout); err != nil {
			log.Printf("Injection: %s failed: %v", b.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return b.Name(), nil
	}
	return "", fmt.Errorf("all injection backends failed: %w", errors.Join(errs...))
}
