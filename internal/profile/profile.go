// Package profile persists the physician identity printed on documents and
// the doctor name sent with transcription uploads.
package profile

import (
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/storage"
)

const (
	ProfileKey    = "physician_profile"
	DoctorNameKey = "scribe_doctor_name"
)

type Service struct {
	store storage.Store

	mu      sync.RWMutex
	profile models.PhysicianProfile
	doctor  string
}

// New loads the stored values. An unreadable profile is logged and replaced
// by the empty profile.
func New(store storage.Store) *Service {
	s := &Service{store: store}

	var p models.PhysicianProfile
	if err := storage.GetJSON(store, ProfileKey, &p); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("Profile: error parsing physician profile: %v", err)
		p = models.PhysicianProfile{}
	}
	s.profile = p

	if name, err := store.Get(DoctorNameKey); err == nil {
		s.doctor = string(name)
	}
	return s
}

func (s *Service) Profile() models.PhysicianProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Service) Save(p models.PhysicianProfile) error {
	p.Nome = strings.TrimSpace(p.Nome)
	p.Especialidade = strings.TrimSpace(p.Especialidade)
	p.CRM = strings.TrimSpace(p.CRM)
	p.RQE = strings.TrimSpace(p.RQE)
	p.LogoURL = strings.TrimSpace(p.LogoURL)

	if err := storage.SetJSON(s.store, ProfileKey, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	return nil
}

// DoctorName is the name attached to transcription uploads, empty if unset.
func (s *Service) DoctorName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doctor
}

// SetDoctorName stores the trimmed name; an empty name removes it.
func (s *Service) SetDoctorName(name string) error {
	name = strings.TrimSpace(name)
	var err error
	if name == "" {
		err = s.store.Delete(DoctorNameKey)
	} else {
		err = s.store.Set(DoctorNameKey, []byte(name))
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.doctor = name
	s.mu.Unlock()
	return nil
}
