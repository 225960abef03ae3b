// Package models holds the domain types shared by the scribe packages.
package models

import (
	"fmt"
	"strings"
)

// Scenario is the care setting of the consultation ("contexto").
type Scenario string

const (
	ScenarioUBS         Scenario = "UBS"
	ScenarioPS          Scenario = "PS"
	ScenarioUTI         Scenario = "UTI"
	ScenarioConsultorio Scenario = "Consultório"
)

var Scenarios = []Scenario{ScenarioUBS, ScenarioPS, ScenarioUTI, ScenarioConsultorio}

// ParseScenario accepts the canonical names, case-insensitively, and the
// unaccented spelling of Consultório.
func ParseScenario(s string) (Scenario, error) {
	trimmed := strings.TrimSpace(s)
	for _, sc := range Scenarios {
		if strings.EqualFold(trimmed, string(sc)) {
			return sc, nil
		}
	}
	if strings.EqualFold(trimmed, "consultorio") {
		return ScenarioConsultorio, nil
	}
	return "", fmt.Errorf("invalid scenario %q (must be UBS, PS, UTI or Consultório)", s)
}

type Patient struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

// Bundle is the output of systematization. Immutable once produced.
type Bundle struct {
	Prontuario  string `json:"prontuario"`
	Receituario string `json:"receituario"`
	Atestado    string `json:"atestado"`
	Exames      string `json:"exames"`
	Orientacoes string `json:"orientacoes"`
}

// DocumentKind names one document of a Bundle.
type DocumentKind string

const (
	DocProntuario  DocumentKind = "prontuario"
	DocReceituario DocumentKind = "receituario"
	DocAtestado    DocumentKind = "atestado"
	DocExames      DocumentKind = "exames"
	DocOrientacoes DocumentKind = "orientacoes"
)

var DocumentKinds = []DocumentKind{DocProntuario, DocReceituario, DocAtestado, DocExames, DocOrientacoes}

func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DocumentKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown document %q", s)
}

// Document returns the content of kind.
func (b Bundle) Document(kind DocumentKind) (string, bool) {
	switch kind {
	case DocProntuario:
		return b.Prontuario, true
	case DocReceituario:
		return b.Receituario, true
	case DocAtestado:
		return b.Atestado, true
	case DocExames:
		return b.Exames, true
	case DocOrientacoes:
		return b.Orientacoes, true
	}
	return "", false
}

// Count is the number of documents with content.
func (b Bundle) Count() int {
	n := 0
	for _, kind := range DocumentKinds {
		if content, _ := b.Document(kind); strings.TrimSpace(content) != "" {
			n++
		}
	}
	return n
}

// PhysicianProfile identifies the signing physician on exported documents.
type PhysicianProfile struct {
	Nome          string `json:"nome"`
	Especialidade string `json:"especialidade"`
	CRM           string `json:"crm"`
	RQE           string `json:"rqe"`
	LogoURL       string `json:"logoUrl,omitempty"`
}

const DefaultPhysicianName = "Médico Assistente"

// DisplayName falls back to a generic name when the profile is unset.
func (p PhysicianProfile) DisplayName() string {
	if strings.TrimSpace(p.Nome) == "" {
		return DefaultPhysicianName
	}
	return p.Nome
}

// Registration joins the CRM and RQE fields with " | ", omitting absent ones.
func (p PhysicianProfile) Registration() string {
	var parts []string
	if p.CRM != "" {
		parts = append(parts, "CRM: "+p.CRM)
	}
	if p.RQE != "" {
		parts = append(parts, "RQE: "+p.RQE)
	}
	return strings.Join(parts, " | ")
}
