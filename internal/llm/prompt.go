package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medicalscribe/scribe/internal/models"
)

// BuildCopilotPrompt is the system prompt of the live analysis.
func BuildCopilotPrompt(scenario models.Scenario) string {
	var b strings.Builder
	b.WriteString("Você é um assistente sênior de inteligência clínica. ")
	fmt.Fprintf(&b, "O contexto deste atendimento é: %s. ", scenario)
	b.WriteString("Analise a transcrição em tempo real e forneça:\n")
	b.WriteString("1. Sinais de Alerta (Red Flags) imediatos;\n")
	b.WriteString("2. Três Diagnósticos Diferenciais (priorizando gravidade/probabilidade);\n")
	b.WriteString("3. A próxima pergunta crucial para esclarecer o quadro.\n\n")
	b.WriteString("OBSERVAÇÃO CRÍTICA: Sugira USG Point-of-Care (POCUS) APENAS se houver indicação clínica ")
	b.WriteString("específica e clara baseada nos sintomas (ex: choque, trauma abdominal, suspeita de TVP); ")
	b.WriteString("evite sugestões protocolares genéricas.")
	return b.String()
}

const systematizePrompt = "Você é um escriba médico assistente de alto nível. Receba a transcrição bruta da consulta e gere 5 documentos estruturados.\n" +
	"Adapte o tom e a conduta à gravidade do caso (ex: conduta imediata para emergência, foco preventivo para consultório).\n" +
	"Retorne APENAS um objeto JSON válido com as seguintes chaves:\n" +
	"1. 'prontuario': Texto formatado com HDA, Comorbidades, Exame Físico (se citado), Hipóteses e Conduta.\n" +
	"2. 'receituario': Medicamentos citados com posologia sugerida e via de administração.\n" +
	"3. 'atestado': Sugestão de dias de repouso e CID-10 correspondente.\n" +
	"4. 'exames': Liste os exames ditados pelo médico e acrescente os exames padrão-ouro para o quadro descrito. " +
	"Separe visualmente em 'Exames Solicitados na Transcrição' e 'Exames Laboratoriais Sugeridos pelo Protocolo'.\n" +
	"5. 'orientacoes': Recomendações em linguagem clara e leiga para o paciente.\n" +
	"Formate o texto de cada chave com quebras de linha amigáveis."

func BuildSystematizePrompt() string {
	return systematizePrompt
}

func BuildSystematizeUserPrompt(transcript string, scenario models.Scenario) string {
	return fmt.Sprintf("Contexto: %s\n\nTranscrição: %s", scenario, transcript)
}

// ParseBundle reads the JSON object returned by the model. Missing keys are
// left empty; non-string values are rendered as JSON text.
func ParseBundle(raw string) (models.Bundle, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return models.Bundle{}, fmt.Errorf("parse bundle: %w", err)
	}
	field := func(key string) string {
		v, ok := fields[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		return string(v)
	}
	return models.Bundle{
		Prontuario:  field("prontuario"),
		Receituario: field("receituario"),
		Atestado:    field("atestado"),
		Exames:      field("exames"),
		Orientacoes: field("orientacoes"),
	}, nil
}
