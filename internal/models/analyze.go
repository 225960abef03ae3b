package models

import "encoding/json"

// AnalyzeRequest is the payload of the full structured analysis that also
// persists the consultation on the backend.
type AnalyzeRequest struct {
	NomeCompleto       string `json:"nome_completo"`
	Idade              int    `json:"idade"`
	CenarioAtendimento string `json:"cenario_atendimento"`
	TextoTranscrito    string `json:"texto_transcrito"`
}

type CidPrincipal struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

type PatientInfo struct {
	Iniciais           string `json:"iniciais"`
	PacienteID         string `json:"paciente_id"`
	Idade              int    `json:"idade"`
	CenarioAtendimento string `json:"cenario_atendimento"`
}

type SOAPSection struct {
	Title        string          `json:"title"`
	Icon         string          `json:"icon"`
	Content      string          `json:"content"`
	SinaisVitais json.RawMessage `json:"sinais_vitais,omitempty"`
}

type ClinicalData struct {
	CidPrincipal     CidPrincipal    `json:"cid_principal"`
	Gravidade        string          `json:"gravidade"`
	SinaisVitais     json.RawMessage `json:"sinais_vitais,omitempty"`
	MedicacoesAtuais []string        `json:"medicacoes_atuais"`
	Alergias         []string        `json:"alergias"`
	Comorbidades     []string        `json:"comorbidades"`
}

type DialogEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type AnalyzeMetadata struct {
	TotalFalas    int    `json:"total_falas"`
	FalasMedico   int    `json:"falas_medico"`
	FalasPaciente int    `json:"falas_paciente"`
	ProcessadoEm  string `json:"processado_em"`
}

// AnalyzeResponse keeps the loosely typed parts of the bundle as raw JSON.
type AnalyzeResponse struct {
	Success        bool                   `json:"success"`
	Patient        *PatientInfo           `json:"patient,omitempty"`
	SOAP           map[string]SOAPSection `json:"soap,omitempty"`
	ClinicalData   *ClinicalData          `json:"clinicalData,omitempty"`
	JSONUniversal  json.RawMessage        `json:"jsonUniversal,omitempty"`
	Dialog         []DialogEntry          `json:"dialog,omitempty"`
	Metadata       *AnalyzeMetadata       `json:"metadata,omitempty"`
	Documents      json.RawMessage        `json:"documents,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
	ConsultationID *int64                 `json:"consultation_id,omitempty"`
}

// LLMSettings mirrors the backend's masked provider settings.
type LLMSettings struct {
	Provider                     string   `json:"provider"`
	APIKeyMasked                 string   `json:"api_key_masked"`
	HasAPIKey                    bool     `json:"has_api_key"`
	TranscriptionModel           string   `json:"transcription_model"`
	ChatModel                    string   `json:"chat_model"`
	AvailableTranscriptionModels []string `json:"available_transcription_models,omitempty"`
	AvailableChatModels          []string `json:"available_chat_models,omitempty"`
}

// LLMSettingsUpdate changes only the non-nil fields.
type LLMSettingsUpdate struct {
	APIKey             *string `json:"api_key,omitempty"`
	TranscriptionModel *string `json:"transcription_model,omitempty"`
	ChatModel          *string `json:"chat_model,omitempty"`
	Provider           *string `json:"provider,omitempty"`
}

type ConnectionTest struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ModelTested string `json:"model_tested"`
}
