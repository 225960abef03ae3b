package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/models"
)

func TestTranscribeMultipart(t *testing.T) {
	var gotFile []byte
	var gotName, gotDoctor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		gotFile, _ = io.ReadAll(file)
		gotName = header.Filename
		gotDoctor = r.FormValue("doctor_name")
		w.Write([]byte(`{"text":"paciente com febre"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second)
	text, err := c.Transcribe(context.Background(), "recording.wav", []byte("RIFFdata"), "Dra. Ana")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "paciente com febre" {
		t.Errorf("text = %q", text)
	}
	if string(gotFile) != "RIFFdata" || gotName != "recording.wav" {
		t.Errorf("file = %q name = %q", gotFile, gotName)
	}
	if gotDoctor != "Dra. Ana" {
		t.Errorf("doctor_name = %q", gotDoctor)
	}
}

func TestTranscribeOmitsEmptyDoctorName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		if _, ok := r.MultipartForm.Value["doctor_name"]; ok {
			t.Error("doctor_name should be omitted when empty")
		}
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).Transcribe(context.Background(), "recording.wav", []byte{1}, ""); err != nil {
		t.Fatal(err)
	}
}

func TestCopilotAndSystematizePayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
			return
		}
		switch r.URL.Path {
		case "/api/analise-clinica":
			if body["transcricao"] != "dor torácica" || body["contexto"] != "PS" {
				t.Errorf("copilot body = %v", body)
			}
			w.Write([]byte(`{"analise_clinica":"Red flags: SCA"}`))
		case "/api/sistematizar-consulta":
			if body["transcricao_completa"] != "dor torácica" || body["contexto"] != "Consultório" {
				t.Errorf("systematize body = %v", body)
			}
			w.Write([]byte(`{"prontuario":"HDA","receituario":"AAS","atestado":"2 dias","exames":"ECG","orientacoes":"repouso"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	insight, err := c.Copilot(context.Background(), "dor torácica", models.ScenarioPS)
	if err != nil || insight != "Red flags: SCA" {
		t.Fatalf("Copilot = %q, %v", insight, err)
	}
	bundle, err := c.Systematize(context.Background(), "dor torácica", models.ScenarioConsultorio)
	if err != nil {
		t.Fatalf("Systematize: %v", err)
	}
	want := models.Bundle{Prontuario: "HDA", Receituario: "AAS", Atestado: "2 dias", Exames: "ECG", Orientacoes: "repouso"}
	if bundle != want {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apierr.Kind
		wantMsg  string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"invalid key"}`, apierr.KindUnauthenticated, "AI model unavailable — invalid API key."},
		{"rate limited", http.StatusTooManyRequests, `{}`, apierr.KindRateLimited, "Rate limit reached; retry shortly."},
		{"unavailable", http.StatusServiceUnavailable, `{}`, apierr.KindUnavailable, "AI service unavailable."},
		{"server error", http.StatusInternalServerError, `{"detail":"Erro ao sistematizar consulta com GPT-4o"}`, apierr.KindOther, "Erro ao sistematizar consulta com GPT-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Systematize(context.Background(), "x", models.ScenarioUBS)
			if apierr.KindOf(err) != tt.wantKind {
				t.Errorf("KindOf = %v, want %v", apierr.KindOf(err), tt.wantKind)
			}
			if got := apierr.UserMessage(err); got != tt.wantMsg {
				t.Errorf("UserMessage = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Copilot(context.Background(), "x", models.ScenarioUBS)
	if apierr.KindOf(err) != apierr.KindTransport {
		t.Errorf("KindOf = %v, want transport", apierr.KindOf(err))
	}
}

func TestCancelledRequest(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(srv.URL, time.Second).Copilot(ctx, "x", models.ScenarioUBS)
	if !apierr.IsCancelled(err) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestClientTimeoutIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, 50*time.Millisecond).Copilot(context.Background(), "dor torácica", models.ScenarioPS)
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if apierr.IsCancelled(err) {
		t.Errorf("client timeout reported as cancelled: %v", err)
	}
	if k := apierr.KindOf(err); k != apierr.KindTransport {
		t.Errorf("kind = %v, want transport", k)
	}
	if msg := apierr.UserMessage(err); msg != "The server took too long to respond." {
		t.Errorf("UserMessage = %q", msg)
	}
}

func TestAnalyzeAndSettings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/analyze":
			var req models.AnalyzeRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.NomeCompleto != "João" || req.Idade != 42 || req.CenarioAtendimento != "UTI" {
				t.Errorf("analyze request = %+v", req)
			}
			w.Write([]byte(`{"success":true,"consultation_id":7}`))
		case r.URL.Path == "/api/settings/llm/" && r.Method == http.MethodGet:
			w.Write([]byte(`{"provider":"openai","api_key_masked":"sk-...abcd","has_api_key":true,"transcription_model":"whisper-1","chat_model":"gpt-4o-mini"}`))
		case r.URL.Path == "/api/settings/llm/" && r.Method == http.MethodPut:
			var upd models.LLMSettingsUpdate
			json.NewDecoder(r.Body).Decode(&upd)
			if upd.ChatModel == nil || *upd.ChatModel != "gpt-4o" || upd.APIKey != nil {
				t.Errorf("update = %+v", upd)
			}
			w.Write([]byte(`{"provider":"openai","chat_model":"gpt-4o"}`))
		case r.URL.Path == "/api/settings/llm/test":
			w.Write([]byte(`{"success":true,"message":"ok","model_tested":"gpt-4o"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	res, err := c.Analyze(ctx, models.AnalyzeRequest{NomeCompleto: "João", Idade: 42, CenarioAtendimento: "UTI", TextoTranscrito: "t"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ConsultationID == nil || *res.ConsultationID != 7 {
		t.Errorf("ConsultationID = %v", res.ConsultationID)
	}

	settings, err := c.LLMSettings(ctx)
	if err != nil || !settings.HasAPIKey || settings.ChatModel != "gpt-4o-mini" {
		t.Fatalf("LLMSettings = %+v, %v", settings, err)
	}

	model := "gpt-4o"
	updated, err := c.UpdateLLMSettings(ctx, models.LLMSettingsUpdate{ChatModel: &model})
	if err != nil || updated.ChatModel != "gpt-4o" {
		t.Fatalf("UpdateLLMSettings = %+v, %v", updated, err)
	}

	result, err := c.TestLLMConnection(ctx)
	if err != nil || !result.Success {
		t.Fatalf("TestLLMConnection = %+v, %v", result, err)
	}
}
