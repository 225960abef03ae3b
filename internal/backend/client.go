// Package backend is the HTTP client for the scribe backend: per-block
// transcription, the live copilot, systematization, the persisted analysis
// and the provider settings.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/models"
)

const DefaultTimeout = 60 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one encoded audio block as multipart field "file".
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte, doctorName string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	if doctorName != "" {
		if err := writer.WriteField("doctor_name", doctorName); err != nil {
			return "", fmt.Errorf("write doctor_name: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result transcribeResponse
	start := time.Now()
	if err := c.do(req, &result); err != nil {
		log.Printf("Backend: transcribe failed after %v: %v", time.Since(start), err)
		return "", err
	}
	log.Printf("Backend: transcribed %d bytes in %v (%d chars)", len(audio), time.Since(start), len(result.Text))
	return result.Text, nil
}

type insightsRequest struct {
	Transcricao string `json:"transcricao"`
	Contexto    string `json:"contexto"`
}

type insightsResponse struct {
	AnaliseClinica string `json:"analise_clinica"`
}

// Copilot requests the live clinical analysis of a partial transcript.
func (c *Client) Copilot(ctx context.Context, transcript string, scenario models.Scenario) (string, error) {
	var result insightsResponse
	err := c.postJSON(ctx, "/api/analise-clinica", insightsRequest{
		Transcricao: transcript,
		Contexto:    string(scenario),
	}, &result)
	if err != nil {
		return "", err
	}
	return result.AnaliseClinica, nil
}

type systematizeRequest struct {
	TranscricaoCompleta string `json:"transcricao_completa"`
	Contexto            string `json:"contexto"`
}

// Systematize turns the full transcript into the five-document bundle.
func (c *Client) Systematize(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error) {
	var bundle models.Bundle
	err := c.postJSON(ctx, "/api/sistematizar-consulta", systematizeRequest{
		TranscricaoCompleta: transcript,
		Contexto:            string(scenario),
	}, &bundle)
	return bundle, err
}

// Analyze runs the structured analysis that also stores the consultation.
func (c *Client) Analyze(ctx context.Context, payload models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	var result models.AnalyzeResponse
	if err := c.postJSON(ctx, "/api/analyze", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) LLMSettings(ctx context.Context) (*models.LLMSettings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/settings/llm/", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var result models.LLMSettings
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateLLMSettings(ctx context.Context, update models.LLMSettingsUpdate) (*models.LLMSettings, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/settings/llm/", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var result models.LLMSettings
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TestLLMConnection asks the backend to validate its configured provider key.
func (c *Client) TestLLMConnection(ctx context.Context) (*models.ConnectionTest, error) {
	var result models.ConnectionTest
	if err := c.postJSON(ctx, "/api/settings/llm/test", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Transport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Transport(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierr.FromResponse(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apierr.Error{Kind: apierr.KindOther, StatusCode: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}
