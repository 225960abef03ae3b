//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const integrationTimeout = 2 * time.Minute

// TestCheckAgainstBackend runs the configured providers on a real recording.
// Set SCRIBE_TEST_AUDIO to a 16-bit PCM WAV of a short consultation.
func TestCheckAgainstBackend(t *testing.T) {
	audio := os.Getenv("SCRIBE_TEST_AUDIO")
	if audio == "" {
		t.Skip("SCRIBE_TEST_AUDIO not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), integrationTimeout)
	defer cancel()

	reportPath := filepath.Join(t.TempDir(), "report.json")
	var out bytes.Buffer
	err := runCheck(ctx, &out, checkOptions{
		audioPath:  audio,
		timeout:    90 * time.Second,
		outputPath: reportPath,
	})
	t.Log(out.String())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report checkReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Blocks == 0 || report.PassCount != report.TotalCount-report.SkipCount {
		t.Errorf("report = %+v", report)
	}
}
