package diag

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	l.SessionStart("abc", "PS")
	l.Block(0, 2048, 5*time.Second, 300*time.Millisecond, 42)
	l.BlockFailed(1, "rate_limited", errors.New("429"))
	l.Insight(3, 120, time.Second)
	l.InsightDropped(2, "superseded")
	l.Finalize(500, 2*time.Second, nil)
	l.SessionEnd("abc", "clear", 2, 10*time.Second)

	out := buf.String()
	for _, want := range []string{
		"session_start", "session=abc", "scenario=PS",
		"block", "index=0", "size_kb=2", "audio_s=5", "chars=42",
		"block_failed", "kind=rate_limited",
		"insight", "generation=3",
		"insight_dropped", "reason=superseded",
		"finalize", "session_end", "blocks=2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestFinalizeErrorIsWarning(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Finalize(10, time.Second, errors.New("boom"))
	if !strings.Contains(buf.String(), "WRN") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected warning with error, got %q", buf.String())
	}
}

func TestNilAndNopLoggers(t *testing.T) {
	var l *Logger
	l.SessionStart("x", "UBS")
	l.Insight(1, 1, time.Millisecond)
	if err := l.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
	Nop().Block(0, 1, time.Second, time.Second, 1)
}

func TestOpenAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for i := 0; i < 2; i++ {
		l, err := Open(dir)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		l.SessionStart("s", "UTI")
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		l.SessionStart("after-close", "UTI")
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "session_start"); n != 2 {
		t.Errorf("got %d session_start lines, want 2", n)
	}
	if strings.Contains(string(data), "after-close") {
		t.Error("writes after Close must be discarded")
	}
}
