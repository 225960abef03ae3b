// Package diag writes the structured diagnostics log of a consultation:
// block uploads, copilot responses and session lifecycle. Transcript text is
// never written, only sizes and timings.
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const FileName = "diagnostics_log.txt"

type Logger struct {
	mu   sync.Mutex
	zl   zerolog.Logger
	file *os.File
}

// Open appends to diagnostics_log.txt in dir, creating both if needed.
func Open(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics log: %w", err)
	}
	l := NewWriter(f)
	l.file = f
	return l, nil
}

// NewWriter logs to w in the same console format as Open.
func NewWriter(w io.Writer) *Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	return &Logger{
		zl: zerolog.New(consoleWriter).With().Timestamp().Int("pid", os.Getpid()).Logger(),
	}
}

// Nop discards everything. A nil *Logger behaves the same.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.zl = zerolog.Nop()
	return err
}

func (l *Logger) info() *zerolog.Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl.Info()
}

func (l *Logger) warn() *zerolog.Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl.Warn()
}

func (l *Logger) SessionStart(id, scenario string) {
	l.info().Str("session", id).Str("scenario", scenario).Msg("session_start")
}

func (l *Logger) SessionEnd(id, reason string, blocks int, elapsed time.Duration) {
	l.info().Str("session", id).Str("reason", reason).Int("blocks", blocks).
		Float64("elapsed_s", elapsed.Seconds()).Msg("session_end")
}

// Block records a transcribed block.
func (l *Logger) Block(index, sizeBytes int, audio, latency time.Duration, chars int) {
	l.info().Int("index", index).
		Float64("size_kb", float64(sizeBytes)/1024).
		Float64("audio_s", audio.Seconds()).
		Float64("total_ms", float64(latency.Microseconds())/1000).
		Int("chars", chars).
		Msg("block")
}

func (l *Logger) BlockFailed(index int, kind string, err error) {
	l.warn().Int("index", index).Str("kind", kind).Err(err).Msg("block_failed")
}

func (l *Logger) Insight(generation uint64, chars int, latency time.Duration) {
	l.info().Uint64("generation", generation).Int("chars", chars).
		Float64("total_ms", float64(latency.Microseconds())/1000).Msg("insight")
}

func (l *Logger) InsightDropped(generation uint64, reason string) {
	l.info().Uint64("generation", generation).Str("reason", reason).Msg("insight_dropped")
}

func (l *Logger) InsightFailed(generation uint64, kind string, err error) {
	l.warn().Uint64("generation", generation).Str("kind", kind).Err(err).Msg("insight_failed")
}

func (l *Logger) Finalize(chars int, latency time.Duration, err error) {
	var ev *zerolog.Event
	if err != nil {
		ev = l.warn().Err(err)
	} else {
		ev = l.info()
	}
	ev.Int("chars", chars).Float64("total_ms", float64(latency.Microseconds())/1000).Msg("finalize")
}
