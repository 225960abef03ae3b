package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/medicalscribe/scribe/internal/backend"
	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/deps"
	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/recording"
	"github.com/medicalscribe/scribe/internal/transcriber"
	"github.com/spf13/cobra"
)

const (
	checkSampleRate    = 16000
	checkChannels      = 1
	checkBitsPerSample = 16
)

type checkOptions struct {
	audioPath   string
	recordFor   time.Duration
	timeout     time.Duration
	outputPath  string
	scenario    string
	skipCopilot bool
}

type stageResult struct {
	Stage      string `json:"stage"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

type checkReport struct {
	StartedAt  time.Time     `json:"started_at"`
	AudioSrc   string        `json:"audio_src"`
	Blocks     int           `json:"blocks"`
	Tools      []deps.Status `json:"tools"`
	Results    []stageResult `json:"results"`
	PassCount  int           `json:"pass_count"`
	FailCount  int           `json:"fail_count"`
	SkipCount  int           `json:"skip_count"`
	TotalCount int           `json:"total_count"`
}

func checkCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a recording through the configured providers end to end",
		Long: `Splits audio into blocks the way the daemon does, transcribes every
block, then asks for a live insight and the clinical documents. Audio comes
from a WAV file or a short microphone recording.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "WAV file to use")
	cmd.Flags().DurationVar(&opts.recordFor, "record-seconds", 0, "record mic audio instead (e.g. 10s)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "per-request timeout")
	cmd.Flags().StringVar(&opts.outputPath, "output", "", "write a JSON report to file")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "care setting (default from config)")
	cmd.Flags().BoolVar(&opts.skipCopilot, "skip-copilot", false, "only check transcription")

	return cmd
}

func runCheck(ctx context.Context, w io.Writer, opts checkOptions) error {
	if (opts.audioPath == "") == (opts.recordFor <= 0) {
		return fmt.Errorf("use exactly one of --audio or --record-seconds")
	}
	if opts.timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	scenarioName := opts.scenario
	if scenarioName == "" {
		scenarioName = cfg.Session.Scenario
	}
	scenario, err := models.ParseScenario(scenarioName)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	pcm, audioSrc, err := loadCheckAudio(ctx, cfg, opts)
	if err != nil {
		return err
	}

	client := backend.New(cfg.Backend.URL, opts.timeout)
	tr, err := transcriber.New(cfg.ToTranscriberConfig(), client, func() string { return "" })
	if err != nil {
		return err
	}
	var clinical llm.Clinical
	if !opts.skipCopilot {
		if clinical, err = llm.New(cfg.ToLLMConfig(), client); err != nil {
			return err
		}
	}

	blocks := splitBlocks(pcm, cfg.Recording.BlockPeriod, startedAt)
	results := checkStages(ctx, opts.timeout, tr, clinical, blocks, scenario,
		cfg.Transcription.Provider, cfg.Copilot.Provider)

	report := summarizeReport(startedAt, audioSrc, len(blocks), results)
	report.Tools = deps.CheckAll(deps.ToolsFor(cfg.Recording.Backend))
	printReport(w, report)

	if opts.outputPath != "" {
		if err := writeReport(opts.outputPath, report); err != nil {
			return err
		}
	}
	if report.FailCount > 0 {
		return fmt.Errorf("%d of %d checks failed", report.FailCount, report.TotalCount)
	}
	return nil
}

// checkStages transcribes every block in order, then runs the copilot and
// systematization on the joined text. A nil clinical skips both.
func checkStages(ctx context.Context, timeout time.Duration, tr transcriber.Transcriber, clinical llm.Clinical,
	blocks []capture.Block, scenario models.Scenario, trProvider, aiProvider string) []stageResult {

	var results []stageResult
	var parts []string
	for _, blk := range blocks {
		res := timed(fmt.Sprintf("transcribe block %d", blk.Index), trProvider, func() (string, error) {
			tctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return tr.Transcribe(tctx, blk)
		})
		if res.Status == "pass" && strings.TrimSpace(res.Output) != "" {
			parts = append(parts, strings.TrimSpace(res.Output))
		}
		results = append(results, res)
	}
	transcript := strings.Join(parts, " ")

	if clinical == nil {
		return results
	}
	if transcript == "" {
		for _, stage := range []string{"copilot", "systematize"} {
			results = append(results, stageResult{Stage: stage, Provider: aiProvider, Status: "skip", Error: "empty transcript"})
		}
		return results
	}

	results = append(results, timed("copilot", aiProvider, func() (string, error) {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return clinical.Copilot(tctx, transcript, scenario)
	}))
	results = append(results, timed("systematize", aiProvider, func() (string, error) {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		bundle, err := clinical.Systematize(tctx, transcript, scenario)
		if err != nil {
			return "", err
		}
		if bundle.Count() == 0 {
			return "", fmt.Errorf("no documents returned")
		}
		return fmt.Sprintf("%d documents", bundle.Count()), nil
	}))
	return results
}

func timed(stage, provider string, fn func() (string, error)) stageResult {
	start := time.Now()
	out, err := fn()
	res := stageResult{
		Stage:      stage,
		Provider:   provider,
		Status:     "pass",
		DurationMS: time.Since(start).Milliseconds(),
		Output:     out,
	}
	if err != nil {
		res.Status = "fail"
		res.Error = err.Error()
	}
	return res
}

// splitBlocks cuts 16 kHz mono PCM into WAV blocks of period, the last one
// possibly shorter.
func splitBlocks(pcm []byte, period time.Duration, start time.Time) []capture.Block {
	format := capture.Format{SampleRate: checkSampleRate, Channels: checkChannels}
	size := int(period.Seconds() * checkSampleRate * checkChannels * checkBitsPerSample / 8)
	size -= size % 2
	if size <= 0 {
		size = len(pcm)
	}

	var blocks []capture.Block
	for offset := 0; offset < len(pcm); offset += size {
		end := min(offset+size, len(pcm))
		chunk := pcm[offset:end]
		begin := start.Add(format.Duration(offset))
		blocks = append(blocks, capture.Block{
			Index:     len(blocks),
			StartedAt: begin,
			EndedAt:   begin.Add(format.Duration(len(chunk))),
			MediaType: capture.MediaTypeWAV,
			Bytes:     capture.EncodeWAV(chunk, format),
		})
	}
	return blocks
}

func loadCheckAudio(ctx context.Context, cfg *config.Config, opts checkOptions) ([]byte, string, error) {
	if opts.audioPath != "" {
		wav, err := readWAVFile(opts.audioPath)
		if err != nil {
			return nil, "", err
		}
		return wav.data, opts.audioPath, nil
	}

	audio, err := recordAudio(ctx, cfg, opts.recordFor)
	if err != nil {
		return nil, "", err
	}
	return audio, fmt.Sprintf("recording:%s", opts.recordFor), nil
}

type wavData struct {
	data          []byte
	sampleRate    int
	channels      int
	bitsPerSample int
}

func readWAVFile(path string) (*wavData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseWAV(data)
}

// parseWAV reads 16-bit PCM WAV and returns it as 16 kHz mono.
func parseWAV(data []byte) (*wavData, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("invalid wav: too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid wav: missing riff/wave header")
	}

	offset := 12
	var fmtFound, dataFound bool
	var info wavData

	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if offset+chunkSize > len(data) {
			return nil, fmt.Errorf("invalid wav: chunk overflows file")
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("invalid wav: fmt chunk too short")
			}
			if audioFormat := binary.LittleEndian.Uint16(data[offset : offset+2]); audioFormat != 1 {
				return nil, fmt.Errorf("unsupported wav format: %d", audioFormat)
			}
			info.channels = int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(data[offset+14 : offset+16]))
			fmtFound = true
		case "data":
			info.data = data[offset : offset+chunkSize]
			dataFound = true
		}

		offset += chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if !fmtFound || !dataFound {
		return nil, fmt.Errorf("invalid wav: missing fmt or data chunk")
	}
	if info.bitsPerSample != checkBitsPerSample {
		return nil, fmt.Errorf("unsupported wav bits per sample: %d", info.bitsPerSample)
	}
	if info.sampleRate <= 0 || info.channels <= 0 {
		return nil, fmt.Errorf("invalid wav: rate=%d channels=%d", info.sampleRate, info.channels)
	}

	mono, err := downmixToMono(info.data, info.channels)
	if err != nil {
		return nil, err
	}
	resampled := resamplePCM16(mono, info.sampleRate, checkSampleRate)
	if len(resampled) == 0 {
		return nil, fmt.Errorf("invalid wav: empty audio data")
	}
	return &wavData{data: resampled, sampleRate: checkSampleRate, channels: checkChannels, bitsPerSample: checkBitsPerSample}, nil
}

func downmixToMono(data []byte, channels int) ([]byte, error) {
	if channels == 1 {
		return data, nil
	}
	frameSize := 2 * channels
	if len(data)%frameSize != 0 {
		return nil, fmt.Errorf("invalid pcm data length")
	}

	frames := len(data) / frameSize
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			idx := (i*channels + c) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(data[idx : idx+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out, nil
}

// resamplePCM16 converts by linear interpolation.
func resamplePCM16(data []byte, inRate, outRate int) []byte {
	if inRate == outRate || len(data) < 2 {
		return data
	}

	numIn := len(data) / 2
	numOut := int(math.Round(float64(numIn) * float64(outRate) / float64(inRate)))
	out := make([]byte, numOut*2)
	for i := 0; i < numOut; i++ {
		srcPos := float64(i) * float64(inRate) / float64(outRate)
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s1 := sampleAtPCM16(data, srcIdx)
		s2 := sampleAtPCM16(data, srcIdx+1)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(float64(s1)*(1-frac)+float64(s2)*frac)))
	}
	return out
}

func sampleAtPCM16(data []byte, idx int) int16 {
	pos := idx * 2
	if pos+1 >= len(data) {
		pos = len(data) - 2
	}
	if pos < 0 {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(data[pos : pos+2]))
}

func recordAudio(ctx context.Context, cfg *config.Config, duration time.Duration) ([]byte, error) {
	rc := cfg.ToRecordingConfig()
	rc.SampleRate = checkSampleRate
	rc.Channels = checkChannels
	source, err := recording.NewSource(rc)
	if err != nil {
		return nil, err
	}

	frameCh, errCh, err := source.Start(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "check: recording %s...\n", duration)

	var audio []byte
	done := make(chan struct{})
	go func() {
		for frame := range frameCh {
			audio = append(audio, frame.Data...)
		}
		close(done)
	}()

	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
	source.Stop()
	<-done

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	default:
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio captured")
	}
	return audio, nil
}

func summarizeReport(startedAt time.Time, audioSrc string, blocks int, results []stageResult) checkReport {
	report := checkReport{
		StartedAt: startedAt,
		AudioSrc:  audioSrc,
		Blocks:    blocks,
		Results:   results,
	}
	for _, r := range results {
		report.TotalCount++
		switch r.Status {
		case "pass":
			report.PassCount++
		case "fail":
			report.FailCount++
		case "skip":
			report.SkipCount++
		}
	}
	return report
}

func printReport(w io.Writer, report checkReport) {
	fmt.Fprintf(w, "check: total=%d pass=%d fail=%d skip=%d\n", report.TotalCount, report.PassCount, report.FailCount, report.SkipCount)
	fmt.Fprintf(w, "audio: %s (%d blocks)\n", report.AudioSrc, report.Blocks)
	for _, r := range report.Results {
		line := fmt.Sprintf("%s %s [%s]", r.Status, r.Stage, r.Provider)
		if r.DurationMS > 0 {
			line += fmt.Sprintf(" %dms", r.DurationMS)
		}
		if r.Error != "" {
			line += fmt.Sprintf(" error=%s", truncateString(r.Error, 160))
		}
		if r.Output != "" {
			line += fmt.Sprintf(" output=%q", truncateString(r.Output, 120))
		}
		fmt.Fprintln(w, line)
	}
	for _, tool := range report.Tools {
		fmt.Fprintln(w, toolLine(tool))
	}
}

func toolLine(s deps.Status) string {
	switch {
	case s.Installed && s.Version != "":
		return fmt.Sprintf("tool %s: %s (%s)", s.Name, s.Path, s.Version)
	case s.Installed:
		return fmt.Sprintf("tool %s: %s", s.Name, s.Path)
	case s.Required:
		return fmt.Sprintf("tool %s: MISSING, needed for %s", s.Name, s.Purpose)
	}
	return fmt.Sprintf("tool %s: not installed, %s unavailable", s.Name, s.Purpose)
}

func writeReport(path string, report checkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
