// Command detect runs bark detection over one recording and prints the
// report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	app "github.com/okian/barkwatch/internal/app"
	"github.com/okian/barkwatch/internal/config"
	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/internal/domain/types"
	"github.com/okian/barkwatch/pkg/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// Error constants.
var (
	ErrInvalidConfidence = errors.New("confidence threshold must be between 0.0 and 1.0")
	ErrInvalidFormat     = errors.New("unknown output format")
	ErrFileNotFound      = errors.New("file not found")
)

type flags struct {
	confidence float64
	mergeGap   float64
	chunkSize  float64
	overlap    float64
	noMerge    bool
	scorerURL  string
	classMap   string
	format     string
	output     string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the detect command. A nil src decodes files with ffmpeg.
func newRootCmd(src chunking.Source) *cobra.Command {
	defaults := config.New()
	f := flags{}

	cmd := &cobra.Command{
		Use:   "detect <audio-file>",
		Short: "Detect dog barks in an audio file",
		Example: `  detect recording.mp3
  detect audio.wav --confidence 0.4 --merge-gap 2.0
  detect long_audio.mp3 --chunk-size 120 --format json --output results.json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, args[0], f, src)
		},
	}

	fs := cmd.Flags()
	fs.Float64VarP(&f.confidence, "confidence", "c", defaults.ConfidenceThreshold, "confidence threshold for detection (0.0-1.0)")
	fs.Float64VarP(&f.mergeGap, "merge-gap", "m", defaults.MergeGap, "merge detections within this gap in seconds")
	fs.Float64VarP(&f.chunkSize, "chunk-size", "s", defaults.ChunkDuration, "chunk size for processing long files in seconds")
	fs.Float64Var(&f.overlap, "overlap", defaults.ChunkOverlap, "overlap between consecutive chunks in seconds")
	fs.BoolVar(&f.noMerge, "no-merge", false, "do not merge nearby detections")
	fs.StringVar(&f.scorerURL, "scorer-url", "", "base URL of the frame scoring service; empty uses the built-in energy scorer")
	fs.StringVar(&f.classMap, "class-map", "", "class map CSV (index,mid,display_name)")
	fs.StringVarP(&f.format, "format", "f", formatText, "output format: text, json or yaml")
	fs.StringVarP(&f.output, "output", "o", "", "write the report to this file instead of stdout")
	fs.StringVar(&f.logLevel, "log-level", "warn", "log level written to stderr")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, input string, f flags, src chunking.Source) error {
	if !(f.confidence >= 0 && f.confidence <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, f.confidence)
	}
	format := strings.ToLower(f.format)
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFormat, f.format)
	}

	if err := logger.InitWithOptions(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
		return err
	}
	if err := logger.SetLevelString(f.logLevel); err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, input)
	}

	detector, err := app.NewDetector(cfg, src, logger.Get())
	if err != nil {
		return err
	}
	report, err := detector.Detect(ctx, input)
	if err != nil {
		return err
	}

	if f.output == "" {
		return writeReport(cmd.OutOrStdout(), format, report)
	}
	file, err := os.Create(f.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	return writeAndClose(file, format, report)
}

// applyFlags overrides cfg with the flags given on the command line, so the
// config file and BARKWATCH_* variables fill in the rest.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) { //nolint:gocritic // hugeParam
	fs := cmd.Flags()
	if fs.Changed("confidence") {
		cfg.ConfidenceThreshold = f.confidence
	}
	if fs.Changed("merge-gap") {
		cfg.MergeGap = f.mergeGap
	}
	if fs.Changed("chunk-size") {
		cfg.ChunkDuration = f.chunkSize
	}
	if fs.Changed("overlap") {
		cfg.ChunkOverlap = f.overlap
	}
	if fs.Changed("no-merge") {
		cfg.MergeEnabled = !f.noMerge
	}
	if fs.Changed("scorer-url") {
		cfg.ScorerURL = f.scorerURL
	}
	if fs.Changed("class-map") {
		cfg.ClassMapPath = f.classMap
	}
}

// writeAndClose writes the report to wc and reports a failed Close, which is
// where buffered file data can be lost.
func writeAndClose(wc io.WriteCloser, format string, report model.Report) error { //nolint:gocritic // hugeParam
	if err := writeReport(wc, format, report); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func writeReport(w io.Writer, format string, report model.Report) error { //nolint:gocritic // hugeParam
	rec := types.NewReportRecord(report)
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, rec)
	}
}

func writeText(w io.Writer, rec types.ReportRecord) error { //nolint:gocritic // hugeParam
	var b strings.Builder
	fmt.Fprintf(&b, "Input: %s (%s, %d chunks)\n", rec.InputFile, rec.DurationTimestamp, rec.Chunks)
	if len(rec.Detections) == 0 {
		b.WriteString("No dog barks detected.\n")
	} else {
		fmt.Fprintf(&b, "Detected %d dog bark event(s):\n", rec.TotalDetections)
		for _, d := range rec.Detections {
			fmt.Fprintf(&b, "  #%d  %s - %s  (%.2fs)  %s  %.1f%%\n",
				d.EventNumber, d.StartTimestamp, d.EndTimestamp, d.Duration, d.ClassLabel, d.Confidence*100)
		}
		s := rec.Summary
		b.WriteString("Summary:\n")
		fmt.Fprintf(&b, "  Total events: %d\n", s.TotalEvents)
		fmt.Fprintf(&b, "  Total duration of barking: %.2f seconds\n", s.TotalDuration)
		fmt.Fprintf(&b, "  Average event duration: %.2f seconds\n", s.AvgDuration)
		fmt.Fprintf(&b, "  Average confidence: %.2f%%\n", s.AvgConfidence*100)
		fmt.Fprintf(&b, "  Confidence range: %.2f%% - %.2f%%\n", s.MinConfidence*100, s.MaxConfidence*100)
	}
	fmt.Fprintf(&b, "Processing time: %dms\n", rec.ProcessingTimeMS)
	_, err := io.WriteString(w, b.String())
	return err
}
