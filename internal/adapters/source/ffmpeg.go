// Package source provides recording readers for the chunk scheduler.
package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Default ffmpeg source configuration constants.
const (
	DefaultSampleRate  = 16000
	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"
	pcm16Scale         = 32768.0
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs commands with os/exec and folds stderr into the error.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary path comes from configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Option applies a configuration option to the FFmpegSource.
type Option func(*FFmpegSource)

// WithFFmpegPath sets the ffmpeg binary.
func WithFFmpegPath(path string) Option {
	return func(s *FFmpegSource) {
		if path != "" {
			s.ffmpegPath = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(s *FFmpegSource) {
		if path != "" {
			s.ffprobePath = path
		}
	}
}

// WithSampleRate sets the output sample rate ffmpeg resamples to.
func WithSampleRate(rate int) Option {
	return func(s *FFmpegSource) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithRunner replaces command execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(s *FFmpegSource) {
		if r != nil {
			s.run = r
		}
	}
}

// FFmpegSource reads any container ffmpeg understands. Duration comes from
// ffprobe; each Read decodes only the requested span as mono PCM.
type FFmpegSource struct {
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
	run         Runner
}

// NewFFmpegSource creates a new ffmpeg-backed source with configuration options.
func NewFFmpegSource(opts ...Option) *FFmpegSource {
	s := &FFmpegSource{
		ffmpegPath:  DefaultFFmpegPath,
		ffprobePath: DefaultFFprobePath,
		sampleRate:  DefaultSampleRate,
		run:         execRunner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type probeResult struct {
	Format struct {
		Filename string `json:"filename"`
		Duration string `json:"duration"`
	} `json:"format"`
}

// SampleRate implements chunking.Source.
func (s *FFmpegSource) SampleRate() int { return s.sampleRate }

// Duration implements chunking.Source.
func (s *FFmpegSource) Duration(ctx context.Context, path string) (float64, error) {
	input, err := fileInput(path)
	if err != nil {
		return 0, err
	}
	out, err := s.run(ctx, s.ffprobePath,
		"-v", "quiet", "-protocol_whitelist", "file",
		"-print_format", "json", "-show_format", input)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", ErrProbe, path, err)
	}
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("%w %s: parse ffprobe output: %w", ErrProbe, path, err)
	}
	if res.Format.Duration == "" {
		return 0, fmt.Errorf("%w %s: no duration reported", ErrProbe, path)
	}
	d, err := strconv.ParseFloat(res.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %s: duration %q: %w", ErrProbe, path, res.Format.Duration, err)
	}
	return d, nil
}

// Read implements chunking.Source.
func (s *FFmpegSource) Read(ctx context.Context, path string, offset, duration float64) ([]float32, error) {
	if offset < 0 || !(duration > 0) {
		return nil, fmt.Errorf("%w: offset %v, duration %v", ErrInvalidSpan, offset, duration)
	}
	input, err := fileInput(path)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, s.ffmpegPath, s.readArgs(input, offset, duration)...)
	if err != nil {
		return nil, fmt.Errorf("%w %s at %.3fs: %w", ErrDecode, path, offset, err)
	}
	samples, err := DecodePCM16LE(out)
	if err != nil {
		return nil, fmt.Errorf("%w %s at %.3fs: %w", ErrDecode, path, offset, err)
	}
	return samples, nil
}

// fileInput turns a local path into an ffmpeg input restricted to the file
// protocol. Option-like names and URLs are refused.
func fileInput(path string) (string, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return "", fmt.Errorf("%w: empty path", ErrInvalidSource)
	case strings.HasPrefix(path, "-"):
		return "", fmt.Errorf("%w: %q looks like an option", ErrInvalidSource, path)
	case strings.Contains(path, "://"):
		return "", fmt.Errorf("%w: %q is a URL, only local files are read", ErrInvalidSource, path)
	}
	return "file:" + path, nil
}

func (s *FFmpegSource) readArgs(input string, offset, duration float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-protocol_whitelist", "file",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		"-i", input,
		"-ac", "1",
		"-ar", strconv.Itoa(s.sampleRate),
		"-f", "s16le",
		"-",
	}
}

// DecodePCM16LE converts signed 16-bit little-endian PCM to samples in
// [-1, 1).
func DecodePCM16LE(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd PCM byte count %d", len(raw))
	}
	out := make([]float32, len(raw)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		out[i] = float32(float64(v) / pcm16Scale)
	}
	return out, nil
}

// EncodePCM16LE is the inverse of DecodePCM16LE, clamping to the int16 range.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * pcm16Scale)
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}
