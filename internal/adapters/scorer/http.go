// Package scorer provides a frame scorer client for a remote model server.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/barkwatch/internal/domain/scoring"
)

// Default HTTP scorer configuration constants.
const (
	defaultTimeout  = 60 * time.Second
	maxErrorBodyLen = 512
)

// ErrEmptyURL is returned when no model server URL is configured.
var ErrEmptyURL = errors.New("scorer url is empty")

type scoreRequest struct {
	SampleRate int       `json:"sample_rate"`
	Samples    []float32 `json:"samples"`
}

type scoreResponse struct {
	Scores [][]float64 `json:"scores"`
}

// Option applies a configuration option to the HTTPScorer.
type Option func(*HTTPScorer)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPScorer) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// client, whichever order the options come in.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPScorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSampleRate sets the rate the model was built for.
func WithSampleRate(rate int) Option {
	return func(s *HTTPScorer) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithClasses sets the expected probability vector length.
func WithClasses(n int) Option {
	return func(s *HTTPScorer) {
		if n > 0 {
			s.classes = n
		}
	}
}

// HTTPScorer posts chunk samples to POST {url}/score and expects
// {"scores": [[...], ...]} back, one vector per frame. It is safe for
// concurrent use.
type HTTPScorer struct {
	url        string
	client     *http.Client
	timeout    time.Duration
	sampleRate int
	classes    int
}

// NewHTTPScorer creates a new HTTP scorer with configuration options.
func NewHTTPScorer(url string, opts ...Option) (*HTTPScorer, error) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return nil, ErrEmptyURL
	}
	s := &HTTPScorer{
		url:        url,
		sampleRate: scoring.DefaultSampleRate,
		classes:    scoring.YAMNetClasses,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = &http.Client{Timeout: defaultTimeout}
	}
	if s.timeout > 0 {
		c := *s.client
		c.Timeout = s.timeout
		s.client = &c
	}
	return s, nil
}

// SampleRate implements scoring.Scorer.
func (s *HTTPScorer) SampleRate() int { return s.sampleRate }

// Classes implements scoring.Scorer.
func (s *HTTPScorer) Classes() int { return s.classes }

// Score implements scoring.Scorer.
func (s *HTTPScorer) Score(ctx context.Context, samples []float32, sampleRate int) ([][]float64, error) {
	if err := scoring.CheckSampleRate(s.sampleRate, sampleRate); err != nil {
		return nil, err
	}
	if samples == nil {
		samples = []float32{}
	}
	b, err := json.Marshal(scoreRequest{SampleRate: sampleRate, Samples: samples})
	if err != nil {
		return nil, fmt.Errorf("score encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/score", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, fmt.Errorf("score %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("score decode: %w", err)
	}
	if err := scoring.ValidateFrames(out.Scores, s.classes); err != nil {
		return nil, err
	}
	return out.Scores, nil
}
