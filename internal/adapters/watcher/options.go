package watcher

import (
	"strings"
	"time"

	"github.com/okian/barkwatch/pkg/logger"
)

const defaultDebounce = time.Second

// DefaultExtensions are the audio containers ffmpeg is expected to decode.
var DefaultExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac", ".opus", ".webm"}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is submitted.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions replaces the accepted file extensions. Matching is
// case-insensitive and a leading dot is optional.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			w.extensions[e] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}
