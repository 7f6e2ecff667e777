package detection

import (
	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/preprocess"
	"github.com/okian/barkwatch/pkg/logger"
)

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithPlan sets the chunking plan. Defaults to 60s chunks with 2s overlap.
func WithPlan(plan chunking.Plan) Option {
	return func(d *Detector) {
		d.plan = plan
	}
}

// WithMergeGap sets the maximum gap in seconds bridged when merging.
func WithMergeGap(gap float64) Option {
	return func(d *Detector) {
		d.mergeGap = gap
	}
}

// WithMerge enables or disables episode merging.
func WithMerge(enabled bool) Option {
	return func(d *Detector) {
		d.merge = enabled
	}
}

// WithPreprocess sets the sample conditioning applied to each chunk before
// scoring. Stages run in order.
func WithPreprocess(fns ...preprocess.Func) Option {
	return func(d *Detector) {
		d.preprocess = preprocess.Chain(fns...)
	}
}

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}
