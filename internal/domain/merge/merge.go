// Package merge reconciles global-time detection events into ordered,
// non-overlapping episodes.
package merge

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/barkwatch/internal/domain/model"
)

// DefaultGap is the default maximum silence in seconds bridged by a merge.
const DefaultGap = 1.0

// Validate reports whether gap is usable as a merge gap.
func Validate(gap float64) error {
	if math.IsNaN(gap) || gap < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeGap, gap)
	}
	return nil
}

// Merge sorts events by start time and folds every event whose start lies
// within gap of the running episode end into that episode. The input slice
// is left untouched.
func Merge(events []model.DetectionEvent, gap float64) ([]model.Episode, error) {
	if err := Validate(gap); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return []model.Episode{}, nil
	}

	sorted := Sorted(events)
	episodes := make([]model.Episode, 0, len(sorted))
	current := sorted[0]
	for _, ev := range sorted[1:] {
		if ev.StartTime-current.EndTime <= gap {
			current = current.Absorb(ev)
			continue
		}
		episodes = append(episodes, current)
		current = ev
	}
	return append(episodes, current), nil
}

// Sorted returns events as unmerged episodes ordered by start time.
func Sorted(events []model.DetectionEvent) []model.Episode {
	out := make([]model.Episode, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
