// Package summary reduces an episode list to aggregate statistics.
package summary

import "github.com/okian/barkwatch/internal/domain/model"

// Reduce computes count, duration and confidence statistics over episodes.
// An empty list yields the zero Summary.
func Reduce(episodes []model.Episode) model.Summary {
	if len(episodes) == 0 {
		return model.Summary{}
	}

	s := model.Summary{
		TotalEvents:   len(episodes),
		MaxConfidence: episodes[0].Confidence,
		MinConfidence: episodes[0].Confidence,
	}
	var confSum float64
	for _, ep := range episodes {
		s.TotalDuration += ep.Duration()
		confSum += ep.Confidence
		if ep.Confidence > s.MaxConfidence {
			s.MaxConfidence = ep.Confidence
		}
		if ep.Confidence < s.MinConfidence {
			s.MinConfidence = ep.Confidence
		}
	}
	n := float64(len(episodes))
	s.AvgDuration = s.TotalDuration / n
	s.AvgConfidence = confSum / n
	return s
}
