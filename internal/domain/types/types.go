// Package types contains the serialized shapes shared by the HTTP API and
// the CLI report writer.
package types

import (
	"time"

	"github.com/okian/barkwatch/internal/domain/model"
)

// EpisodeRecord is one numbered episode in a report.
type EpisodeRecord struct {
	EventNumber    int     `json:"event_number" yaml:"event_number"`
	StartTime      float64 `json:"start_time" yaml:"start_time"`
	EndTime        float64 `json:"end_time" yaml:"end_time"`
	StartTimestamp string  `json:"start_timestamp" yaml:"start_timestamp"`
	EndTimestamp   string  `json:"end_timestamp" yaml:"end_timestamp"`
	Duration       float64 `json:"duration" yaml:"duration"`
	Confidence     float64 `json:"confidence" yaml:"confidence"`
	ClassLabel     string  `json:"class_label" yaml:"class_label"`
}

// SummaryRecord mirrors model.Summary.
type SummaryRecord struct {
	TotalEvents   int     `json:"total_events" yaml:"total_events"`
	TotalDuration float64 `json:"total_duration" yaml:"total_duration"`
	AvgDuration   float64 `json:"avg_duration" yaml:"avg_duration"`
	AvgConfidence float64 `json:"avg_confidence" yaml:"avg_confidence"`
	MaxConfidence float64 `json:"max_confidence" yaml:"max_confidence"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

// ReportRecord is the full result document for one recording.
type ReportRecord struct {
	InputFile         string          `json:"input_file" yaml:"input_file"`
	Duration          float64         `json:"duration" yaml:"duration"`
	DurationTimestamp string          `json:"duration_timestamp" yaml:"duration_timestamp"`
	Chunks            int             `json:"chunks" yaml:"chunks"`
	RawDetections     int             `json:"raw_detections" yaml:"raw_detections"`
	Merged            bool            `json:"merged" yaml:"merged"`
	TotalDetections   int             `json:"total_detections" yaml:"total_detections"`
	Detections        []EpisodeRecord `json:"detections" yaml:"detections"`
	Summary           SummaryRecord   `json:"summary" yaml:"summary"`
	ProcessingTimeMS  int64           `json:"processing_time_ms" yaml:"processing_time_ms"`
}

// JobParamsRecord mirrors model.JobParams; nil fields use service defaults.
type JobParamsRecord struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`
	MergeGap            *float64 `json:"merge_gap,omitempty" yaml:"merge_gap,omitempty"`
	NoMerge             bool     `json:"no_merge,omitempty" yaml:"no_merge,omitempty"`
}

// JobRecord is the API view of a job.
type JobRecord struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	Params         JobParamsRecord `json:"params"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	Report         *ReportRecord   `json:"report,omitempty"`
}

// NewEpisodeRecords numbers episodes from 1 in list order.
func NewEpisodeRecords(episodes []model.Episode) []EpisodeRecord {
	out := make([]EpisodeRecord, 0, len(episodes))
	for i, ep := range episodes {
		out = append(out, EpisodeRecord{
			EventNumber:    i + 1,
			StartTime:      ep.StartTime,
			EndTime:        ep.EndTime,
			StartTimestamp: model.FormatTimestamp(ep.StartTime),
			EndTimestamp:   model.FormatTimestamp(ep.EndTime),
			Duration:       ep.Duration(),
			Confidence:     ep.Confidence,
			ClassLabel:     ep.ClassLabel,
		})
	}
	return out
}

// NewSummaryRecord converts a model summary.
func NewSummaryRecord(s model.Summary) SummaryRecord {
	return SummaryRecord(s)
}

// NewReportRecord converts a model report.
func NewReportRecord(r model.Report) ReportRecord {
	return ReportRecord{
		InputFile:         r.Source,
		Duration:          r.Duration,
		DurationTimestamp: model.FormatTimestamp(r.Duration),
		Chunks:            r.Chunks,
		RawDetections:     r.RawDetections,
		Merged:            r.Merged,
		TotalDetections:   len(r.Episodes),
		Detections:        NewEpisodeRecords(r.Episodes),
		Summary:           NewSummaryRecord(r.Summary),
		ProcessingTimeMS:  r.ProcessingTime.Milliseconds(),
	}
}

// NewJobRecord converts a model job. Zero start/finish times are omitted.
func NewJobRecord(j model.Job) JobRecord {
	rec := JobRecord{
		ID:             j.ID,
		Source:         j.Source,
		IdempotencyKey: j.IdempotencyKey,
		Status:         string(j.Status),
		Error:          j.Error,
		Params: JobParamsRecord{
			ConfidenceThreshold: j.Params.ConfidenceThreshold,
			MergeGap:            j.Params.MergeGap,
			NoMerge:             j.Params.NoMerge,
		},
		CreatedAt: j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		rec.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		rec.FinishedAt = &t
	}
	if j.Report != nil {
		r := NewReportRecord(*j.Report)
		rec.Report = &r
	}
	return rec
}
