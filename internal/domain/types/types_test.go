package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/barkwatch/internal/domain/model"
	types "github.com/okian/barkwatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewReportRecord(t *testing.T) {
	Convey("Given a report with two episodes", t, func() {
		report := model.Report{
			Source:        "/data/yard.wav",
			Duration:      125,
			Chunks:        3,
			RawDetections: 5,
			Merged:        true,
			Episodes: []model.Episode{
				{StartTime: 0, EndTime: 1.5, Confidence: 0.7, ClassLabel: "Dog"},
				{StartTime: 61.25, EndTime: 62.5, Confidence: 0.6, ClassLabel: "Bark"},
			},
			Summary:        model.Summary{TotalEvents: 2, TotalDuration: 2.75, MaxConfidence: 0.7, MinConfidence: 0.6},
			ProcessingTime: 1500 * time.Millisecond,
		}

		Convey("When converting to a record", func() {
			rec := types.NewReportRecord(report)

			Convey("Then episodes are numbered from one with formatted timestamps", func() {
				So(rec.TotalDetections, ShouldEqual, 2)
				So(rec.Detections[0].EventNumber, ShouldEqual, 1)
				So(rec.Detections[1].EventNumber, ShouldEqual, 2)
				So(rec.Detections[1].StartTimestamp, ShouldEqual, "00:01:01.250")
				So(rec.Detections[1].Duration, ShouldAlmostEqual, 1.25, 1e-9)
				So(rec.Detections[1].ClassLabel, ShouldEqual, "Bark")
			})

			Convey("And the header fields carry over", func() {
				So(rec.InputFile, ShouldEqual, "/data/yard.wav")
				So(rec.DurationTimestamp, ShouldEqual, "00:02:05.000")
				So(rec.Chunks, ShouldEqual, 3)
				So(rec.RawDetections, ShouldEqual, 5)
				So(rec.Summary.TotalDuration, ShouldEqual, 2.75)
				So(rec.ProcessingTimeMS, ShouldEqual, 1500)
			})
		})
	})

	Convey("Given an empty report", t, func() {
		rec := types.NewReportRecord(model.Report{Source: "quiet.wav"})

		Convey("Then detections serialize as an empty list", func() {
			body, err := json.Marshal(rec)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `"detections":[]`)
			So(rec.Summary, ShouldResemble, types.SummaryRecord{})
		})
	})
}

func TestNewJobRecord(t *testing.T) {
	Convey("Given a queued job", t, func() {
		gap := 0.5
		job := model.Job{
			ID:        "job-1",
			Source:    "a.wav",
			Params:    model.JobParams{MergeGap: &gap},
			Status:    model.JobQueued,
			CreatedAt: time.Unix(100, 0).UTC(),
		}
		rec := types.NewJobRecord(job)

		Convey("Then unset times and report are omitted", func() {
			So(rec.Status, ShouldEqual, "queued")
			So(rec.StartedAt, ShouldBeNil)
			So(rec.FinishedAt, ShouldBeNil)
			So(rec.Report, ShouldBeNil)
			So(*rec.Params.MergeGap, ShouldEqual, 0.5)
		})

		Convey("When the job completes", func() {
			job.Status = model.JobCompleted
			job.StartedAt = time.Unix(101, 0).UTC()
			job.FinishedAt = time.Unix(105, 0).UTC()
			job.Report = &model.Report{Source: "a.wav", Duration: 10}
			rec := types.NewJobRecord(job)

			Convey("Then timestamps and report are present", func() {
				So(rec.StartedAt.Equal(job.StartedAt), ShouldBeTrue)
				So(rec.FinishedAt.Equal(job.FinishedAt), ShouldBeTrue)
				So(rec.Report, ShouldNotBeNil)
				So(rec.Report.Duration, ShouldEqual, 10)
			})
		})
	})
}
