package detection_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/barkwatch/internal/domain/chunking"
	"github.com/okian/barkwatch/internal/domain/detection"
	"github.com/okian/barkwatch/internal/domain/extract"
	"github.com/okian/barkwatch/internal/domain/merge"
	"github.com/okian/barkwatch/internal/domain/model"
	"github.com/okian/barkwatch/internal/domain/preprocess"
	"github.com/okian/barkwatch/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

const rate = 100

// signalSource synthesizes a recording from a per-sample function of the
// global sample index.
type signalSource struct {
	duration float64
	rate     int
	signal   func(global int) float32
	reads    int
}

func (s *signalSource) Duration(ctx context.Context, path string) (float64, error) {
	return s.duration, nil
}

func (s *signalSource) Read(ctx context.Context, path string, offset, duration float64) ([]float32, error) {
	s.reads++
	first := int(math.Round(offset * float64(s.rate)))
	n := int(math.Round(duration * float64(s.rate)))
	out := make([]float32, n)
	for k := range out {
		if s.signal != nil {
			out[k] = s.signal(first + k)
		}
	}
	return out, nil
}

func (s *signalSource) SampleRate() int { return s.rate }

// scriptedScorer returns frames built by fn for each call.
type scriptedScorer struct {
	rate    int
	classes int
	fn      func(call int, samples []float32) ([][]float64, error)
	calls   int
	seen    [][]float32
}

func (s *scriptedScorer) SampleRate() int { return s.rate }
func (s *scriptedScorer) Classes() int    { return s.classes }

func (s *scriptedScorer) Score(ctx context.Context, samples []float32, sampleRate int) ([][]float64, error) {
	if err := scoring.CheckSampleRate(s.rate, sampleRate); err != nil {
		return nil, err
	}
	call := s.calls
	s.calls++
	s.seen = append(s.seen, samples)
	return s.fn(call, samples)
}

// hitAt returns n two-class frames where the listed frames score 0.9 on class 1.
func hitAt(n int, frames ...int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{0.1, 0}
	}
	for _, f := range frames {
		out[f][1] = 0.9
	}
	return out
}

func newExtractor(threshold float64) *extract.Extractor {
	ex, err := extract.New(
		extract.WithFrameDuration(1),
		extract.WithHopDuration(0.5),
		extract.WithTargets(1),
		extract.WithThreshold(threshold),
		extract.WithLabels(func(int) string { return "Bark" }),
	)
	if err != nil {
		panic(err)
	}
	return ex
}

func plan(c, o float64) chunking.Plan {
	p, err := chunking.NewPlan(c, o)
	if err != nil {
		panic(err)
	}
	return p
}

func TestDetectorConstruction(t *testing.T) {
	Convey("Given detector dependencies", t, func() {
		src := &signalSource{duration: 10, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2}
		ex := newExtractor(0.5)

		Convey("When the scorer and source rates differ", func() {
			_, err := detection.New(src, &scriptedScorer{rate: 16000, classes: 2}, ex)

			Convey("Then construction fails before any read", func() {
				So(errors.Is(err, scoring.ErrSampleRateMismatch), ShouldBeTrue)
				So(src.reads, ShouldEqual, 0)
			})
		})

		Convey("When the merge gap is negative", func() {
			_, err := detection.New(src, sc, ex, detection.WithMergeGap(-1))
			So(errors.Is(err, merge.ErrNegativeGap), ShouldBeTrue)
		})

		Convey("When the plan is the zero value", func() {
			_, err := detection.New(src, sc, ex, detection.WithPlan(chunking.Plan{}))
			So(errors.Is(err, chunking.ErrInvalidChunkDuration), ShouldBeTrue)
		})

		Convey("When a target class exceeds the scorer output", func() {
			_, err := detection.New(src, &scriptedScorer{rate: rate, classes: 1}, ex)
			So(errors.Is(err, extract.ErrClassOutOfRange), ShouldBeTrue)
		})

		Convey("When a dependency is missing", func() {
			_, err := detection.New(nil, sc, ex)
			So(errors.Is(err, detection.ErrMissingDependency), ShouldBeTrue)
		})
	})
}

func TestDetectGlobalTimestamps(t *testing.T) {
	Convey("Given a 125s recording with one hit per chunk at local 0.5s", t, func() {
		src := &signalSource{duration: 125, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(int, []float32) ([][]float64, error) {
			return hitAt(3, 1), nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5),
			detection.WithPlan(plan(60, 2)),
			detection.WithMerge(false),
		)
		So(err, ShouldBeNil)

		Convey("When detecting without merging", func() {
			report, err := d.Detect(context.Background(), "yard.wav")

			Convey("Then every event is offset by its chunk start", func() {
				So(err, ShouldBeNil)
				So(report.Chunks, ShouldEqual, 3)
				So(report.RawDetections, ShouldEqual, 3)
				So(report.Merged, ShouldBeFalse)
				So(len(report.Episodes), ShouldEqual, 3)
				So(report.Episodes[0].StartTime, ShouldEqual, 0.5)
				So(report.Episodes[1].StartTime, ShouldEqual, 58.5)
				So(report.Episodes[2].StartTime, ShouldEqual, 116.5)
				So(report.Episodes[2].EndTime, ShouldEqual, 117.5)
				So(report.Episodes[0].ClassLabel, ShouldEqual, "Bark")
			})

			Convey("And the report describes the recording", func() {
				So(report.Source, ShouldEqual, "yard.wav")
				So(report.Duration, ShouldEqual, 125)
				So(report.Summary.TotalEvents, ShouldEqual, 3)
				So(report.Summary.MaxConfidence, ShouldEqual, 0.9)
				So(sc.calls, ShouldEqual, 3)
				So(len(sc.seen[2]), ShouldEqual, 900)
			})
		})
	})
}

func TestDetectOverlapDuplicates(t *testing.T) {
	Convey("Given a hit seen by both chunks of an overlap", t, func() {
		src := &signalSource{duration: 100, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(call int, _ []float32) ([][]float64, error) {
			switch call {
			case 0:
				return hitAt(120, 117), nil // local 58.5s
			case 1:
				return hitAt(80, 1), nil // local 0.5s, chunk starts at 58s
			default:
				return hitAt(4), nil
			}
		}}
		d, err := detection.New(src, sc, newExtractor(0.5), detection.WithPlan(plan(60, 2)), detection.WithMergeGap(0))
		So(err, ShouldBeNil)

		Convey("When detecting with merging", func() {
			report, err := d.Detect(context.Background(), "yard.wav")

			Convey("Then the duplicate collapses into one episode", func() {
				So(err, ShouldBeNil)
				So(report.RawDetections, ShouldEqual, 2)
				So(len(report.Episodes), ShouldEqual, 1)
				So(report.Episodes[0].StartTime, ShouldEqual, 58.5)
				So(report.Episodes[0].EndTime, ShouldEqual, 59.5)
				So(report.Merged, ShouldBeTrue)
			})
		})
	})
}

func TestDetectFailures(t *testing.T) {
	Convey("Given a scorer that fails on the third chunk", t, func() {
		boom := errors.New("malformed audio")
		src := &signalSource{duration: 125, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(call int, _ []float32) ([][]float64, error) {
			if call == 2 {
				return nil, boom
			}
			return hitAt(3, 1), nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5), detection.WithPlan(plan(60, 2)))
		So(err, ShouldBeNil)

		Convey("When detecting", func() {
			report, err := d.Detect(context.Background(), "yard.wav")

			Convey("Then the whole recording fails and names the chunk", func() {
				So(errors.Is(err, detection.ErrScoreChunk), ShouldBeTrue)
				So(errors.Is(err, boom), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "chunk 2")
				So(report.Episodes, ShouldBeNil)
			})
		})
	})

	Convey("Given a scorer emitting an invalid probability", t, func() {
		src := &signalSource{duration: 10, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(int, []float32) ([][]float64, error) {
			return [][]float64{{0, 1.5}}, nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5))
		So(err, ShouldBeNil)

		_, err = d.Detect(context.Background(), "x.wav")
		So(errors.Is(err, scoring.ErrInvalidProbability), ShouldBeTrue)
	})

	Convey("Given a cancelled context", t, func() {
		src := &signalSource{duration: 10, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(int, []float32) ([][]float64, error) {
			return hitAt(1), nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = d.Detect(ctx, "x.wav")

		Convey("Then no chunk is scored", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(sc.calls, ShouldEqual, 0)
		})
	})
}

func TestDetectEmptyRecording(t *testing.T) {
	Convey("Given a zero-length recording", t, func() {
		src := &signalSource{duration: 0, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2}
		d, err := detection.New(src, sc, newExtractor(0.5))
		So(err, ShouldBeNil)

		report, err := d.Detect(context.Background(), "empty.wav")

		Convey("Then the report is empty and zeroed", func() {
			So(err, ShouldBeNil)
			So(report.Chunks, ShouldEqual, 0)
			So(report.Episodes, ShouldBeEmpty)
			So(report.Summary, ShouldResemble, model.Summary{})
		})
	})
}

func TestDetectorTune(t *testing.T) {
	Convey("Given a detector with threshold 0.5", t, func() {
		src := &signalSource{duration: 10, rate: rate}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(int, []float32) ([][]float64, error) {
			return hitAt(3, 1), nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5), detection.WithPlan(plan(60, 2)))
		So(err, ShouldBeNil)

		Convey("When a job raises the threshold above every score", func() {
			high := 0.95
			tuned, err := d.Tune(model.JobParams{ConfidenceThreshold: &high, NoMerge: true})
			So(err, ShouldBeNil)
			report, err := tuned.Detect(context.Background(), "x.wav")

			Convey("Then nothing is detected and the base detector is unchanged", func() {
				So(err, ShouldBeNil)
				So(report.RawDetections, ShouldEqual, 0)
				So(report.Merged, ShouldBeFalse)
				base, err := d.Detect(context.Background(), "x.wav")
				So(err, ShouldBeNil)
				So(base.RawDetections, ShouldEqual, 1)
				So(base.Merged, ShouldBeTrue)
			})
		})

		Convey("When a job passes invalid overrides", func() {
			bad := -0.5
			_, errGap := d.Tune(model.JobParams{MergeGap: &bad})
			_, errThr := d.Tune(model.JobParams{ConfidenceThreshold: &bad})
			So(errors.Is(errGap, merge.ErrNegativeGap), ShouldBeTrue)
			So(errors.Is(errThr, extract.ErrInvalidThreshold), ShouldBeTrue)
		})
	})
}

func TestDetectPreprocess(t *testing.T) {
	Convey("Given a quiet constant recording and peak normalization", t, func() {
		src := &signalSource{duration: 2, rate: rate, signal: func(int) float32 { return 0.25 }}
		sc := &scriptedScorer{rate: rate, classes: 2, fn: func(int, []float32) ([][]float64, error) {
			return nil, nil
		}}
		d, err := detection.New(src, sc, newExtractor(0.5), detection.WithPreprocess(preprocess.Normalize))
		So(err, ShouldBeNil)

		_, err = d.Detect(context.Background(), "x.wav")

		Convey("Then the scorer sees normalized samples", func() {
			So(err, ShouldBeNil)
			So(sc.seen[0][0], ShouldEqual, 1)
		})
	})
}

func TestDetectWithInMemoryScorer(t *testing.T) {
	Convey("Given a 10s recording that is loud between 3s and 5s", t, func() {
		src := &signalSource{duration: 10, rate: rate, signal: func(g int) float32 {
			if g >= 300 && g < 500 {
				return 0.8
			}
			return 0
		}}
		sc, err := scoring.NewInMemoryScorer(
			scoring.WithSampleRate(rate),
			scoring.WithClasses(2),
			scoring.WithTargetClasses(1),
			scoring.WithFrameTiming(1, 0.5),
			scoring.WithGain(1),
		)
		So(err, ShouldBeNil)
		d, err := detection.New(src, sc, newExtractor(0.7),
			detection.WithPlan(plan(4, 1)),
			detection.WithMergeGap(0),
		)
		So(err, ShouldBeNil)

		report, err := d.Detect(context.Background(), "burst.wav")

		Convey("Then one episode spans the loud region", func() {
			So(err, ShouldBeNil)
			So(report.Chunks, ShouldEqual, 4)
			So(len(report.Episodes), ShouldEqual, 1)
			So(report.Episodes[0].StartTime, ShouldEqual, 3)
			So(report.Episodes[0].EndTime, ShouldEqual, 5)
			So(report.Episodes[0].Confidence, ShouldAlmostEqual, 0.8, 1e-6)
			So(report.Summary.TotalDuration, ShouldEqual, 2)
		})
	})
}
