package merge_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/barkwatch/internal/domain/merge"
	"github.com/okian/barkwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ev(start, end, conf float64, label string) model.DetectionEvent {
	return model.DetectionEvent{StartTime: start, EndTime: end, Confidence: conf, ClassLabel: label}
}

func bounds(eps []model.Episode) [][3]float64 {
	out := make([][3]float64, 0, len(eps))
	for _, e := range eps {
		out = append(out, [3]float64{e.StartTime, e.EndTime, e.Confidence})
	}
	return out
}

func TestMerge(t *testing.T) {
	Convey("Given overlapping and separate events with a 1s gap", t, func() {
		events := []model.DetectionEvent{
			ev(0.0, 1.0, 0.5, "Dog"),
			ev(0.5, 1.5, 0.7, "Bark"),
			ev(3.0, 4.0, 0.6, "Dog"),
		}

		Convey("When merging", func() {
			eps, err := merge.Merge(events, 1.0)

			Convey("Then the first two fold into one episode", func() {
				So(err, ShouldBeNil)
				So(bounds(eps), ShouldResemble, [][3]float64{{0, 1.5, 0.7}, {3, 4, 0.6}})
			})

			Convey("And the running episode keeps its own label", func() {
				So(eps[0].ClassLabel, ShouldEqual, "Dog")
			})
		})
	})

	Convey("Given unordered events", t, func() {
		events := []model.DetectionEvent{
			ev(10, 11, 0.4, "Howl"),
			ev(0, 1, 0.9, "Bark"),
			ev(5, 6, 0.3, "Dog"),
		}
		snapshot := append([]model.DetectionEvent(nil), events...)

		Convey("When merging", func() {
			eps, err := merge.Merge(events, 0.5)

			Convey("Then episodes come out sorted by start", func() {
				So(err, ShouldBeNil)
				So(len(eps), ShouldEqual, 3)
				So(eps[0].StartTime, ShouldEqual, 0)
				So(eps[1].StartTime, ShouldEqual, 5)
				So(eps[2].StartTime, ShouldEqual, 10)
			})

			Convey("And the caller's slice is not reordered", func() {
				So(events, ShouldResemble, snapshot)
			})
		})
	})

	Convey("Given a chain where each event is near the running end", t, func() {
		events := []model.DetectionEvent{
			ev(0, 1, 0.5, "Dog"),
			ev(1.8, 2.8, 0.5, "Dog"),
			ev(3.6, 4.6, 0.8, "Dog"),
			ev(5.4, 6.4, 0.5, "Dog"),
		}

		Convey("When merging with a 1s gap", func() {
			eps, err := merge.Merge(events, 1.0)

			Convey("Then the whole chain merges transitively", func() {
				So(err, ShouldBeNil)
				So(bounds(eps), ShouldResemble, [][3]float64{{0, 6.4, 0.8}})
			})
		})
	})

	Convey("Given an event contained in an earlier one", t, func() {
		events := []model.DetectionEvent{ev(0, 10, 0.5, "Dog"), ev(2, 3, 0.9, "Bark"), ev(10.5, 11, 0.4, "Dog")}

		Convey("When merging with a zero gap", func() {
			eps, err := merge.Merge(events, 0)

			Convey("Then the running end never shrinks", func() {
				So(err, ShouldBeNil)
				So(bounds(eps), ShouldResemble, [][3]float64{{0, 10, 0.9}, {10.5, 11, 0.4}})
			})
		})
	})

	Convey("Given a zero merge gap", t, func() {
		Convey("When events are exactly contiguous", func() {
			eps, err := merge.Merge([]model.DetectionEvent{ev(0, 1, 0.5, "Dog"), ev(1, 2, 0.6, "Dog")}, 0)

			Convey("Then they merge", func() {
				So(err, ShouldBeNil)
				So(bounds(eps), ShouldResemble, [][3]float64{{0, 2, 0.6}})
			})
		})

		Convey("When a tiny gap separates them", func() {
			eps, err := merge.Merge([]model.DetectionEvent{ev(0, 1, 0.5, "Dog"), ev(1.0001, 2, 0.6, "Dog")}, 0)

			Convey("Then they stay apart", func() {
				So(err, ShouldBeNil)
				So(len(eps), ShouldEqual, 2)
			})
		})
	})

	Convey("Given no events", t, func() {
		Convey("Then merging yields an empty list for any gap", func() {
			for _, gap := range []float64{0, 1, 100} {
				eps, err := merge.Merge(nil, gap)
				So(err, ShouldBeNil)
				So(eps, ShouldNotBeNil)
				So(eps, ShouldBeEmpty)
			}
		})
	})

	Convey("Given a negative gap", t, func() {
		_, err := merge.Merge([]model.DetectionEvent{ev(0, 1, 0.5, "Dog")}, -0.1)

		Convey("Then it is a configuration error", func() {
			So(errors.Is(err, merge.ErrNegativeGap), ShouldBeTrue)
			So(errors.Is(merge.Validate(math.NaN()), merge.ErrNegativeGap), ShouldBeTrue)
			So(merge.Validate(0), ShouldBeNil)
		})
	})
}

func randomEvents(rng *rand.Rand, n int) []model.DetectionEvent {
	out := make([]model.DetectionEvent, n)
	for i := range out {
		start := rng.Float64() * 600
		out[i] = ev(start, start+0.1+rng.Float64()*3, rng.Float64(), "Dog")
	}
	return out
}

func TestMergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic property test
	for iter := 0; iter < 300; iter++ {
		gap := rng.Float64() * 5
		eps, err := merge.Merge(randomEvents(rng, rng.Intn(80)), gap)
		if err != nil {
			t.Fatalf("merge: %v", err)
		}

		for i := 1; i < len(eps); i++ {
			if eps[i].StartTime < eps[i-1].StartTime {
				t.Fatalf("episodes out of order at %d", i)
			}
			if eps[i].StartTime-eps[i-1].EndTime <= gap {
				t.Fatalf("episodes %d and %d within gap %v", i-1, i, gap)
			}
		}

		again, err := merge.Merge(eps, gap)
		if err != nil {
			t.Fatalf("re-merge: %v", err)
		}
		if len(again) != len(eps) {
			t.Fatalf("re-merge changed count: %d -> %d", len(eps), len(again))
		}
		for i := range eps {
			if again[i] != eps[i] {
				t.Fatalf("re-merge changed episode %d: %+v -> %+v", i, eps[i], again[i])
			}
		}
	}
}

func TestSorted(t *testing.T) {
	Convey("Given events from overlapping chunks", t, func() {
		events := []model.DetectionEvent{ev(57.6, 58.56, 0.5, "Dog"), ev(58, 58.96, 0.4, "Dog"), ev(57.9, 58.86, 0.6, "Bark")}

		Convey("Then Sorted orders them without merging", func() {
			out := merge.Sorted(events)
			So(len(out), ShouldEqual, 3)
			So(out[0].StartTime, ShouldEqual, 57.6)
			So(out[1].StartTime, ShouldEqual, 57.9)
			So(out[2].StartTime, ShouldEqual, 58)
			So(events[1].StartTime, ShouldEqual, 58)
		})
	})
}
