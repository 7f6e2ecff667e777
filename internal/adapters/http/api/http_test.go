package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/barkwatch/internal/adapters/http/api"
	"github.com/okian/barkwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records submissions and serves jobs from a map.
type mockDependencies struct {
	mu        sync.Mutex
	jobs      map[string]model.Job
	order     []string
	keys      map[string]string
	submitErr error
	listErr   error
	lastLimit int
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{jobs: make(map[string]model.Job), keys: make(map[string]string)}
}

func (m *mockDependencies) Submit(_ context.Context, req model.Job) (model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return model.Job{}, false, m.submitErr
	}
	if id, ok := m.keys[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return m.jobs[id], true, nil
	}
	req.ID = fmt.Sprintf("job-%d", len(m.order)+1)
	req.Status = model.JobQueued
	req.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.jobs[req.ID] = req
	m.order = append(m.order, req.ID)
	if req.IdempotencyKey != "" {
		m.keys[req.IdempotencyKey] = req.ID
	}
	return req, false, nil
}

func (m *mockDependencies) Job(_ context.Context, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", model.ErrJobNotFound, id)
	}
	return j, nil
}

func (m *mockDependencies) Jobs(_ context.Context, limit int) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Job
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.jobs[m.order[i]])
	}
	return out, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type submitBody struct {
	Job struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Status string `json:"status"`
		Params struct {
			ConfidenceThreshold *float64 `json:"confidence_threshold"`
			MergeGap            *float64 `json:"merge_gap"`
			NoMerge             bool     `json:"no_merge"`
		} `json:"params"`
	} `json:"job"`
	Duplicate bool `json:"duplicate"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server with five jobs allowed per page", t, func() {
		deps := newMockDependencies()
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true, "workerCount": 2}}
		router := api.NewServer(deps, stats, 5).Router(context.Background())

		Convey("When a job is submitted", func() {
			w := do(router, http.MethodPost, "/jobs",
				`{"source":"yard.wav","idempotency_key":"k1","confidence_threshold":0.5,"merge_gap":2,"no_merge":true}`)

			Convey("Then it is accepted with its parameters", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				var body submitBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Duplicate, ShouldBeFalse)
				So(body.Job.ID, ShouldEqual, "job-1")
				So(body.Job.Source, ShouldEqual, "yard.wav")
				So(body.Job.Status, ShouldEqual, "queued")
				So(*body.Job.Params.ConfidenceThreshold, ShouldEqual, 0.5)
				So(*body.Job.Params.MergeGap, ShouldEqual, 2.0)
				So(body.Job.Params.NoMerge, ShouldBeTrue)
			})

			Convey("And resubmitting the key returns the same job", func() {
				again := do(router, http.MethodPost, "/jobs", `{"source":"yard.wav","idempotency_key":"k1"}`)
				So(again.Code, ShouldEqual, http.StatusOK)
				var body submitBody
				So(json.Unmarshal(again.Body.Bytes(), &body), ShouldBeNil)
				So(body.Duplicate, ShouldBeTrue)
				So(body.Job.ID, ShouldEqual, "job-1")
			})

			Convey("And it can be fetched by id", func() {
				got := do(router, http.MethodGet, "/jobs/job-1", "")
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Body.String(), ShouldContainSubstring, `"id":"job-1"`)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(router, http.MethodPost, "/jobs", `{not json`)
			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var body errorBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Code, ShouldEqual, "bad_request")
			})
		})

		Convey("When the source is missing", func() {
			w := do(router, http.MethodPost, "/jobs", `{"source":"  "}`)
			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "missing source")
				So(deps.order, ShouldBeEmpty)
			})
		})

		Convey("When the source is an option or a URL", func() {
			for _, src := range []string{"-f lavfi", " -i", "http://169.254.169.254/latest/meta-data"} {
				w := do(router, http.MethodPost, "/jobs", `{"source":"`+src+`"}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			Convey("Then nothing reaches the service", func() {
				So(deps.order, ShouldBeEmpty)
			})
		})

		Convey("When the service rejects the parameters", func() {
			deps.submitErr = fmt.Errorf("%w: confidence threshold 3", model.ErrInvalidJob)
			w := do(router, http.MethodPost, "/jobs", `{"source":"a.wav","confidence_threshold":3}`)
			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "confidence threshold 3")
			})
		})

		Convey("When the queue is full", func() {
			deps.submitErr = model.ErrQueueFull
			w := do(router, http.MethodPost, "/jobs", `{"source":"a.wav"}`)
			Convey("Then the client is told to back off", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				var body errorBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Code, ShouldEqual, "backpressure")
			})
		})

		Convey("When the service fails unexpectedly", func() {
			deps.submitErr = fmt.Errorf("disk on fire")
			w := do(router, http.MethodPost, "/jobs", `{"source":"a.wav"}`)
			Convey("Then it is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "internal_error")
			})
		})

		Convey("When an unknown job is fetched", func() {
			w := do(router, http.MethodGet, "/jobs/nope", "")
			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})
		})

		Convey("When listing jobs", func() {
			for i := 0; i < 7; i++ {
				do(router, http.MethodPost, "/jobs", fmt.Sprintf(`{"source":"rec-%d.wav"}`, i))
			}

			Convey("Then the newest come first", func() {
				w := do(router, http.MethodGet, "/jobs?limit=2", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Jobs []struct {
						ID string `json:"id"`
					} `json:"jobs"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body.Jobs), ShouldEqual, 2)
				So(body.Jobs[0].ID, ShouldEqual, "job-7")
				So(body.Jobs[1].ID, ShouldEqual, "job-6")
			})

			Convey("And the limit is capped", func() {
				w := do(router, http.MethodGet, "/jobs?limit=50", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 5)
			})

			Convey("And a missing limit uses the cap", func() {
				w := do(router, http.MethodGet, "/jobs", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 5)
			})

			Convey("And a bad limit is rejected", func() {
				So(do(router, http.MethodGet, "/jobs?limit=zero", "").Code, ShouldEqual, http.StatusBadRequest)
				So(do(router, http.MethodGet, "/jobs?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing with no jobs", func() {
			w := do(router, http.MethodGet, "/jobs", "")
			Convey("Then an empty array is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"jobs":[]`)
			})
		})

		Convey("When stats are requested", func() {
			w := do(router, http.MethodGet, "/stats", "")
			Convey("Then the provider's map is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
				So(body["workerCount"], ShouldEqual, 2.0)
			})
		})

		Convey("When metrics are requested", func() {
			do(router, http.MethodGet, "/jobs/nope", "")
			w := do(router, http.MethodGet, "/healthz", "")
			Convey("Then the registry is exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
			})
		})

		Convey("When an unknown route is requested", func() {
			Convey("Then it is not found", func() {
				So(do(router, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the wrong method is used", func() {
			Convey("Then it is not allowed", func() {
				So(do(router, http.MethodDelete, "/jobs/job-1", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestServer_NilStats(t *testing.T) {
	Convey("Given a server without a stats provider", t, func() {
		router := api.NewServer(newMockDependencies(), nil, 0).Router(context.Background())
		Convey("Then /stats serves an empty object", func() {
			w := do(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "{}")
		})
	})
}
