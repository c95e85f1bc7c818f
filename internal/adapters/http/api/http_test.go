package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	api "github.com/okian/nudge/internal/adapters/http/api"
	model "github.com/okian/nudge/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

// fakeDeps is a canned Dependencies implementation.
type fakeDeps struct {
	lastEventType string
	lastFields    model.Fields
	actions       []model.Action
	err           error
}

func (d *fakeDeps) HandleEvent(_ context.Context, eventType string, fields model.Fields) ([]model.Action, error) {
	d.lastEventType = eventType
	d.lastFields = fields
	if d.err != nil {
		return nil, d.err
	}
	return d.actions, nil
}

// fakeStats is a canned StatsProvider implementation.
type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestMux(deps *fakeDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, fakeStats{}).Register(context.Background(), mux)
	return mux
}

func TestEventRoutes(t *testing.T) {
	convey.Convey("Given the registered event routes", t, func() {
		deps := &fakeDeps{actions: []model.Action{model.ShowMessage("hi")}}
		mux := newTestMux(deps)

		convey.Convey("When posting a file edit", func() {
			body := `{"SubjectID":"alex","ProblemID":"fizzbuzz","CodeState":"print('hi')"}`
			req := httptest.NewRequest(http.MethodPost, "/FileEdit/", strings.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the event should dispatch as File.Edit", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.lastEventType, convey.ShouldEqual, model.EventFileEdit)
				subject, _ := deps.lastFields.String(model.FieldSubjectID)
				convey.So(subject, convey.ShouldEqual, "alex")
			})

			convey.Convey("Then the response should be a JSON action array", func() {
				convey.So(rec.Header().Get("Content-Type"), convey.ShouldContainSubstring, "application/json")
				var actions []model.Action
				convey.So(json.Unmarshal(rec.Body.Bytes(), &actions), convey.ShouldBeNil)
				convey.So(actions, convey.ShouldHaveLength, 1)
				convey.So(actions[0].Action, convey.ShouldEqual, model.ActionShowMessage)
			})
		})

		convey.Convey("When posting a run event", func() {
			req := httptest.NewRequest(http.MethodPost, "/Run.Program/", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the event should dispatch as Run.Program", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.lastEventType, convey.ShouldEqual, model.EventRunProgram)
			})
		})

		convey.Convey("When posting a submit event", func() {
			req := httptest.NewRequest(http.MethodPost, "/Submit/", strings.NewReader(`{"Score":1}`))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the event should dispatch as Submit", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.lastEventType, convey.ShouldEqual, model.EventSubmit)
			})
		})

		convey.Convey("When no intervention fires", func() {
			deps.actions = nil
			req := httptest.NewRequest(http.MethodPost, "/FileEdit/", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the response should be an empty array, not null", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(strings.TrimSpace(rec.Body.String()), convey.ShouldNotEqual, "null")
			})
		})

		convey.Convey("When the body is not JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/FileEdit/", strings.NewReader("not json"))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the request should be rejected", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "bad_request")
			})
		})

		convey.Convey("When the event cannot be logged", func() {
			deps.err = errors.New("disk full")
			req := httptest.NewRequest(http.MethodPost, "/FileEdit/", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the server should answer 500", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusInternalServerError)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "storage_error")
			})
		})

		convey.Convey("When using the wrong method", func() {
			req := httptest.NewRequest(http.MethodGet, "/FileEdit/", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the route should not exist", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestStatsRoute(t *testing.T) {
	convey.Convey("Given the registered routes", t, func() {
		mux := newTestMux(&fakeDeps{})

		convey.Convey("When fetching stats", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should return the provider's JSON", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				var stats map[string]any
				convey.So(json.Unmarshal(rec.Body.Bytes(), &stats), convey.ShouldBeNil)
				convey.So(stats["started"], convey.ShouldBeTrue)
			})
		})

		convey.Convey("When posting to stats", func() {
			req := httptest.NewRequest(http.MethodPost, "/stats", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then the route should not exist", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthRoute(t *testing.T) {
	convey.Convey("Given the registered routes", t, func() {
		mux := newTestMux(&fakeDeps{})

		convey.Convey("When probing /healthz", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should serve metrics exposition", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestRootRoute(t *testing.T) {
	convey.Convey("Given the registered routes", t, func() {
		mux := newTestMux(&fakeDeps{})

		convey.Convey("When fetching the root path", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should answer with a banner", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "nudge")
			})
		})

		convey.Convey("When fetching an unknown path", func() {
			req := httptest.NewRequest(http.MethodGet, "/nope", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			convey.Convey("Then it should 404", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
