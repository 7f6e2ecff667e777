package api

import (
	"errors"
	"io"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKindErrors(t *testing.T) {
	Convey("Given a wrapped cause", t, func() {
		err := WrapKind("api.op", ErrBadRequest, io.ErrUnexpectedEOF)

		Convey("Then both the kind and the cause match", func() {
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, io.ErrUnexpectedEOF), ShouldBeTrue)
			So(errors.Is(err, ErrNotFound), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "api.op: bad request: unexpected EOF")
		})
	})

	Convey("Given a bare kind", t, func() {
		err := NewKind("api.op", ErrBackpressure)
		Convey("Then the message names only the kind", func() {
			So(errors.Is(err, ErrBackpressure), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: backpressure")
		})
	})

	Convey("Given each kind", t, func() {
		cases := []struct {
			kind   error
			status int
			code   string
		}{
			{ErrBadRequest, http.StatusBadRequest, "bad_request"},
			{ErrNotFound, http.StatusNotFound, "not_found"},
			{ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
			{ErrInternal, http.StatusInternalServerError, "internal_error"},
			{errors.New("other"), http.StatusInternalServerError, "internal_error"},
		}
		Convey("Then it maps to its status", func() {
			for _, c := range cases {
				status, code := statusOf(NewKind("op", c.kind))
				So(status, ShouldEqual, c.status)
				So(code, ShouldEqual, c.code)
			}
		})
	})

	Convey("Given status codes", t, func() {
		Convey("Then error types are standardized", func() {
			So(getErrorType(503), ShouldEqual, "server_error")
			So(getErrorType(429), ShouldEqual, "rate_limit")
			So(getErrorType(404), ShouldEqual, "not_found")
			So(getErrorType(400), ShouldEqual, "client_error")
			So(getErrorType(200), ShouldEqual, "unknown")
		})
	})
}
