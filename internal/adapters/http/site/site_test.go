package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a mux with the landing page", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		Convey("Then / serves the upload form", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/predictions?model_id=")
		})

		Convey("And unknown files are 404", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope.js", http.NoBody))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("A nil mux panics", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
