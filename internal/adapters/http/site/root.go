// Package site serves the embedded landing page with a try-it upload form.
package site

import (
	"context"
	"net/http"
)

// Register attaches the landing page to mux at "/".
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	files := http.FileServer(FS())
	mux.Handle("/", files)
}
