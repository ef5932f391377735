package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Write and idle timeouts stay above the longest
// handler timeout so the middleware deadline fires first and can still write
// its error response.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
