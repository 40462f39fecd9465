// Package httpserver builds the process's http.Server. Lifecycle stays with
// the caller: cmd/server runs ListenAndServe under its errgroup and drives
// Shutdown with a deadline when the signal context is cancelled.
package httpserver

import (
	"net/http"
	"time"
)

// New returns a server for the escrow API. The header timeout bounds
// slow-client reads before a request ever reaches the router.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
