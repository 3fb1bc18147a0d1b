package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewServer returns the HTTP server for handler. Request contexts derive from
// a base context that Shutdown cancels, so long-lived responses such as the
// event stream end instead of holding Shutdown until its deadline.
func NewServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream holds its response open.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}
