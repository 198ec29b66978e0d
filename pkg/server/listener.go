package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"syscall"

	"github.com/hmgle/mocktel/internal/config"
	"github.com/hmgle/mocktel/pkg/logger"
)

// BindError reports a listener that could not bind its port
type BindError struct {
	Port  int
	Label string
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s port %d: %v", e.Label, e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// InUse reports whether another process already holds the port
func (e *BindError) InUse() bool {
	return errors.Is(e.Err, syscall.EADDRINUSE)
}

// Listener serves one entry of the port table
type Listener struct {
	address  string
	spec     config.Listener
	listener net.Listener
	server   *http.Server
}

// NewListener creates a listener for spec on the given bind address
func NewListener(address string, spec config.Listener, handler http.Handler, l logger.Logger) *Listener {
	return &Listener{
		address: address,
		spec:    spec,
		server: &http.Server{
			Handler:  handler,
			ErrorLog: log.New(logger.DebugWriter(l), "", 0),
		},
	}
}

// Start binds the port. It does not serve.
func (l *Listener) Start() error {
	var err error
	l.listener, err = net.Listen("tcp", net.JoinHostPort(l.address, strconv.Itoa(l.spec.Port)))
	if err != nil {
		return &BindError{Port: l.spec.Port, Label: l.spec.Label, Err: err}
	}
	return nil
}

// Serve accepts connections until Shutdown is called
func (l *Listener) Serve() error {
	if err := l.server.Serve(l.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server on port %d: %w", l.spec.Label, l.Port(), err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
// until ctx expires
func (l *Listener) Shutdown(ctx context.Context) error {
	if err := l.server.Shutdown(ctx); err != nil {
		l.server.Close()
		return err
	}
	return nil
}

// Label returns the descriptive name of the listener
func (l *Listener) Label() string {
	return l.spec.Label
}

// Port returns the bound port, which differs from the configured one only
// when port 0 was requested.
func (l *Listener) Port() int {
	if l.listener != nil {
		if addr, ok := l.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return l.spec.Port
}

// Addr returns the host:port the listener is bound to
func (l *Listener) Addr() string {
	return net.JoinHostPort(l.address, strconv.Itoa(l.Port()))
}
