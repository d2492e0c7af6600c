package vispipe

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var logFormat = logging.MustStringFormatter(
	`[%{time:15:04:05.000}] [%{module}] [%{level}] %{message}`,
)

// DefaultLogger writes leveled records through go-logging. Debug records are
// dropped unless debug is enabled.
type DefaultLogger struct {
	mu    sync.Mutex
	debug bool
	log   *logging.Logger
}

func NewDefaultLogger(module string, debug bool) *DefaultLogger {
	return NewWriterLogger(os.Stderr, module, debug)
}

// NewWriterLogger is NewDefaultLogger with a custom sink.
func NewWriterLogger(w io.Writer, module string, debug bool) *DefaultLogger {
	backend := logging.NewLogBackend(w, "", 0)
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, logFormat))
	leveled.SetLevel(logging.DEBUG, module)

	l := logging.MustGetLogger(module)
	l.SetBackend(leveled)
	l.ExtraCalldepth = 1

	return &DefaultLogger{debug: debug, log: l}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.log.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.log.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.log.Warningf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.log.Errorf(format, args...)
}

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }

func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}
