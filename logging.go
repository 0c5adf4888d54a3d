package collide

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes levelled lines to stdout and stderr. Loggers derived with
// ForRun share the parent's outputs and debug switch.
type DefaultLogger struct {
	sink *sink
	run  string
}

type sink struct {
	mu    sync.Mutex
	debug bool
	out   *log.Logger
	err   *log.Logger
}

func NewDefaultLogger(debug bool) *DefaultLogger {
	return newDefaultLogger(os.Stdout, os.Stderr, debug)
}

func newDefaultLogger(out, errOut io.Writer, debug bool) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{sink: &sink{
		debug: debug,
		out:   log.New(out, "", flags),
		err:   log.New(errOut, "", flags),
	}}
}

// ForRun returns a logger that tags every line with runID.
func (l *DefaultLogger) ForRun(runID string) Logger {
	return &DefaultLogger{sink: l.sink, run: runID}
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.sink.mu.Lock()
	l.sink.debug = enabled
	l.sink.mu.Unlock()
}

func (l *DefaultLogger) line(level string, format string, args ...any) string {
	if l.run != "" {
		return fmt.Sprintf("[%s] %s: %s", l.run, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.sink.out.Print(l.line("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sink.out.Print(l.line("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sink.err.Print(l.line("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sink.err.Print(l.line("ERROR", format, args...))
}

// WithRun tags l's lines with runID. Loggers that know how to scope themselves
// through ForRun do so; any other Logger gets its format strings prefixed.
func WithRun(l Logger, runID string) Logger {
	if runID == "" {
		return l
	}
	if scoped, ok := l.(interface{ ForRun(string) Logger }); ok {
		return scoped.ForRun(runID)
	}
	return &runLogger{Logger: l, tag: "[" + runID + "] "}
}

type runLogger struct {
	Logger
	tag string
}

func (r *runLogger) Debugf(format string, args ...any) { r.Logger.Debugf(r.tag+format, args...) }
func (r *runLogger) Infof(format string, args ...any)  { r.Logger.Infof(r.tag+format, args...) }
func (r *runLogger) Warnf(format string, args ...any)  { r.Logger.Warnf(r.tag+format, args...) }
func (r *runLogger) Errorf(format string, args ...any) { r.Logger.Errorf(r.tag+format, args...) }

// LoggingModule installs Logger as a resource, or a DefaultLogger when it is nil.
type LoggingModule struct {
	Logger Logger
	Debug  bool
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	l := m.Logger
	if l == nil {
		l = NewDefaultLogger(m.Debug)
	}
	cmd.AddResources(l)
}

type nopLogger struct{}

func NewNopLogger() Logger                             { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetDebug(enabled bool)             {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// Logger returns the first Logger resource if present, otherwise a no-op logger.
// Never returns nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
