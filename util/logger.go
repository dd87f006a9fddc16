// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel is how much a Logger prints.  Each level includes the ones
// below it.
type LogLevel int

const (
	LogQuiet   LogLevel = iota // errors only
	LogNormal                  // -v
	LogVerbose                 // -vv
	LogDebug                   // -vvv
)

var levelTags = [...]string{
	LogQuiet:   "ERR",
	LogNormal:  "INF",
	LogVerbose: "VRB",
	LogDebug:   "DBG",
}

// Logger writes one line per message to stderr.  Children made with
// Named share the parent's writer and lock.
type Logger struct {
	level      LogLevel
	name       string
	timestamps bool
	sink       *logSink
}

type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger returns a Logger for a -v count.  Debug output carries
// wall-clock timestamps.
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level:      LogLevel(verbosity),
		timestamps: verbosity >= int(LogDebug),
		sink:       &logSink{w: os.Stderr},
	}
}

// Named returns a child whose lines start with name, joined to the
// parent's name with a slash.
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		name = l.name + "/" + name
	}
	child.name = name
	return &child
}

// SetTimestamps turns the time prefix on or off for this logger.
func (l *Logger) SetTimestamps(on bool) { l.timestamps = on }

// SetOutput redirects this logger and every child sharing its writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.w = w
	l.sink.mu.Unlock()
}

// Level is the configured verbosity.
func (l *Logger) Level() LogLevel { return l.level }

// Enabled reports whether messages at lvl are printed, so callers can
// skip building expensive arguments.
func (l *Logger) Enabled(lvl LogLevel) bool { return l.level >= lvl }

func (l *Logger) Error(format string, args ...interface{}) {
	l.output(levelTags[LogQuiet], format, args)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.Enabled(LogNormal) {
		l.output("WRN", format, args)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.Enabled(LogNormal) {
		l.output(levelTags[LogNormal], format, args)
	}
}

func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.Enabled(LogVerbose) {
		l.output(levelTags[LogVerbose], format, args)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Enabled(LogDebug) {
		l.output(levelTags[LogDebug], format, args)
	}
}

func (l *Logger) output(tag, format string, args []interface{}) {
	bufp := GetBuf()
	defer PutBuf(bufp)

	b := *bufp
	if l.timestamps {
		b = time.Now().AppendFormat(b, "15:04:05.000 ")
	}
	b = append(b, '[')
	b = append(b, tag...)
	b = append(b, "] "...)
	if l.name != "" {
		b = append(b, l.name...)
		b = append(b, ": "...)
	}
	b = fmt.Appendf(b, format, args...)
	b = append(b, '\n')
	*bufp = b

	l.sink.mu.Lock()
	l.sink.w.Write(b) //nolint:errcheck
	l.sink.mu.Unlock()
}
