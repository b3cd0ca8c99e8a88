package logger

import (
	"log"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// Lane identifies the processing lane a message belongs to.
type Lane int

const (
	None Lane = iota
	Zeroconf
	Secured
)

var lanePrefixes = map[Lane]string{
	None:     "",
	Zeroconf: "[ZEROCONF] ",
	Secured:  "[SECURED]  ",
}

var colors = map[Lane]color.Attribute{
	None:     color.FgWhite,
	Zeroconf: color.FgHiGreen,
	Secured:  color.FgHiBlue,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithLane(lane Lane, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithLane(lane Lane, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithLane(lane Lane, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithLane(lane Lane, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) InfoWithLane(_ Lane, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) ErrorWithLane(_ Lane, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) DebugWithLane(_ Lane, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                 {}
func (l *EmptyLogger) NoticeWithLane(_ Lane, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// formatMessage formats the log message with the appropriate log level, lane prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, lane Lane, format string) string {
	lanePrefix := lanePrefixes[lane]
	if l.enableColoring {
		lanePrefix = color.New(colors[lane]).Sprint(lanePrefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + lanePrefix + format
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, None, format), args...)
	}
}

func (l *StdLogger) InfoWithLane(lane Lane, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= InfoLevel {
		log.Printf(l.formatMessage(InfoLevel, lane, format), args...)
	}
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, None, format), args...)
	}
}

func (l *StdLogger) ErrorWithLane(lane Lane, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= ErrorLevel {
		log.Printf(l.formatMessage(ErrorLevel, lane, format), args...)
	}
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, None, format), args...)
	}
}

func (l *StdLogger) DebugWithLane(lane Lane, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= DebugLevel {
		log.Printf(l.formatMessage(DebugLevel, lane, format), args...)
	}
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, None, format), args...)
	}
}

func (l *StdLogger) NoticeWithLane(lane Lane, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= NoticeLevel {
		log.Printf(l.formatMessage(NoticeLevel, lane, format), args...)
	}
}
