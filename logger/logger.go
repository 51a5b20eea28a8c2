// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

type Logger struct {
	zl       zerolog.Logger
	file     *os.File
	minLevel atomic.Int32
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.Mutex
)

// ensureInitialized creates a console logger if Init was never called
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(consoleWriter(os.Stdout), nil, DEBUG)
		}
	})
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
}

func newLogger(console io.Writer, file *os.File, level LogLevel) *Logger {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}
	// file output stays plain JSON so it can be shipped as-is
	if file != nil {
		writers = append(writers, file)
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	l := &Logger{zl: zl, file: file}
	l.minLevel.Store(int32(level))
	return l
}

// Init initializes the logger with optional file and console output
// If filename is empty, logs only to console
// If console is false, logs only to file
func Init(filename string, console bool) error {
	if filename == "" && !console {
		return fmt.Errorf("no output destination specified")
	}
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()

	var file *os.File
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
	}

	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.level()
		if defaultLogger.file != nil {
			defaultLogger.file.Close()
		}
	}

	var out io.Writer
	if console {
		out = consoleWriter(os.Stdout)
	}

	defaultLogger = newLogger(out, file, level)
	return nil
}

// InitWriter routes all output to w without colours. Used by tests.
func InitWriter(w io.Writer) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	level := DEBUG
	if defaultLogger != nil {
		level = defaultLogger.level()
	}
	defaultLogger = newLogger(w, nil, level)
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
// Messages below this level will not be logged
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel.Store(int32(level))
}

// ParseLevel maps a config string onto a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger = newLogger(consoleWriter(os.Stdout), nil, defaultLogger.level())
	}
}

func (l *Logger) level() LogLevel {
	return LogLevel(l.minLevel.Load())
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.level()
}

func (l *Logger) output(level LogLevel, msg string) {
	if !l.shouldLog(level) {
		return
	}

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.zl.Debug()
	case INFO:
		ev = l.zl.Info()
	case WARN:
		ev = l.zl.Warn()
	default:
		ev = l.zl.Error()
	}
	ev.Msg(msg)
}

func current() *Logger {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	return defaultLogger
}

// Debug logs a debug message
func Debug(v ...interface{}) {
	current().output(DEBUG, fmt.Sprint(v...))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) {
	current().output(DEBUG, fmt.Sprintf(format, v...))
}

// Info logs an info message
func Info(v ...interface{}) {
	current().output(INFO, fmt.Sprint(v...))
}

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) {
	current().output(INFO, fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func Warn(v ...interface{}) {
	current().output(WARN, fmt.Sprint(v...))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) {
	current().output(WARN, fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(v ...interface{}) {
	current().output(ERROR, fmt.Sprint(v...))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) {
	current().output(ERROR, fmt.Sprintf(format, v...))
}

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	current().output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	current().output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
