// Package logging provides leveled, component-tagged console logging for the
// registry layer. Output format: LEVEL TIMESTAMP [component] message key=value ...
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Logger provides structured logging to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

var (
	std   = New()
	stdMu sync.Mutex
)

// New creates a new Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Default returns the process-wide logger. Components derive their own
// loggers from it at construction time, so level and output changes must be
// applied before registries are created.
func Default() *Logger {
	stdMu.Lock()
	defer stdMu.Unlock()
	return std
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	stdMu.Lock()
	defer stdMu.Unlock()
	std = l
}

// WithComponent returns a new logger with the given component name.
// The derived logger shares the parent's writer lock.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// Printf logs a formatted message at DEBUG level. It lets client libraries
// that expect a Printf-style logger write through this one.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

// formatFields formats fields as key=value pairs sorted by key.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Registry event helpers ---

// Registered logs a provider registration.
func (l *Logger) Registered(url string) {
	l.Info("registered", map[string]interface{}{
		"url": url,
	})
}

// Unregistered logs a provider removal.
func (l *Logger) Unregistered(url string) {
	l.Info("unregistered", map[string]interface{}{
		"url": url,
	})
}

// LookedUp logs a completed lookup.
func (l *Logger) LookedUp(service string, count int, duration time.Duration) {
	l.Debug("lookup", map[string]interface{}{
		"service":   service,
		"providers": count,
		"duration":  duration.String(),
	})
}

// WatchEvent logs a change notification received from a backend.
func (l *Logger) WatchEvent(path, eventType string) {
	l.Info("watch_event", map[string]interface{}{
		"path": path,
		"type": eventType,
	})
}

// ExtensionCreated logs the lazy creation of an extension singleton.
func (l *Logger) ExtensionCreated(capability, name string) {
	l.Debug("extension_created", map[string]interface{}{
		"capability": capability,
		"extension":  name,
	})
}

// OperationFailed logs a failed registry operation.
func (l *Logger) OperationFailed(op string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["op"] = op
	fields["error"] = err.Error()
	l.Error("operation_failed", fields)
}
