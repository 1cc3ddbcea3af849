package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LegacyLogger prints plain "<time> - LEVEL: msg args" lines with fmt.
// Selected with log.legacy for setups that grep those lines.
type LegacyLogger struct {
	level Level
	mu    sync.RWMutex
	out   io.Writer
	attrs []any
}

// NewLegacyLogger creates a legacy logger writing to out, or stderr when nil
func NewLegacyLogger(out io.Writer) *LegacyLogger {
	if out == nil {
		out = os.Stderr
	}
	return &LegacyLogger{
		level: LevelInfo,
		out:   out,
	}
}

// SetLevel sets the minimum level
func (l *LegacyLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *LegacyLogger) shouldLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

func (l *LegacyLogger) print(level Level, label, msg string, args []any) {
	if !l.shouldLog(level) {
		return
	}
	all := append(append([]any{}, l.attrs...), args...)
	stamp := time.Now().Format("2006-01-02 15:04:05")
	if len(all) == 0 {
		fmt.Fprintf(l.out, "%s - %s: %s\n", stamp, label, msg)
		return
	}
	fmt.Fprintf(l.out, "%s - %s: %s %v\n", stamp, label, msg, all)
}

func (l *LegacyLogger) Debug(msg string, args ...any) { l.print(LevelDebug, "DEBUG", msg, args) }
func (l *LegacyLogger) Info(msg string, args ...any)  { l.print(LevelInfo, "INFO", msg, args) }
func (l *LegacyLogger) Warn(msg string, args ...any)  { l.print(LevelWarn, "WARN", msg, args) }
func (l *LegacyLogger) Error(msg string, args ...any) { l.print(LevelError, "ERROR", msg, args) }

// With returns a logger that prefixes args to every line
func (l *LegacyLogger) With(args ...any) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &LegacyLogger{
		level: l.level,
		out:   l.out,
		attrs: append(append([]any{}, l.attrs...), args...),
	}
}

func (l *LegacyLogger) Sync() error     { return nil }
func (l *LegacyLogger) Shutdown() error { return nil }
