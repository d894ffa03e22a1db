package querykit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the minimal leveled logger used for debug output. Arguments
// after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes level-prefixed key/value lines via the standard log
// package. Intended for development; bring an adapter (log/zap, log/logrus)
// for production.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger returns a console logger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "querykit ", log.LstdFlags|log.Lmicroseconds)}
}

func (s *SimpleLogger) Debug(msg string, kv ...any) { s.logf("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...any)  { s.logf("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...any)  { s.logf("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...any) { s.logf("ERROR", msg, kv) }

func (s *SimpleLogger) logf(level, msg string, kv []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 == 1 {
		fmt.Fprintf(&b, " %v=?", kv[len(kv)-1])
	}
	s.l.Print(b.String())
}

// DebugConfig gates which lifecycle events are logged. Logging only happens
// when Enabled is true AND a Logger is configured.
type DebugConfig struct {
	Enabled      bool
	LogQueries   bool
	LogCache     bool
	LogRetries   bool
	LogMutations bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables every category but leaves Enabled off.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogQueries:   true,
		LogCache:     true,
		LogRetries:   true,
		LogMutations: true,
		RequestIDGen: defaultRequestID,
	}
}

func defaultRequestID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "req-unknown"
	}
	return "req-" + hex.EncodeToString(buf[:])
}

func (e *Engine) debugLog(category string) bool {
	if e.debug == nil || !e.debug.Enabled || e.logger == nil {
		return false
	}
	switch category {
	case "query":
		return e.debug.LogQueries
	case "cache":
		return e.debug.LogCache
	case "retry":
		return e.debug.LogRetries
	case "mutation":
		return e.debug.LogMutations
	default:
		return true
	}
}

func (e *Engine) requestID() string {
	if e.debug == nil || !e.debug.Enabled || e.debug.RequestIDGen == nil {
		return ""
	}
	return e.debug.RequestIDGen()
}
