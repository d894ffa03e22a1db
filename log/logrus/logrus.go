// Package logrus adapts a logrus logger to the querykit Logger interface.
package logrus

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger.
type Logger struct{ L *logrus.Logger }

func (l Logger) Debug(msg string, kv ...any) { l.L.WithFields(fields(kv)).Debug(msg) }
func (l Logger) Info(msg string, kv ...any)  { l.L.WithFields(fields(kv)).Info(msg) }
func (l Logger) Warn(msg string, kv ...any)  { l.L.WithFields(fields(kv)).Warn(msg) }
func (l Logger) Error(msg string, kv ...any) { l.L.WithFields(fields(kv)).Error(msg) }

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
