// Package zap adapts a zap logger to the querykit Logger interface.
package zap

import "go.uber.org/zap"

// Logger wraps a *zap.SugaredLogger, which natively understands alternating
// key/value arguments.
type Logger struct{ L *zap.SugaredLogger }

func (z Logger) Debug(msg string, kv ...any) { z.L.Debugw(msg, kv...) }
func (z Logger) Info(msg string, kv ...any)  { z.L.Infow(msg, kv...) }
func (z Logger) Warn(msg string, kv ...any)  { z.L.Warnw(msg, kv...) }
func (z Logger) Error(msg string, kv ...any) { z.L.Errorw(msg, kv...) }
