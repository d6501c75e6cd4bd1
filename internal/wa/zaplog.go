package wa

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger routes whatsmeow logs into zap under the given module name.
func NewZapLogger(base *zap.SugaredLogger, module string) waLog.Logger {
	return &zapLogger{s: base.Named(module)}
}

func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.s.Debug(fmt.Sprintf(msg, args...)) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.s.Info(fmt.Sprintf(msg, args...)) }
func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.s.Warn(fmt.Sprintf(msg, args...)) }
func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.s.Error(fmt.Sprintf(msg, args...)) }

func (l *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{s: l.s.Named(module)}
}
