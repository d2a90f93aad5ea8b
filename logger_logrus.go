package latencytest

import (
	"github.com/sirupsen/logrus"
)

type logrusLogger struct {
	logg logrus.FieldLogger
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{l.logg.WithError(err)}
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{l.logg.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{l.logg.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) Error(args interface{}) {
	l.logg.Error(args)
}

func (l *logrusLogger) Debug(args interface{}) {
	l.logg.Debug(args)
}

func (l *logrusLogger) Info(args interface{}) {
	l.logg.Info(args)
}

// LogrusLogger wraps a logrus logger in the Logger interface.
func LogrusLogger(logg logrus.FieldLogger) Logger {
	return &logrusLogger{logg}
}
