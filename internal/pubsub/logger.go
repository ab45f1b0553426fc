package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/meterline/meterline/internal/logger"
)

// watermillLogger adapts our Logger to watermill's LoggerAdapter interface.
type watermillLogger struct {
	log    *logger.Logger
	fields watermill.LogFields
}

// NewWatermillLogger returns a watermill-compatible logger.
func NewWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Errorw(msg, l.keysAndValues(fields.Add(watermill.LogFields{"error": err}))...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Infow(msg, l.keysAndValues(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, l.keysAndValues(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debugw(msg, l.keysAndValues(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log, fields: l.fields.Add(fields)}
}

func (l *watermillLogger) keysAndValues(fields watermill.LogFields) []interface{} {
	merged := l.fields.Add(fields)
	kv := make([]interface{}, 0, len(merged)*2)
	for k, v := range merged {
		kv = append(kv, k, v)
	}
	return kv
}
