package json

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// JSONLogger implements LoggerInstance on top of a zap production logger.
type JSONLogger struct {
	logger *zap.SugaredLogger
}

type JSONLoggerParams struct {
	Debug   bool
	Service string
}

// NewJSONLogger creates a logger that writes one JSON object per line to stderr.
func NewJSONLogger(params JSONLoggerParams) (*JSONLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if params.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	if params.Service != "" {
		l = l.With(zap.String("service", params.Service))
	}
	return &JSONLogger{logger: l.Sugar()}, nil
}

func newFromZap(l *zap.Logger) *JSONLogger {
	return &JSONLogger{logger: l.Sugar()}
}

func (j *JSONLogger) Log(message string, keyvals ...any) {
	j.logger.Infow(message, keyvals...)
}

func (j *JSONLogger) Info(message string, keyvals ...any) {
	j.logger.Infow(message, keyvals...)
}

func (j *JSONLogger) Warn(message string, keyvals ...any) {
	j.logger.Warnw(message, keyvals...)
}

func (j *JSONLogger) Error(message string, keyvals ...any) {
	j.logger.Errorw(message, keyvals...)
}

func (j *JSONLogger) Debug(message string, keyvals ...any) {
	j.logger.Debugw(message, keyvals...)
}

func (j *JSONLogger) Fatal(message string, keyvals ...any) {
	j.logger.Fatalw(message, keyvals...)
}

func (j *JSONLogger) Sync() error {
	return j.logger.Sync()
}
