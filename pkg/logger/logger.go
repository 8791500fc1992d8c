package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	LogLevel zapcore.Level `yaml:"level" envconfig:"LOG_LEVEL"`
	// Sink is a file path; stdout when empty.
	Sink string `yaml:"sink" envconfig:"LOG_SINK"`
}

func NewLogger(cfg Log, name string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	sink := zapcore.Lock(os.Stdout)
	if cfg.Sink != "" {
		f, err := os.OpenFile(cfg.Sink, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			sink = zapcore.Lock(f)
		}
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zap.NewAtomicLevelAt(cfg.LogLevel))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Named(name)
}
