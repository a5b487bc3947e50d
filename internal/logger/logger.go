package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init configures the global zap logger. Call once from main; everything
// else uses zap.L().
func Init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}
