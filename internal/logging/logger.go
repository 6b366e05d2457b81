// Package logging provides the process-wide zap logger. cmd/aggregatord
// initializes it twice: once with hardcoded defaults before config is
// loaded (so config loading itself can log), and once more with the real
// configured level right after, matching the two-phase init every command
// in this codebase follows.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the package-level singleton every component calls .Named() on.
var Logger *zap.Logger

// InitLogger (re)builds Logger. dev switches between a human-readable
// console encoder and JSON; level is any zapcore.Level string
// ("debug", "info", "warn", "error").
func InitLogger(dev bool, level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if dev {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   "aggregatord.log",
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), fileWriter, lvl),
	)

	opts := []zap.Option{zap.AddCaller()}
	if dev {
		opts = append(opts, zap.Development())
	}
	Logger = zap.New(core, opts...)
}
