package bootstrap

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions controls the console logger
type LoggerOptions struct {
	// Debug lowers the level to debug and adds caller information
	Debug bool
	// NoColor disables colored levels
	NoColor bool
	// Output defaults to stderr so command output on stdout stays clean
	Output zapcore.WriteSyncer
}

// InitLogger builds the console logger shared by all commands
func InitLogger(opts LoggerOptions) (*zap.Logger, *zap.SugaredLogger) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if opts.NoColor {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	zapOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Debug {
		zapOpts = append(zapOpts, zap.AddCaller())
	}

	logger := zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), out, level), zapOpts...)
	return logger, logger.Sugar()
}
