package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level   string // debug, info, warn, error
	File    string // optional rotated log file
	Service string
}

// New builds a JSON logger writing to stdout, and also to a rotated file
// when Options.File is set.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotator), level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if opts.Service != "" {
		log = log.With(zap.String("service", opts.Service))
	}
	return log, nil
}
