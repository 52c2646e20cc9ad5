package log

import (
	"errors"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	glogger *zap.Logger
	sugar   *zap.SugaredLogger
)

func init() {
	glogger, _ = zap.NewProduction()
	sugar = glogger.Sugar()
}

var (
	ErrNoHandler = errors.New("no handler")
)

// FileOptions configures the rotated log file handler.
type FileOptions struct {
	FileName   string `yaml:"fileName"`
	MaxSize    int    `yaml:"maxSize"` // megabytes
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"` // days
}

type Options struct {
	LevelStr           string `yaml:"level"`
	StacktraceLevelStr string `yaml:"stacktraceLevel"`
	StdOut             bool   `yaml:"stdout"`
	File               *FileOptions
	Caller             bool `yaml:"caller"`
}

func Init(opts Options) error {
	var err error
	syncers := []zapcore.WriteSyncer{}
	if opts.File != nil {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File.FileName,
			MaxSize:    opts.File.MaxSize,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAge,
		}))
	}
	if opts.StdOut {
		syncers = append(syncers, zapcore.AddSync(zapcore.Lock(os.Stdout)))
	}
	if len(syncers) == 0 {
		return ErrNoHandler
	}

	level := zapcore.InfoLevel
	stLevel := zapcore.PanicLevel
	if len(opts.LevelStr) > 0 {
		level, err = zapcore.ParseLevel(opts.LevelStr)
		if err != nil {
			return err
		}
	}
	if len(opts.StacktraceLevelStr) > 0 {
		stLevel, err = zapcore.ParseLevel(opts.StacktraceLevelStr)
		if err != nil {
			return err
		}
	}

	encodeCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if opts.Caller {
		encodeCfg.CallerKey = "caller"
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encodeCfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)
	glogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(stLevel))
	sugar = glogger.Sugar()

	return nil
}

func Sync() error {
	return glogger.Sync()
}

func Panicf(format string, v ...interface{}) {
	sugar.Panicf(format, v...)
}

func Error(v ...interface{}) {
	sugar.Error(v...)
}

func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

func LogIfError(err error, msg string) {
	if err == nil {
		return
	}
	Error(msg, err)
}
