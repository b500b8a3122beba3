package logger

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Config struct {
	Level      string `mapstructure:"level" json:"level" doc:"debug|info|warn|error (default info)"`
	Format     string `mapstructure:"format" json:"format" doc:"console|json (default console)"`
	File       string `mapstructure:"file" json:"file" doc:"Log file (default stderr)"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb" doc:"Rotate file after this size (default 100)"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" doc:"Rotated files to keep (0 keeps all)"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days" doc:"Days to keep rotated files (0 keeps all)"`
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Errorf("nil.Validate()")
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return errors.Wrapf(err, "invalid level:\"%s\"", c.Level)
	}
	switch c.Format {
	case "":
		c.Format = "console"
	case "console", "json":
	default:
		return errors.Errorf("invalid format:\"%s\" (expecting console|json)", c.Format)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.Errorf("negative file rotation limits")
	}
	if c.File != "" && c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	return nil
} //Config.Validate()

var (
	rootMutex sync.RWMutex
	root      *zap.Logger
)

func init() {
	c := Config{}
	if err := Configure(c); err != nil {
		panic(err)
	}
}

//Configure replaces the process logger used by all package loggers
func Configure(c Config) error {
	if err := c.Validate(); err != nil {
		return errors.Wrapf(err, "invalid log config")
	}
	level, _ := zapcore.ParseLevel(c.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timestampFormat)
	var enc zapcore.Encoder
	if c.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if c.File != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
		})
	}
	Use(zap.New(zapcore.NewCore(enc, ws, level), zap.AddCaller(), zap.AddCallerSkip(1)))
	return nil
} //Configure()

//Use sets l as the process logger and returns a func that restores the previous one
func Use(l *zap.Logger) (restore func()) {
	rootMutex.Lock()
	defer rootMutex.Unlock()
	prev := root
	root = l
	return func() {
		rootMutex.Lock()
		root = prev
		rootMutex.Unlock()
	}
}

func current() *zap.Logger {
	rootMutex.RLock()
	defer rootMutex.RUnlock()
	return root
}

//Logger is named after the package that created it and always writes
//to the current process logger, so it may be declared before Configure()
type Logger struct {
	name string
}

func NewLogger() Logger {
	return Logger{name: callerPackage(2)}
}

func (l Logger) Named(name string) Logger {
	return Logger{name: l.name + "." + name}
}

func (l Logger) sugar() *zap.SugaredLogger {
	return current().Named(l.name).Sugar()
}

func (l Logger) Debugf(format string, args ...interface{}) { l.sugar().Debugf(format, args...) }
func (l Logger) Infof(format string, args ...interface{}) { l.sugar().Infof(format, args...) }
func (l Logger) Warnf(format string, args ...interface{}) { l.sugar().Warnf(format, args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.sugar().Errorf(format, args...) }

//With returns a structured logger carrying the given key/value pairs
func (l Logger) With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return current().WithOptions(zap.AddCallerSkip(-1)).Named(l.name).Sugar().With(keysAndValues...)
}

func (l Logger) Sync() error {
	return current().Sync()
}

//callerPackage returns the last element of the package path of the function
//skip frames up, e.g. "nats" for ".../ms/nats.init"
func callerPackage(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}
