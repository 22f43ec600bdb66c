package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the shared logrus instance.
// Output is one of stdout, file or both; File is only used for file output.
type Config struct {
	Level      string
	Format     string
	Output     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	mu   sync.Mutex
	base *logrus.Logger
)

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		File:       "logs/kds.log",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

// Init builds the process-wide logger. Calling it again replaces the previous one.
func Init(cfg Config) *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	base = build(cfg)
	return base
}

// New returns an entry tagged with the service (or component) name.
func New(service string) *logrus.Entry {
	mu.Lock()
	if base == nil {
		base = build(DefaultConfig())
	}
	l := base
	mu.Unlock()
	return l.WithField("service", service)
}

func build(cfg Config) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	var writers []io.Writer
	if (cfg.Output == "file" || cfg.Output == "both") && cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Output != "file" || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	if len(writers) == 1 {
		l.SetOutput(writers[0])
	} else {
		l.SetOutput(io.MultiWriter(writers...))
	}
	return l
}
