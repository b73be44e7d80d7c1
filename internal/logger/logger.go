package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"catalog/repricer/internal/config"
)

// Setup configures the package level logrus logger: level, formatter and an
// optional rotating log file next to stdout.
func Setup(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(formatter(cfg.Format))

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}))
	return nil
}

func formatter(format string) log.Formatter {
	if format == "json" {
		return &log.JSONFormatter{TimestampFormat: time.RFC3339}
	}
	return &log.TextFormatter{FullTimestamp: true}
}

// RunLog is a debug logger dedicated to a single export run.
type RunLog struct {
	*log.Entry
	Path string

	closer io.Closer
}

// NewRunLog opens logs/debug_export_<timestamp>.log under dir. With an empty
// dir the entries go to the standard logger instead.
func NewRunLog(dir, batchID string, now time.Time) (*RunLog, error) {
	if dir == "" {
		return &RunLog{Entry: log.WithField("batch_id", batchID)}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("debug_export_%s.log", now.Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open export log: %w", err)
	}

	l := log.New()
	l.SetOutput(file)
	l.SetLevel(log.DebugLevel)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})

	return &RunLog{
		Entry:  l.WithField("batch_id", batchID),
		Path:   path,
		closer: file,
	}, nil
}

// Close releases the log file.
func (r *RunLog) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
