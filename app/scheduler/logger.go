package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/amirphl/orochi-outreach/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewSchedulerLogger returns a logger writing to stdout and, unless output is stdout only,
// to a size-rotated file. The returned closer releases the file.
func NewSchedulerLogger(cfg config.LoggingConfig) (*log.Logger, io.Closer, error) {
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return log.New(os.Stdout, "scheduler ", flags), io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  false,
	}

	var w io.Writer = file
	if cfg.Output == "both" {
		w = io.MultiWriter(os.Stdout, file)
	}
	return log.New(w, "scheduler ", flags), file, nil
}
