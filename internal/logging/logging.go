package logging

import (
	"io"
	"os"
	"strings"

	"github.com/councilhq/councilapi/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global logrus logger from config. When a log file is
// configured, output goes to both stderr and a size-rotated file.
func Setup(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if strings.TrimSpace(cfg.File) == "" {
		log.SetOutput(os.Stderr)
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}
