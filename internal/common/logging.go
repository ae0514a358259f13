package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu  sync.Mutex
	logger = log.New(os.Stderr, "[powerchunk] ", log.LstdFlags|log.Lmicroseconds)
)

// LogConfig controls the rotating log file. An empty Directory keeps output on
// stderr only.
type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

func Logf(format string, args ...interface{}) {
	logMu.Lock()
	l := logger
	logMu.Unlock()
	l.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logMu.Lock()
	l := logger
	logMu.Unlock()
	l.Fatalf(format, args...)
}

// SetupLogging tees the package logger into a lumberjack rotator under
// cfg.Directory. The returned closer releases the log file.
func SetupLogging(cfg LogConfig, name string) (io.Closer, error) {
	if cfg.Directory == "" {
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if name == "" {
		name = "powerchunk"
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	SetLogOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

// SetLogOutput replaces the destination of Logf.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	logger = log.New(w, "[powerchunk] ", log.LstdFlags|log.Lmicroseconds)
	logMu.Unlock()
}
