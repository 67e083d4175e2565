// Package log builds the zerolog logger of the command line tool.
package log

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	level string
	file  string
}

type ConfigFunc = func(c *Config)

// Level sets the minimum level, e.g. "debug" or "warn". Default: "warn".
func (c *Config) Level(level string) {
	c.level = strings.TrimSpace(level)
}

// File makes the logger also write to a rotating file. Default: no file.
func (c *Config) File(file string) {
	c.file = strings.TrimSpace(file)
}

// New creates a logger writing to w and, if configured, to a rotating file.
//
// The returned closer closes the file and must be called when the logger isn't needed anymore.
func New(w io.Writer, configFuncs ...ConfigFunc) (zerolog.Logger, io.Closer, error) {
	cfg := Config{}
	cfg.Level("warn")
	for _, cf := range configFuncs {
		if cf != nil {
			cf(&cfg)
		}
	}

	level, err := zerolog.ParseLevel(cfg.level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("parse level: %w", err)
	}

	var closer io.Closer = nopCloser{}
	if cfg.file != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.file,
			MaxSize:    5,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		w = io.MultiWriter(w, file)
		closer = file
	}

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
