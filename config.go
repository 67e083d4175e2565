package edi

import (
	"github.com/rs/zerolog"
)

const (
	defaultBufferSize = 4096
	minBufferSize     = 16
)

// Config is a config of the [Stream].
//
// The zero value is invalid. It's created by [NewStream] and passed to configuration functions.
type Config struct {
	bufferSize int
	lineBreaks bool
	logger     zerolog.Logger
	prometheus *PrometheusConfig
}

type ConfigFunc = func(c *Config)

// BufferSize sets the size of the read buffer and the initial capacity of the segment buffer.
// Segments longer than that are still read, the segment buffer just grows.
//
// Default: 4096.
func (c *Config) BufferSize(size int) {
	if size < minBufferSize {
		panic("buffer size can't be < 16")
	}
	c.bufferSize = size
}

// LineBreaks makes the stream ignore CR and LF bytes at the start of every segment. It's for
// documents that put a line break after each segment terminator.
//
// Default: false.
func (c *Config) LineBreaks(enabled bool) {
	c.lineBreaks = enabled
}

// Logger sets the logger of the stream.
//
// Default: [zerolog.Nop].
func (c *Config) Logger(logger zerolog.Logger) {
	c.logger = logger
}

// Prometheus sets the metrics config of the stream. See [Prometheus].
//
// Default: metrics are collected, but not registered.
func (c *Config) Prometheus(prometheus *PrometheusConfig) {
	if prometheus == nil {
		panic("prometheus can't be nil")
	}
	c.prometheus = prometheus
}

func newConfig(configFuncs ...ConfigFunc) *Config {
	cfg := Config{}
	cfg.BufferSize(defaultBufferSize)
	cfg.LineBreaks(false)
	cfg.Logger(zerolog.Nop())
	cfg.Prometheus(Prometheus(nil))
	for _, cf := range configFuncs {
		if cf != nil {
			cf(&cfg)
		}
	}
	return &cfg
}
