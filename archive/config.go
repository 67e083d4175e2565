package archive

import (
	"strings"

	"github.com/rs/zerolog"
)

// Config is a config of the [Archive].
//
// The zero value is invalid. It's created by [New] and passed to configuration functions.
type Config struct {
	file      string
	durable   bool
	batchSize int
	workers   int
	logger    zerolog.Logger
}

type ConfigFunc = func(c *Config)

// File sets the path of the SQLite database file. ":memory:" keeps the archive in memory.
//
// Default: ":memory:".
func (c *Config) File(file string) {
	file = strings.TrimSpace(file)
	if file == "" {
		panic("file can't be blank")
	}
	if strings.Contains(file, "?") {
		panic("file can't contain ?")
	}
	c.file = file
}

// Durable makes SQLite sync every transaction to disk before it's considered committed.
//
// Default: false.
func (c *Config) Durable(durable bool) {
	c.durable = durable
}

// BatchSize sets how many segments are inserted in one transaction.
//
// Default: 500.
func (c *Config) BatchSize(size int) {
	if size < 1 {
		panic("batch size can't be < 1")
	}
	c.batchSize = size
}

// Workers sets how many documents may be stored concurrently.
//
// Default: 1.
func (c *Config) Workers(workers int) {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	c.workers = workers
}

// Logger sets the logger of the archive.
//
// Default: [zerolog.Nop].
func (c *Config) Logger(logger zerolog.Logger) {
	c.logger = logger
}
