package sqlite

import (
	"strings"
)

type Config struct {
	file    string
	durable bool
	workers int
}

type ConfigFunc = func(c *Config)

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

func (c *Config) Durable(durable bool) {
	c.durable = durable
}

func (c *Config) Workers(workers int) {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	c.workers = workers
}

func WithFile(file string) ConfigFunc {
	return func(c *Config) { c.File(file) }
}

func WithDurable(durable bool) ConfigFunc {
	return func(c *Config) { c.Durable(durable) }
}

func WithWorkers(workers int) ConfigFunc {
	return func(c *Config) { c.Workers(workers) }
}
