package recorder

import (
	"time"

	"abquant/internal/model"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	defaultQueueSize     = 4096
	defaultBatchSize     = 500
	defaultFlushInterval = 5 * time.Second
)

// Config controls which symbols are recorded and how bars are flushed. A
// negative FlushInterval disables periodic flushes.
type Config struct {
	Symbols       []string      `mapstructure:"symbols"` // ab symbols
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Validate checks if the configuration is usable. Zero sizes take their
// defaults.
func (c Config) Validate() error {
	c = c.withDefaults()
	if len(c.Symbols) == 0 {
		return errors.Wrap(exception.ErrRecorderInvalidConfig, "symbols is empty")
	}
	for _, ab := range c.Symbols {
		if _, _, err := model.SplitABSymbol(ab); err != nil {
			return errors.Wrapf(exception.ErrRecorderInvalidConfig, "symbol %q, err: %+v", ab, err)
		}
	}
	if c.QueueSize <= 0 {
		return errors.Wrap(exception.ErrRecorderInvalidConfig, "queue size must be > 0")
	}
	if c.BatchSize <= 0 {
		return errors.Wrap(exception.ErrRecorderInvalidConfig, "batch size must be > 0")
	}
	return nil
}
