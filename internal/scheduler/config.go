package scheduler

import (
	"time"
)

// Config controls scheduler intervals, batch sizes and retry policy.
type Config struct {
	RunInterval      time.Duration
	BatchSize        int
	ReminderAfter    time.Duration
	ReminderDedupe   time.Duration
	DiscountAfter    time.Duration
	RetryWindow      time.Duration
	MaxRetryAttempts int
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Hour,
		BatchSize:        50,
		ReminderAfter:    time.Hour,
		ReminderDedupe:   12 * time.Hour,
		DiscountAfter:    24 * time.Hour,
		RetryWindow:      48 * time.Hour,
		MaxRetryAttempts: 3,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ReminderAfter <= 0 {
		c.ReminderAfter = defaults.ReminderAfter
	}
	if c.ReminderDedupe <= 0 {
		c.ReminderDedupe = defaults.ReminderDedupe
	}
	if c.DiscountAfter <= 0 {
		c.DiscountAfter = defaults.DiscountAfter
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = defaults.RetryWindow
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
	return c
}
