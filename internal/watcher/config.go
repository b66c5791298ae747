package watcher

import "time"

type WatcherConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	DebounceWindow time.Duration `json:"debounce_window" yaml:"debounce_window"`
	MaxBatchSize   int           `json:"max_batch_size" yaml:"max_batch_size"`
}

// DefaultWatcherConfig waits long enough to coalesce the write+rename bursts
// editors produce when saving a large spec.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Enabled:        true,
		DebounceWindow: 500 * time.Millisecond,
		MaxBatchSize:   32,
	}
}
