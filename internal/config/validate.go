package config

import "fmt"

// Validate checks that required fields are present and tunables are sane.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return fmt.Errorf("instance.id is required")
	}
	if c.Feed.WSURL == "" {
		return fmt.Errorf("feed.ws_url is required")
	}
	if len(c.Feed.Subscriptions) == 0 {
		return fmt.Errorf("feed.subscriptions must not be empty")
	}
	if c.Feed.QueueSize < 0 {
		return fmt.Errorf("feed.queue_size must not be negative")
	}

	if err := validateDB("database.timescale", c.Database.Timescale); err != nil {
		return err
	}

	if c.Engine.Epsilon < 0 {
		return fmt.Errorf("engine.epsilon must not be negative")
	}
	if c.Engine.MoveThreshold <= 0 {
		return fmt.Errorf("engine.move_threshold must be positive")
	}
	if c.Engine.VolTTL <= 0 {
		return fmt.Errorf("engine.vol_ttl must be positive")
	}
	if c.Engine.SnapshotInterval <= 0 {
		return fmt.Errorf("engine.snapshot_interval must be positive")
	}
	if c.Engine.Multiplier <= 0 {
		return fmt.Errorf("engine.multiplier must be positive")
	}
	if c.Engine.BaseVol <= 0 {
		return fmt.Errorf("engine.base_vol must be positive")
	}

	if c.Sink.BatchSize <= 0 {
		return fmt.Errorf("sink.batch_size must be positive")
	}
	if c.Sink.FlushInterval <= 0 {
		return fmt.Errorf("sink.flush_interval must be positive")
	}

	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535")
	}

	return nil
}

func validateDB(prefix string, db DBConfig) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns must not exceed max_conns", prefix)
	}
	return nil
}
