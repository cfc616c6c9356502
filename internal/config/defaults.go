package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultQueueSize        = 4096
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 30 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultUnderlying       = "SPX"
	DefaultEpsilon          = 0.05
	DefaultMoveThreshold    = 0.02
	DefaultVolTTL           = 60 * time.Second
	DefaultSnapshotInterval = 1 * time.Second
	DefaultRecvTimeout      = 500 * time.Millisecond
	DefaultRate             = 0.05
	DefaultMultiplier       = 100
	DefaultBaseVol          = 0.20
	DefaultSkew             = 1.5

	DefaultBatchSize     = 60
	DefaultFlushInterval = 5 * time.Second

	DefaultHealthPort = 9090
	DefaultHealthPath = "/health"
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.QueueSize == 0 {
		c.Feed.QueueSize = DefaultQueueSize
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.ReadTimeout == 0 {
		c.Feed.ReadTimeout = DefaultReadTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Engine defaults
	if c.Engine.Underlying == "" {
		c.Engine.Underlying = DefaultUnderlying
	}
	if c.Engine.Epsilon == 0 {
		c.Engine.Epsilon = DefaultEpsilon
	}
	if c.Engine.MoveThreshold == 0 {
		c.Engine.MoveThreshold = DefaultMoveThreshold
	}
	if c.Engine.VolTTL == 0 {
		c.Engine.VolTTL = DefaultVolTTL
	}
	if c.Engine.SnapshotInterval == 0 {
		c.Engine.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.Engine.RecvTimeout == 0 {
		c.Engine.RecvTimeout = DefaultRecvTimeout
	}
	if c.Engine.Rate == 0 {
		c.Engine.Rate = DefaultRate
	}
	if c.Engine.Multiplier == 0 {
		c.Engine.Multiplier = DefaultMultiplier
	}
	if c.Engine.BaseVol == 0 {
		c.Engine.BaseVol = DefaultBaseVol
	}
	if c.Engine.Skew == 0 {
		c.Engine.Skew = DefaultSkew
	}

	// Sink defaults
	if c.Sink.BatchSize == 0 {
		c.Sink.BatchSize = DefaultBatchSize
	}
	if c.Sink.FlushInterval == 0 {
		c.Sink.FlushInterval = DefaultFlushInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
