// Package config loads and validates the YAML configuration for a
// gexstream instance.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Sink     SinkConfig     `yaml:"sink"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds market-data vendor connection settings.
type FeedConfig struct {
	WSURL            string        `yaml:"ws_url"`
	APIKey           string        `yaml:"api_key"`
	Subscriptions    []string      `yaml:"subscriptions"`
	QueueSize        int           `yaml:"queue_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
}

// DatabaseConfig holds the TimescaleDB connection for gamma snapshots.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// EngineConfig holds aggregation loop tuning.
type EngineConfig struct {
	Underlying       string        `yaml:"underlying"`
	Epsilon          float64       `yaml:"epsilon"`
	MoveThreshold    float64       `yaml:"move_threshold"`
	VolTTL           time.Duration `yaml:"vol_ttl"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	RecvTimeout      time.Duration `yaml:"recv_timeout"`
	Rate             float64       `yaml:"rate"`
	DivYield         float64       `yaml:"div_yield"`
	Multiplier       float64       `yaml:"multiplier"`
	BaseVol          float64       `yaml:"base_vol"`
	Skew             float64       `yaml:"skew"`
}

// SinkConfig holds snapshot writer settings.
type SinkConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig holds the stats endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
