// Package config defines the bus's plain configuration value types — the
// struct shapes every field in the external interface section enumerates.
// Parsing a config file or overlaying environment variables onto these
// structs is left to an external CLI; this package only carries the value
// types and their struct-tagged defaults.
package config

import "time"

// TransportConfig selects and configures which transport backend handles
// each of the four transport kinds.
type TransportConfig struct {
	SchemaTransport string `env:"BUS_SCHEMA_TRANSPORT" env-default:"redis"`
	RpcTransport    string `env:"BUS_RPC_TRANSPORT" env-default:"redis"`
	ResultTransport string `env:"BUS_RESULT_TRANSPORT" env-default:"redis"`
	EventTransport  string `env:"BUS_EVENT_TRANSPORT" env-default:"redis"`

	RedisAddr     string `env:"BUS_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"BUS_REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"BUS_REDIS_DB" env-default:"0"`
	KeyPrefix     string `env:"BUS_KEY_PREFIX" env-default:"lightbus"`
}

// APIConfig carries the per-API options named in the external interface
// section, keyed by API name in the containing config document.
type APIConfig struct {
	RpcTimeout      time.Duration `env:"RPC_TIMEOUT" env-default:"5s"`
	EventFireTimeout time.Duration `env:"EVENT_FIRE_TIMEOUT" env-default:"5s"`
	Validate        string        `env:"VALIDATE" env-default:"both"`
	CastValues      bool          `env:"CAST_VALUES" env-default:"false"`
}

// WorkerConfig carries the dispatcher's tunables.
type WorkerConfig struct {
	Concurrency             int           `env:"WORKER_CONCURRENCY" env-default:"10"`
	AcknowledgementTimeout  time.Duration `env:"WORKER_ACK_TIMEOUT" env-default:"30s"`
	ReclaimInterval         time.Duration `env:"WORKER_RECLAIM_INTERVAL" env-default:"10s"`
	MaxRedeliveries         int64         `env:"WORKER_MAX_REDELIVERIES" env-default:"5"`
	GracefulShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" env-default:"30s"`
	SchemaTTL               time.Duration `env:"WORKER_SCHEMA_TTL" env-default:"60s"`
}

// Config is the complete configuration surface for one bus client.
type Config struct {
	Transport TransportConfig
	Worker    WorkerConfig
	APIs      map[string]APIConfig
}

// Defaults returns a Config populated with every env-default value, as if
// loaded with no overrides present.
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			SchemaTransport: "redis",
			RpcTransport:    "redis",
			ResultTransport: "redis",
			EventTransport:  "redis",
			RedisAddr:       "localhost:6379",
			RedisDB:         0,
			KeyPrefix:       "lightbus",
		},
		Worker: WorkerConfig{
			Concurrency:             10,
			AcknowledgementTimeout:  30 * time.Second,
			ReclaimInterval:         10 * time.Second,
			MaxRedeliveries:         5,
			GracefulShutdownTimeout: 30 * time.Second,
			SchemaTTL:               60 * time.Second,
		},
		APIs: make(map[string]APIConfig),
	}
}

// APIConfigFor returns the configuration for apiName, or the package
// default if no override is registered.
func (c Config) APIConfigFor(apiName string) APIConfig {
	if cfg, ok := c.APIs[apiName]; ok {
		return cfg
	}
	return APIConfig{
		RpcTimeout:       5 * time.Second,
		EventFireTimeout: 5 * time.Second,
		Validate:         "both",
		CastValues:       false,
	}
}
