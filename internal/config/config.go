package config

// Config is the top-level YAML structure.
type Config struct {
	Server  ServerConf  `yaml:"server"`
	Engine  EngineConf  `yaml:"engine"`
	Storage StorageConf `yaml:"storage"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr string `yaml:"addr"`
}

// EngineConf holds tunable concurrency and retry settings. Timeout and retry
// knobs are safe to hot-reload; worker count and queue depth take effect on
// restart only.
type EngineConf struct {
	Workers          int `yaml:"workers"`
	QueueDepth       int `yaml:"queue_depth"`
	EnqueueTimeoutMs int `yaml:"enqueue_timeout_ms"`
	ActionTimeoutMs  int `yaml:"action_timeout_ms"`
	MaxRetries       int `yaml:"max_retries"`
	RetryBaseMs      int `yaml:"retry_base_ms"`
	ExecutionHistory int `yaml:"execution_history"`
}

// StorageConf selects the rule store backend.
type StorageConf struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 8
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 1024
	}
	if cfg.Engine.EnqueueTimeoutMs == 0 {
		cfg.Engine.EnqueueTimeoutMs = 250
	}
	if cfg.Engine.ActionTimeoutMs == 0 {
		cfg.Engine.ActionTimeoutMs = 10000
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Engine.RetryBaseMs == 0 {
		cfg.Engine.RetryBaseMs = 1000
	}
	if cfg.Engine.ExecutionHistory == 0 {
		cfg.Engine.ExecutionHistory = 200
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
