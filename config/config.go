// Package config loads engine configuration. Precedence, lowest to highest:
// struct defaults, environment variables (a .env file is honored), then an
// optional YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	App      AppConfig      `envPrefix:"APP_" yaml:"app"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_" yaml:"kafka"`
	Strategy StrategyConfig `envPrefix:"STRATEGY_" yaml:"strategy"`
	Engine   EngineConfig   `envPrefix:"ENGINE_" yaml:"engine"`
}

// AppConfig covers identity and filesystem layout.
type AppConfig struct {
	Symbol      string `env:"SYMBOL" envDefault:"BTC-USDT" yaml:"symbol"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	WALDir      string `env:"WAL_DIR" envDefault:"./data/wal" yaml:"wal_dir"`
	OutboxDir   string `env:"OUTBOX_DIR" envDefault:"./data/outbox" yaml:"outbox_dir"`
	SnapshotDir string `env:"SNAPSHOT_DIR" envDefault:"./data/snapshots" yaml:"snapshot_dir"`
	MetricsDir  string `env:"METRICS_DIR" envDefault:"./logs" yaml:"metrics_dir"`
}

// KafkaConfig covers both producers. Enabled=false runs the engine fully
// offline; nothing is published and no broker connection is attempted.
type KafkaConfig struct {
	Enabled     bool     `env:"ENABLED" envDefault:"false" yaml:"enabled"`
	Brokers     []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092" yaml:"brokers"`
	SignalTopic string   `env:"SIGNAL_TOPIC" envDefault:"argus.signals" yaml:"signal_topic"`
	StateTopic  string   `env:"STATE_TOPIC" envDefault:"argus.book-state" yaml:"state_topic"`
}

// StrategyConfig selects and tunes the signal generator.
type StrategyConfig struct {
	Name               string  `env:"NAME" envDefault:"imbalance" yaml:"name"`
	ImbalanceThreshold float64 `env:"IMBALANCE_THRESHOLD" envDefault:"0.3" yaml:"imbalance_threshold"`
	ImbalanceDepth     int     `env:"IMBALANCE_DEPTH" envDefault:"5" yaml:"imbalance_depth"`
	RiskAversion       float64 `env:"RISK_AVERSION" envDefault:"0.1" yaml:"risk_aversion"`
	InventoryLimit     float64 `env:"INVENTORY_LIMIT" envDefault:"10" yaml:"inventory_limit"`
	OrderSize          float64 `env:"ORDER_SIZE" envDefault:"0.001" yaml:"order_size"`
}

// EngineConfig tunes the event-loop cadence and book policies.
type EngineConfig struct {
	EvalInterval    int    `env:"EVAL_INTERVAL" envDefault:"10" yaml:"eval_interval"`
	StateInterval   int    `env:"STATE_INTERVAL" envDefault:"100" yaml:"state_interval"`
	LatencyInterval int    `env:"LATENCY_INTERVAL" envDefault:"1000" yaml:"latency_interval"`
	SnapshotEvery   int    `env:"SNAPSHOT_EVERY" envDefault:"10000" yaml:"snapshot_every"`
	ResetOnSnapshot bool   `env:"RESET_ON_SNAPSHOT" envDefault:"false" yaml:"reset_on_snapshot"`
	Validation      string `env:"VALIDATION" envDefault:"advisory" yaml:"validation"`
}

// Load builds the configuration. yamlPath may be empty.
func Load(yamlPath string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.EvalInterval <= 0 {
		return fmt.Errorf("engine.eval_interval must be positive, got %d", c.Engine.EvalInterval)
	}
	if c.Engine.StateInterval <= 0 {
		return fmt.Errorf("engine.state_interval must be positive, got %d", c.Engine.StateInterval)
	}
	if c.Engine.LatencyInterval <= 0 {
		return fmt.Errorf("engine.latency_interval must be positive, got %d", c.Engine.LatencyInterval)
	}
	if c.Engine.SnapshotEvery <= 0 {
		return fmt.Errorf("engine.snapshot_every must be positive, got %d", c.Engine.SnapshotEvery)
	}
	switch c.Engine.Validation {
	case "off", "advisory", "strict":
	default:
		return fmt.Errorf("engine.validation must be off, advisory or strict, got %q", c.Engine.Validation)
	}
	switch c.Strategy.Name {
	case "imbalance", "market_maker":
	default:
		return fmt.Errorf("strategy.name must be imbalance or market_maker, got %q", c.Strategy.Name)
	}
	if c.Strategy.OrderSize <= 0 {
		return fmt.Errorf("strategy.order_size must be positive, got %g", c.Strategy.OrderSize)
	}
	return nil
}
