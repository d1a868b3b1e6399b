package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Hostwatch HostwatchConfig `yaml:"hostwatch"`
}

// HostwatchConfig is the project configuration.
type HostwatchConfig struct {
	Collection CollectionConfig `yaml:"collection"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Graph      GraphConfig      `yaml:"graph"`
	Storage    StorageConfig    `yaml:"storage"`
	Remote     RemoteConfig     `yaml:"remote"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CollectionConfig controls the scheduling loop.
type CollectionConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ExecutorConfig controls local command execution.
type ExecutorConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Whitelist []string      `yaml:"whitelist"`
}

// ScorerConfig controls the anomaly scoring model.
type ScorerConfig struct {
	ModelPath string `yaml:"model_path"`
}

// AlertsConfig controls alert generation and publishing.
type AlertsConfig struct {
	Threshold float64          `yaml:"threshold"`
	Redis     AlertRedisConfig `yaml:"redis"`
}

// AlertRedisConfig controls the optional Redis alert sink.
type AlertRedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// GraphConfig controls risk propagation.
type GraphConfig struct {
	DecayFactor float64 `yaml:"decay_factor"`
}

// StorageConfig controls JSON persistence.
type StorageConfig struct {
	Dir         string `yaml:"dir"`
	HistoryFile string `yaml:"history_file"`
	AlertsFile  string `yaml:"alerts_file"`
}

// RemoteConfig controls remote snapshot collection.
type RemoteConfig struct {
	Endpoints []RemoteEndpointConfig `yaml:"endpoints"`
}

// RemoteEndpointConfig describes one remote node to poll.
type RemoteEndpointConfig struct {
	NodeID    string        `yaml:"node_id"`
	URL       string        `yaml:"url"`
	AuthType  string        `yaml:"auth_type"`
	AuthToken string        `yaml:"auth_token"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
