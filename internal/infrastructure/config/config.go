package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the bridge reads at startup.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Polling   PollingConfig   `yaml:"polling"`
	Devices   DevicesConfig   `yaml:"devices"`
}

// Load builds a Config in four layers: built-in defaults, the YAML at
// path, per-device defaults, then GRAYLOGIC_AV_* environment variables.
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.Devices.fillDefaults()
	applyEnvOverrides(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}

	cfg.Site = SiteConfig{ID: "site-001", Name: "Gray Logic"}

	cfg.Database = DatabaseConfig{
		Path:                 "./data/graylogic-av.db",
		WALMode:              true,
		BusyTimeout:          5,
		HistoryRetentionDays: 30,
	}

	cfg.MQTT.Broker = MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "graylogic-av"}
	cfg.MQTT.QoS = 1
	cfg.MQTT.Reconnect = MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60}

	cfg.API = APIConfig{Enabled: true, Host: "0.0.0.0", Port: 8090}
	cfg.API.Timeouts = APITimeoutConfig{Read: 30, Write: 30, Idle: 60}

	cfg.WebSocket = WebSocketConfig{Path: "/ws", MaxMessageSize: 8 << 10, PingInterval: 30, PongTimeout: 10}

	cfg.Logging = LoggingConfig{Level: "info", Format: "json", Output: "stdout"}

	cfg.Polling = PollingConfig{Interval: 10, IOTimeout: 5}

	return cfg
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetReadTimeout is api.timeouts.read.
func (c *Config) GetReadTimeout() time.Duration { return seconds(c.API.Timeouts.Read) }

// GetWriteTimeout is api.timeouts.write.
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }

// GetIdleTimeout is api.timeouts.idle.
func (c *Config) GetIdleTimeout() time.Duration { return seconds(c.API.Timeouts.Idle) }

// GetPollInterval is the gap between two polls of the same device.
func (c *Config) GetPollInterval() time.Duration { return seconds(c.Polling.Interval) }

// GetIOTimeout bounds one vendor call.
func (c *Config) GetIOTimeout() time.Duration { return seconds(c.Polling.IOTimeout) }
