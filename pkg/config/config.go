package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Hub struct {
		Address         string        `yaml:"address"`
		Path            string        `yaml:"path"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		SendBuffer      int           `yaml:"send_buffer"`
		ChatReplay      int           `yaml:"chat_replay"`
		BidReplay       int           `yaml:"bid_replay"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"hub"`

	Client struct {
		HubHost        string        `yaml:"hub_host"`
		Secure         bool          `yaml:"secure"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		SendBuffer     int           `yaml:"send_buffer"`
		DialTimeout    time.Duration `yaml:"dial_timeout"`
	} `yaml:"client"`

	Capture struct {
		FramesPerSecond  int             `yaml:"frames_per_second"`
		MaxDimension     int             `yaml:"max_dimension"`
		JPEGQuality      int             `yaml:"jpeg_quality"`
		ReadinessRecheck []time.Duration `yaml:"readiness_recheck"`
	} `yaml:"capture"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
		MaxMessageBytes   int64   `yaml:"max_message_bytes"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Hub.Address == "" {
		return fmt.Errorf("hub.address must not be empty")
	}
	if c.Hub.Path == "" {
		return fmt.Errorf("hub.path must not be empty")
	}
	if c.Hub.PingInterval <= 0 {
		return fmt.Errorf("hub.ping_interval must be > 0")
	}
	if c.Hub.PongTimeout <= 0 {
		return fmt.Errorf("hub.pong_timeout must be > 0")
	}
	if c.Hub.ReadTimeout <= 0 {
		return fmt.Errorf("hub.read_timeout must be > 0")
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be > 0")
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be > 0")
	}
	if c.Hub.ChatReplay < 0 {
		return fmt.Errorf("hub.chat_replay must be >= 0")
	}
	if c.Hub.BidReplay < 0 {
		return fmt.Errorf("hub.bid_replay must be >= 0")
	}
	if c.Hub.ShutdownTimeout <= 0 {
		return fmt.Errorf("hub.shutdown_timeout must be > 0")
	}

	if c.Client.HubHost == "" {
		return fmt.Errorf("client.hub_host must not be empty")
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be > 0")
	}
	if c.Client.SendBuffer <= 0 {
		return fmt.Errorf("client.send_buffer must be > 0")
	}
	if c.Client.DialTimeout <= 0 {
		return fmt.Errorf("client.dial_timeout must be > 0")
	}

	if c.Capture.FramesPerSecond <= 0 {
		return fmt.Errorf("capture.frames_per_second must be > 0")
	}
	if c.Capture.MaxDimension <= 0 {
		return fmt.Errorf("capture.max_dimension must be > 0")
	}
	if c.Capture.JPEGQuality <= 0 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be in (0, 100]")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxMessageBytes < 0 {
			return fmt.Errorf("rate_limiting.max_message_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name must not be empty when tracing.enabled=true")
		}
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing.enabled=true")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults. Capture defaults
// mirror the production sender: 60 samples/second, 900px cap, JPEG quality 40.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Hub.Address = ":8080"
	cfg.Hub.Path = "/ws"
	cfg.Hub.PingInterval = 30 * time.Second
	cfg.Hub.PongTimeout = 60 * time.Second
	cfg.Hub.ReadTimeout = 60 * time.Second
	cfg.Hub.WriteTimeout = 10 * time.Second
	cfg.Hub.SendBuffer = 64
	cfg.Hub.ChatReplay = 20
	cfg.Hub.BidReplay = 10
	cfg.Hub.ShutdownTimeout = 30 * time.Second

	cfg.Client.HubHost = "localhost:8080"
	cfg.Client.Secure = false
	cfg.Client.ReconnectDelay = time.Second
	cfg.Client.SendBuffer = 64
	cfg.Client.DialTimeout = 10 * time.Second

	cfg.Capture.FramesPerSecond = 60
	cfg.Capture.MaxDimension = 900
	cfg.Capture.JPEGQuality = 40
	cfg.Capture.ReadinessRecheck = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.MessagesPerSecond = 20
	cfg.RateLimiting.Burst = 40
	cfg.RateLimiting.MaxMessageBytes = 512 * 1024

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "bidcast"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("BIDCAST_HUB_ADDRESS"); addr != "" {
		c.Hub.Address = addr
	}
	if host := os.Getenv("BIDCAST_HUB_HOST"); host != "" {
		c.Client.HubHost = host
	}
	if level := os.Getenv("BIDCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("BIDCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
