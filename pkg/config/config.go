package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultConfigFile = "server_config.toml"

// Config holds all configuration for the server and client binaries
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Session   SessionConfig   `mapstructure:"session"`
	Client    ClientConfig    `mapstructure:"client"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type ServerConfig struct {
	TCPAddr       string `mapstructure:"tcp_addr"` // control endpoint; PING listener binds the same host:port over UDP
	TickersFile   string `mapstructure:"tickers_file"`
	ReadTimeoutMs int    `mapstructure:"read_timeout_ms"`
}

type GeneratorConfig struct {
	QuoteRateMs   int                `mapstructure:"quote_rate_ms"`
	MaxMove       float64            `mapstructure:"max_move"`
	DefaultPrice  float64            `mapstructure:"default_price"`
	Popular       []string           `mapstructure:"popular"`
	InitialPrices map[string]float64 `mapstructure:"initial_prices"`
}

type SessionConfig struct {
	KeepaliveTimeoutSecs int `mapstructure:"keepalive_timeout_secs"`
	QueueSize            int `mapstructure:"queue_size"`
	PollIntervalMs       int `mapstructure:"poll_interval_ms"`
}

type ClientConfig struct {
	ServerAddr     string `mapstructure:"server_addr"`
	UDPPort        int    `mapstructure:"udp_port"`
	TickersFile    string `mapstructure:"tickers_file"`
	PingIntervalMs int    `mapstructure:"ping_interval_ms"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // empty disables the redis mirror
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLSecs  int    `mapstructure:"ttl_secs"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"` // empty disables the kafka mirror
	Topic   string   `mapstructure:"topic"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig reads configuration from .env file, an optional config file,
// environment variables, and defaults. CONFIG_FILE overrides the file path.
func LoadConfig() (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("server.tcp_addr", "127.0.0.1:8080")
	v.SetDefault("server.tickers_file", "tickers.txt")
	v.SetDefault("server.read_timeout_ms", 5000)

	v.SetDefault("generator.quote_rate_ms", 1000)
	v.SetDefault("generator.max_move", 0.02)
	v.SetDefault("generator.default_price", 100.0)
	v.SetDefault("generator.popular", []string{"AAPL", "MSFT", "TSLA"})

	v.SetDefault("session.keepalive_timeout_secs", 5)
	v.SetDefault("session.queue_size", 64)
	v.SetDefault("session.poll_interval_ms", 100)

	v.SetDefault("client.server_addr", "127.0.0.1:8080")
	v.SetDefault("client.udp_port", 34254)
	v.SetDefault("client.tickers_file", "tickers.txt")
	v.SetDefault("client.ping_interval_ms", 2000)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_secs", 3600)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "quotes")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// "server.tcp_addr" -> "SERVER_TCP_ADDR"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "server.tcp_addr", "server.tickers_file", "server.read_timeout_ms")
	bindEnv(v, "generator.quote_rate_ms", "generator.max_move", "generator.default_price", "generator.popular")
	bindEnv(v, "session.keepalive_timeout_secs", "session.queue_size", "session.poll_interval_ms")
	bindEnv(v, "client.server_addr", "client.udp_port", "client.tickers_file", "client.ping_interval_ms")
	bindEnv(v, "redis.addr", "redis.password", "redis.db", "redis.ttl_secs")
	bindEnv(v, "kafka.brokers", "kafka.topic")
	bindEnv(v, "logger.level", "logger.development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// viper lower-cases map keys
	prices := make(map[string]float64, len(cfg.Generator.InitialPrices))
	for sym, p := range cfg.Generator.InitialPrices {
		prices[strings.ToUpper(sym)] = p
	}
	cfg.Generator.InitialPrices = prices
	for i, sym := range cfg.Generator.Popular {
		cfg.Generator.Popular[i] = strings.ToUpper(strings.TrimSpace(sym))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server.TCPAddr) == "":
		return errors.New("server.tcp_addr cannot be empty")
	case strings.TrimSpace(c.Server.TickersFile) == "":
		return errors.New("server.tickers_file cannot be empty")
	case c.Generator.QuoteRateMs <= 0:
		return fmt.Errorf("generator.quote_rate_ms must be positive, got %d", c.Generator.QuoteRateMs)
	case c.Generator.MaxMove <= 0 || c.Generator.MaxMove >= 1:
		return fmt.Errorf("generator.max_move must be in (0, 1), got %v", c.Generator.MaxMove)
	case c.Generator.DefaultPrice <= 0:
		return fmt.Errorf("generator.default_price must be positive, got %v", c.Generator.DefaultPrice)
	case c.Session.KeepaliveTimeoutSecs <= 0:
		return fmt.Errorf("session.keepalive_timeout_secs must be positive, got %d", c.Session.KeepaliveTimeoutSecs)
	case c.Session.QueueSize <= 0:
		return fmt.Errorf("session.queue_size must be positive, got %d", c.Session.QueueSize)
	case c.Session.PollIntervalMs <= 0:
		return fmt.Errorf("session.poll_interval_ms must be positive, got %d", c.Session.PollIntervalMs)
	}
	for sym, p := range c.Generator.InitialPrices {
		if p <= 0 {
			return fmt.Errorf("initial price for %s must be positive, got %v", sym, p)
		}
	}
	return nil
}

func (g GeneratorConfig) Interval() time.Duration {
	return time.Duration(g.QuoteRateMs) * time.Millisecond
}

func (s SessionConfig) KeepaliveTimeout() time.Duration {
	return time.Duration(s.KeepaliveTimeoutSecs) * time.Second
}

func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (c ClientConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMs) * time.Millisecond
}

func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSecs) * time.Second
}

// readConfigFile loads CONFIG_FILE, or server_config.toml when present.
// A missing default file is not an error; a missing explicit file is.
func readConfigFile(v *viper.Viper) error {
	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
