package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Inbox    InboxConfig    `mapstructure:"inbox"`
	Topics   TopicsConfig   `mapstructure:"topics"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type BrokerConfig struct {
	// Kind selects the bus implementation: memory, redis or kafka.
	Kind    string   `mapstructure:"kind"`
	URL     string   `mapstructure:"url"`     // redis
	Brokers []string `mapstructure:"brokers"` // kafka
	Group   string   `mapstructure:"group"`
}

type OutboxConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PublishRate  float64       `mapstructure:"publish_rate"`
}

type InboxConfig struct {
	DedupCacheTTL time.Duration `mapstructure:"dedup_cache_ttl"`
}

type TopicsConfig struct {
	PaymentRequests string `mapstructure:"payment_requests"`
	PaymentUpdates  string `mapstructure:"payment_updates"`
	AccountEvents   string `mapstructure:"account_events"`
}

// LoadConfig reads <name>.yaml from ./config or the working directory;
// environment variables override file values.
func LoadConfig(name string) (*Config, error) {
	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval", 5*time.Second)
	viper.SetDefault("inbox.dedup_cache_ttl", 10*time.Minute)
	viper.SetDefault("topics.payment_requests", "order-payment-requests")
	viper.SetDefault("topics.payment_updates", "payment-status-updates")
	viper.SetDefault("topics.account_events", "account-events")
	viper.SetDefault("broker.kind", "memory")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
