package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	PackTrace PackTraceConfig `yaml:"packtrace"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	TrackingObservedTopicName string `yaml:"tracking_observed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PackTraceConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	AuthSecret          string `yaml:"auth_secret"`
	AuthTokenTTLSeconds int    `yaml:"auth_token_ttl_seconds"`

	LatestCacheTTLSeconds     int `yaml:"latest_cache_ttl_seconds"`
	CarrierRateLimitPerMinute int `yaml:"carrier_rate_limit_per_minute"`

	NotifierConsumerGroup string `yaml:"notifier_consumer_group"`
	NotifierHTTPAddr      string `yaml:"notifier_http_addr"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
