package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	libconfig "sensorhub/backend/libs/config"
)

const (
	defaultPort          = "5011"
	defaultSchemaPath    = "config.yaml"
	defaultReadingsTable = "sensor_data"
	defaultMQTTTopic     = "sensorhub/readings/latest"
	defaultMQTTClientID  = "reading-service"
	defaultRedisTTL      = 24 * time.Hour
)

// Config defines reading service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Schema   SchemaConfig   `yaml:"schema"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"READINGS_HTTP_PORT"`
}

// AuthConfig holds the device shared secret.
type AuthConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY" validate:"required"`
}

// SchemaConfig points at the table layout and names the table readings go to.
type SchemaConfig struct {
	Path            string `yaml:"path" env:"READINGS_SCHEMA_FILE" validate:"required"`
	ReadingsTable   string `yaml:"readings_table" env:"READINGS_TABLE" validate:"required"`
	TimestampColumn string `yaml:"timestamp_column" env:"READINGS_TIMESTAMP_COLUMN"`
}

// DatabaseConfig optionally overrides the connection string from the schema file.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"READINGS_POSTGRES_DSN"`
}

// RedisConfig enables the snapshot mirror when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"READINGS_REDIS_ADDR"`
	Password string        `yaml:"password" env:"READINGS_REDIS_PASSWORD"`
	TTL      time.Duration `yaml:"ttl" env:"READINGS_REDIS_TTL" validate:"gte=0"`
}

// MQTTConfig enables snapshot publishing when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"READINGS_MQTT_BROKER"`
	Topic    string `yaml:"topic" env:"READINGS_MQTT_TOPIC" validate:"required_with=Broker"`
	ClientID string `yaml:"client_id" env:"READINGS_MQTT_CLIENT_ID"`
}

// LogConfig controls verbosity.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// Load reads configuration from CONFIG_FILE and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile reads configuration from path (optional) and the environment.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if err := libconfig.LoadConfigFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.Auth.APIKey == "" {
		return nil, errors.New("config: auth api key required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP:   HTTPConfig{Port: defaultPort},
		Schema: SchemaConfig{Path: defaultSchemaPath, ReadingsTable: defaultReadingsTable},
		Redis:  RedisConfig{TTL: defaultRedisTTL},
		MQTT:   MQTTConfig{Topic: defaultMQTTTopic, ClientID: defaultMQTTClientID},
	}
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
