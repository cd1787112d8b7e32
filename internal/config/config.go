package config

import (
	"encoding/base64"
	"fmt"

	"github.com/npezzotti/go-teahub/internal/chat"
)

const DefaultDatabaseDriver = "postgres"

type Config struct {
	ServerAddr     string
	DatabaseDriver string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string

	// RedisAddr enables the Redis broadcast transport when set.
	RedisAddr          string
	MaxMessageLength   int
	AnnounceMembership bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDriver, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDriver == "" {
		databaseDriver = DefaultDatabaseDriver
	}
	if databaseDriver != "postgres" && databaseDriver != "sqlite3" {
		return nil, fmt.Errorf("unsupported database driver %q", databaseDriver)
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:         serverAddr,
		DatabaseDriver:     databaseDriver,
		DatabaseDSN:        databaseDSN,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		MaxMessageLength:   chat.DefaultMaxMessageLength,
		AnnounceMembership: true,
	}, nil
}

// Validate checks the optional settings applied after NewConfig.
func (c *Config) Validate() error {
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("max message length must be positive, got %d", c.MaxMessageLength)
	}
	return nil
}
