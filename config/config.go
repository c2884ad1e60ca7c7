package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration. Values come from an
// optional YAML file, with environment variables taking precedence.
type Config struct {
	HTTPAddr    string     `yaml:"httpAddr"`
	DatabaseURL string     `yaml:"databaseUrl"`
	JWTSecret   string     `yaml:"jwtSecret"`
	UploadDir   string     `yaml:"uploadDir"`
	SMTP        SMTPConfig `yaml:"smtp"`
}

// SMTPConfig defines the mail endpoint for the notification dispatcher.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Load builds the configuration from the optional file at path (empty path
// skips the file) layered under environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:  ":8080",
		UploadDir: "uploads",
		SMTP:      SMTPConfig{Port: 587},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.UploadDir, "UPLOAD_DIR")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate ensures required values are present before the server starts.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("databaseUrl (DATABASE_URL) is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwtSecret (JWT_SECRET) is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("uploadDir must not be empty")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.SMTP.Port)
	}
	return nil
}
