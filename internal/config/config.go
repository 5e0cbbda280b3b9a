package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summary       SummaryConfig       `yaml:"summary"`
	Auth          AuthConfig          `yaml:"auth"`
	Database      DatabaseConfig      `yaml:"database"`
	Client        ClientConfig        `yaml:"client"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains WebSocket and HTTP API server configuration
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	BindAddress           string `yaml:"bind_address"`
	HTTPPort              int    `yaml:"http_port"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
	WriteTimeout          int    `yaml:"write_timeout"` // seconds
}

// AudioConfig contains capture and chunking parameters
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	BitDepth      int     `yaml:"bit_depth"`
	SliceInterval float64 `yaml:"slice_interval"` // seconds, capture-device push cadence
	FlushInterval float64 `yaml:"flush_interval"` // seconds, chunk hand-off cadence
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// SummaryConfig contains summarization API configuration
type SummaryConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // seconds
}

// AuthConfig contains token verification configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl"` // seconds
}

// DatabaseConfig contains persistence configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ClientConfig contains recorder client configuration
type ClientConfig struct {
	ServerURL         string  `yaml:"server_url"`
	MaxReconnects     int     `yaml:"max_reconnects"`
	ReconnectBackoff  float64 `yaml:"reconnect_backoff"`     // seconds, initial
	MaxReconnectDelay float64 `yaml:"max_reconnect_delay"`   // seconds, cap
	RequestTimeout    int     `yaml:"request_timeout"`       // seconds, applied by caller
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. Secrets present in the
// environment (optionally via a .env file) override their YAML values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides pulls secrets from the environment so they are never
// required to live in the YAML file.
func (c *Config) applyEnvOverrides() {
	// A missing .env file is fine; plain environment variables still apply.
	_ = godotenv.Load()

	if v := os.Getenv("SCRIBE_TRANSCRIPTION_API_KEY"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("SCRIBE_OPENAI_API_KEY"); v != "" {
		c.Summary.APIKey = v
	}
	if v := os.Getenv("SCRIBE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", s.HTTPPort)
	}

	if s.Port == s.HTTPPort {
		return fmt.Errorf("port and http_port must differ, both are %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 && a.SampleRate != 44100 && a.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.SliceInterval <= 0 {
		return fmt.Errorf("slice_interval must be positive, got %f", a.SliceInterval)
	}

	if a.FlushInterval <= a.SliceInterval {
		return fmt.Errorf("flush_interval (%f) must be greater than slice_interval (%f)",
			a.FlushInterval, a.SliceInterval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates summary configuration
func (s *SummaryConfig) Validate() error {
	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates auth configuration
func (a *AuthConfig) Validate() error {
	if len(a.JWTSecret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters, got %d", len(a.JWTSecret))
	}

	if a.TokenTTL < 60 {
		return fmt.Errorf("token_ttl must be at least 60 seconds, got %d", a.TokenTTL)
	}

	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates client configuration
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}

	if c.MaxReconnects < 0 {
		return fmt.Errorf("max_reconnects cannot be negative, got %d", c.MaxReconnects)
	}

	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect_backoff must be positive, got %f", c.ReconnectBackoff)
	}

	if c.MaxReconnectDelay < c.ReconnectBackoff {
		return fmt.Errorf("max_reconnect_delay (%f) must be at least reconnect_backoff (%f)",
			c.MaxReconnectDelay, c.ReconnectBackoff)
	}

	if c.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", c.RequestTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSliceInterval returns the capture slice interval as a time.Duration
func (a *AudioConfig) GetSliceInterval() time.Duration {
	return time.Duration(a.SliceInterval * float64(time.Second))
}

// GetFlushInterval returns the chunk flush interval as a time.Duration
func (a *AudioConfig) GetFlushInterval() time.Duration {
	return time.Duration(a.FlushInterval * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the summarization timeout as a time.Duration
func (s *SummaryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetTokenTTL returns the token lifetime as a time.Duration
func (a *AuthConfig) GetTokenTTL() time.Duration {
	return time.Duration(a.TokenTTL) * time.Second
}

// GetWriteTimeout returns the WebSocket write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetReconnectBackoff returns the initial reconnect delay as a time.Duration
func (c *ClientConfig) GetReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoff * float64(time.Second))
}

// GetMaxReconnectDelay returns the reconnect delay cap as a time.Duration
func (c *ClientConfig) GetMaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelay * float64(time.Second))
}

// GetRequestTimeout returns the request/ack timeout as a time.Duration
func (c *ClientConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}
