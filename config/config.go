// Package config loads the pipeline configuration from a YAML file, with
// sane defaults for running against a local backend.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Inbox       InboxConfig       `yaml:"inbox"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	// BaseURL is the HTTP endpoint for audio uploads.
	BaseURL string `yaml:"base_url"`
	// SocketURL is the websocket endpoint for the streaming channel.
	SocketURL string `yaml:"socket_url"`
}

type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
	// Device selects an input device by ID; 0 means the system default.
	Device int `yaml:"device"`
}

type PipelineConfig struct {
	// StallTimeout bounds how long a streaming assistant turn may go
	// silent before it is abandoned.
	StallTimeout int `yaml:"stall_timeout"` // seconds
	// ContextWindow is how many trailing transcript entries accompany
	// each turn submission.
	ContextWindow int `yaml:"context_window"`
}

// GetStallTimeout returns the stall timeout as a time.Duration
func (p *PipelineConfig) GetStallTimeout() time.Duration {
	return time.Duration(p.StallTimeout) * time.Second
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type RecognitionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8080",
			SocketURL: "ws://localhost:8080/ws",
		},
		Audio: AudioConfig{
			SampleRate:      44100,
			Channels:        1,
			FramesPerBuffer: 1024,
		},
		Pipeline: PipelineConfig{
			StallTimeout:  30,
			ContextWindow: 6,
		},
		Monitor: MonitorConfig{
			Addr: "localhost:9090",
		},
		Inbox: InboxConfig{
			Dir: "inbox",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if s.SocketURL == "" {
		return fmt.Errorf("socket_url is required")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("only mono capture is supported, got %d channels", a.Channels)
	}
	if a.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames_per_buffer must be positive, got %d", a.FramesPerBuffer)
	}
	if a.Device < 0 {
		return fmt.Errorf("device must be 0 (default) or a positive device ID, got %d", a.Device)
	}
	return nil
}

func (p *PipelineConfig) Validate() error {
	if p.StallTimeout <= 0 {
		return fmt.Errorf("stall_timeout must be positive, got %d", p.StallTimeout)
	}
	if p.ContextWindow <= 0 {
		return fmt.Errorf("context_window must be positive, got %d", p.ContextWindow)
	}
	return nil
}

func (m *MonitorConfig) Validate() error {
	if m.Enabled && m.Addr == "" {
		return fmt.Errorf("addr is required when enabled")
	}
	return nil
}

func (i *InboxConfig) Validate() error {
	if i.Enabled && i.Dir == "" {
		return fmt.Errorf("dir is required when enabled")
	}
	return nil
}

func (r *RecognitionConfig) Validate() error {
	if r.Enabled && r.Command == "" {
		return fmt.Errorf("command is required when enabled")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}
