package logging

import (
	"strings"
	"time"
)

const (
	SinkConsole = "console"
	SinkJSON    = "json"
	SinkLogrus  = "logrus"
	SinkMemory  = "memory"
)

type Config struct {
	EnabledSinks     []string       `yaml:"sinks"`
	BufferSize       int            `yaml:"bufferSize"`
	MinimumSeverity  Severity       `yaml:"-"`
	Level            string         `yaml:"level"`
	Fields           map[string]any `yaml:"fields"`
	JSON             JSONConfig     `yaml:"json"`
	Logrus           LogrusConfig   `yaml:"logrus"`
	DropWarnInterval time.Duration  `yaml:"dropWarnInterval"`
}

type JSONConfig struct {
	FilePath      string        `yaml:"filePath"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

type LogrusConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{SinkLogrus},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		Level:            "info",
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
		Logrus: LogrusConfig{Format: "text"},
	}
}

// Normalized fills zero values from DefaultConfig and resolves Level.
func (c Config) Normalized() Config {
	defaults := DefaultConfig()
	if len(c.EnabledSinks) == 0 {
		c.EnabledSinks = defaults.EnabledSinks
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaults.BufferSize
	}
	if c.DropWarnInterval <= 0 {
		c.DropWarnInterval = defaults.DropWarnInterval
	}
	if c.JSON.FlushInterval < 0 {
		c.JSON.FlushInterval = 0
	}
	format := strings.ToLower(strings.TrimSpace(c.Logrus.Format))
	if format != "json" {
		format = "text"
	}
	c.Logrus.Format = format
	if c.Level != "" {
		if sev, err := ParseSeverity(c.Level); err == nil {
			c.MinimumSeverity = sev
		}
	}
	c.Level = c.MinimumSeverity.String()
	return c
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
