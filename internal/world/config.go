package world

import "strings"

const DefaultSeed = "glade"

type Config struct {
	Seed string `json:"seed" yaml:"seed"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	normalized.Seed = strings.TrimSpace(normalized.Seed)
	if normalized.Seed == "" {
		normalized.Seed = DefaultSeed
	}
	return normalized
}
