// Package config loads pdfsteg settings from TOML.
package config

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wudi/pdfsteg/carrier"
	"github.com/wudi/pdfsteg/security"
)

type Config struct {
	Carrier carrier.Policy  `toml:"carrier"`
	Engine  Engine          `toml:"engine"`
	Limits  security.Limits `toml:"limits"`
}

// Engine holds codec settings that are not part of the carrier policy.
type Engine struct {
	Workers int  `toml:"workers"`
	Verify  bool `toml:"verify"`
	// Strict fails on any structural problem instead of repairing it.
	Strict bool `toml:"strict"`
}

func Default() Config {
	return Config{
		Carrier: carrier.DefaultPolicy(),
		Engine: Engine{
			Workers: runtime.GOMAXPROCS(0),
			Verify:  true,
		},
		Limits: security.DefaultLimits(),
	}
}

// Load reads path over Default. Keys that do not map to a setting are an
// error, so a misspelled option is never silently ignored.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)
	return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
}

func (c Config) Validate() error {
	if err := c.Carrier.Validate(); err != nil {
		return fmt.Errorf("carrier: %w", err)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine: workers must not be negative, got %d", c.Engine.Workers)
	}
	return nil
}
