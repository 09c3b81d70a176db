package bytec

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"tlog.app/go/errors"
)

type (
	// Config carries external-tool locations, the tool timeout, and
	// pass-name aliases. The zero value is not usable, construct with
	// DefaultConfig or LoadConfig.
	Config struct {
		Tools           map[string]string `toml:"tools"`
		TimeoutSec      int               `toml:"timeout_sec"`
		Aliases         map[string]string `toml:"aliases"`
		DisableExternal bool              `toml:"disable_external"`
	}
)

func DefaultConfig() *Config {
	return &Config{
		Tools: map[string]string{
			"wasm": "wasm-opt",
			"ir":   "opt",
		},
		Aliases: map[string]string{
			"O1":       "optimize",
			"shrink":   "strip",
			"minify":   "strip",
			"peephole": "optimize",
		},
	}
}

// LoadConfig reads a TOML config file, layering it over the defaults.
// An absent file is not an error, the defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	return cfg, nil
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return DefaultToolTimeout
	}

	return time.Duration(c.TimeoutSec) * time.Second
}
