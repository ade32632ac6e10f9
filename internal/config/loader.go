package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "QUORUM_SPEC"

// ConfigName is the project config file name without extension.
const ConfigName = ".quorum-spec"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader using an existing viper instance, so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration and validates it.
// Precedence (highest to lowest):
// 1. CLI flags bound to the viper instance
// 2. Environment variables (QUORUM_SPEC_*)
// 3. Project config (.quorum-spec.yaml in the working directory)
// 4. User config (~/.config/quorum-spec/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(ConfigName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "quorum-spec"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.resolveSecrets(os.Getenv)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// resolveSecrets fills keys from their *_env variables when not set inline.
func (c *Config) resolveSecrets(getenv func(string) string) {
	for name, p := range c.Providers {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = getenv(p.APIKeyEnv)
		}
		if p.APIKey == "" {
			p.APIKey = getenv(strings.ToUpper(name) + "_API_KEY")
		}
		c.Providers[name] = p
	}
	if c.Tools.WebSearch.APIKey == "" && c.Tools.WebSearch.APIKeyEnv != "" {
		c.Tools.WebSearch.APIKey = getenv(c.Tools.WebSearch.APIKeyEnv)
	}
	if c.Tools.GitHub.Token == "" && c.Tools.GitHub.TokenEnv != "" {
		c.Tools.GitHub.Token = getenv(c.Tools.GitHub.TokenEnv)
	}
}

// WriteDefault writes DefaultConfigYAML to path. An existing file is left
// untouched unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := writeFile(path, []byte(DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
