// Package config loads and writes the ccbisect configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config is the complete ccbisect configuration.
type Config struct {
	// CacheDir is the root of the compiler artifact cache. Each build lives
	// in a directory named <shortname>-<commit> under it.
	CacheDir string `toml:"cacheDir" mapstructure:"cacheDir"`

	// DBPath is the location of the run database.
	DBPath string `toml:"dbPath" mapstructure:"dbPath"`

	// Jobs is the build parallelism passed to make/ninja. Zero means the
	// number of CPUs.
	Jobs int `toml:"jobs" mapstructure:"jobs"`

	Gcc     RepoConfig    `toml:"gcc" mapstructure:"gcc"`
	Llvm    RepoConfig    `toml:"llvm" mapstructure:"llvm"`
	Bisect  BisectConfig  `toml:"bisect" mapstructure:"bisect"`
	Logging LoggingConfig `toml:"logging" mapstructure:"logging"`
}

// RepoConfig locates one compiler repository checkout.
type RepoConfig struct {
	Repo       string `toml:"repo" mapstructure:"repo"`
	MainBranch string `toml:"mainBranch" mapstructure:"mainBranch"`
}

// BisectConfig tunes the bisection engine's failure tolerance.
type BisectConfig struct {
	// MaxBuildFailures bounds consecutive unusable commits around one spot
	// before the bisection aborts.
	MaxBuildFailures int `toml:"maxBuildFailures" mapstructure:"maxBuildFailures"`

	// MaxTotalFailures bounds unusable commits without interval progress.
	MaxTotalFailures int `toml:"maxTotalFailures" mapstructure:"maxTotalFailures"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	File  string `toml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		CacheDir: filepath.Join(home, ".cache", "ccbisect", "artifacts"),
		DBPath:   filepath.Join(home, ".cache", "ccbisect", "runs.db"),
		Jobs:     runtime.NumCPU(),
		Gcc: RepoConfig{
			Repo:       filepath.Join(home, "src", "gcc"),
			MainBranch: "master",
		},
		Llvm: RepoConfig{
			Repo:       filepath.Join(home, "src", "llvm-project"),
			MainBranch: "main",
		},
		Bisect: BisectConfig{
			MaxBuildFailures: 3,
			MaxTotalFailures: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ccbisect", "config.toml")
	}
	return "config.toml"
}

// Load reads the configuration at path, falling back to defaults for a
// missing file. Values absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration as TOML at path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cacheDir must not be empty")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative")
	}
	if c.Bisect.MaxBuildFailures <= 0 {
		return fmt.Errorf("bisect.maxBuildFailures must be positive")
	}
	if c.Bisect.MaxTotalFailures <= 0 {
		return fmt.Errorf("bisect.maxTotalFailures must be positive")
	}
	return nil
}

// RepoFor returns the repository settings for the named project.
func (c *Config) RepoFor(project string) RepoConfig {
	if project == "llvm" {
		return c.Llvm
	}
	return c.Gcc
}
