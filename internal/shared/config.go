package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Environment EnvironmentConfig `toml:"environment"`
	Manifest    ManifestConfig    `toml:"manifest"`
	Database    DatabaseConfig    `toml:"database"`
	Download    DownloadConfig    `toml:"download"`
	Tools       ToolsConfig       `toml:"tools"`
}

// EnvironmentConfig contains settings for the isolated environment.
type EnvironmentConfig struct {
	Path          string `toml:"path"`
	Platform      string `toml:"platform"`
	Python        string `toml:"python"`
	PythonVersion string `toml:"python_version"`
}

// ManifestConfig lists the packages installed into the environment.
type ManifestConfig struct {
	File     string          `toml:"file"`
	Packages []PackageConfig `toml:"packages"`
}

// PackageConfig is a single manifest entry. Version is optional.
type PackageConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// DatabaseConfig contains install ledger connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DownloadConfig contains settings for invoking the wrapped downloader.
type DownloadConfig struct {
	Tool      string `toml:"tool"`
	Format    string `toml:"format"`
	OutputDir string `toml:"output_dir"`
	Interval  string `toml:"interval"`
}

// ToolsConfig selects standalone binaries to provision.
type ToolsConfig struct {
	YtDlp   bool `toml:"ytdlp"`
	FFmpeg  bool `toml:"ffmpeg"`
	FFprobe bool `toml:"ffprobe"`
}

// IntervalDuration parses [DownloadConfig.Interval]. An empty interval means no pacing.
func (d DownloadConfig) IntervalDuration() (time.Duration, error) {
	if d.Interval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(d.Interval)
	if err != nil {
		return 0, fmt.Errorf("%w: download.interval %q: %v", ErrInvalidConfig, d.Interval, err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("%w: download.interval must not be negative", ErrInvalidConfig)
	}
	return interval, nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	// Packages are replaced, not merged, when the file declares any.
	defaults := config.Manifest.Packages
	config.Manifest.Packages = nil

	md, err := toml.Decode(string(data), config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if !md.IsDefined("manifest", "packages") {
		config.Manifest.Packages = defaults
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
