package config

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/gpsmap/internal/errors"
)

// DirName is the name of the per-user and per-directory config folder.
const DirName = ".gpsmap"

// FileName is the config file name inside DirName.
const FileName = "config.json"

// Config holds application configuration.
type Config struct {
	// HandshakesDir holds the capture files, position files and potfiles.
	HandshakesDir string `json:"handshakes_dir"`

	// Host and Port are the web server's listen address.
	Host string `json:"host"`
	Port int    `json:"port"`

	// Debug enables debug logging.
	Debug bool `json:"debug,omitempty"`

	// CacheSize bounds the parsed position record cache.
	CacheSize int `json:"cache_size,omitempty"`

	// Workers is the number of position files parsed concurrently.
	Workers int `json:"workers,omitempty"`

	// Watch reloads potfiles when they change while serving.
	Watch bool `json:"watch,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		HandshakesDir: "/home/pi/handshakes",
		Host:          "127.0.0.1",
		Port:          5000,
		CacheSize:     2048,
		Workers:       4,
	}
}

// DefaultPath returns ~/.gpsmap/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName, FileName), nil
}

// Load loads configuration from path.
// Returns default config if the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg, err := loadFileRaw(path)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithLocal loads the global config at globalPath, then overlays the
// nearest .gpsmap/config.json found by walking upward from startDir.
// Local config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithLocal(globalPath, startDir string) (*Config, error) {
	global, err := loadFileRaw(globalPath)
	if err != nil {
		return nil, err
	}

	local, err := loadFileRaw(FindLocalConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), local), nil
}

// FindLocalConfig walks upward from startDir to find the nearest .gpsmap/config.json.
// Returns the path if found, or empty string if not found.
func FindLocalConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Save writes cfg to path as indented JSON, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewIO(path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.NewIO(path, err)
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.NewConfig(configPath, err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfig(configPath, err)
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.HandshakesDir = overlay.HandshakesDir
	if result.HandshakesDir == "" {
		result.HandshakesDir = base.HandshakesDir
	}

	result.Host = overlay.Host
	if result.Host == "" {
		result.Host = base.Host
	}

	result.Port = overlay.Port
	if result.Port == 0 {
		result.Port = base.Port
	}

	result.CacheSize = overlay.CacheSize
	if result.CacheSize == 0 {
		result.CacheSize = base.CacheSize
	}

	result.Workers = overlay.Workers
	if result.Workers == 0 {
		result.Workers = base.Workers
	}

	// Booleans: overlay wins if true, else base
	result.Debug = base.Debug || overlay.Debug
	result.Watch = base.Watch || overlay.Watch

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
