package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "rmlink"
	configFile = "config.yaml"

	// EnvConfigPath overrides the configuration file location
	EnvConfigPath = "RMLINK_CONFIG"

	// currentVersion is the only file format version understood
	currentVersion = 1
)

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// Serializes writes from this process
	fileMutex sync.Mutex
)

// fileHeader is written above the YAML document on every save
const fileHeader = `# rmlink configuration
# Devices defined by hand, learned IR/RF codes and preferences.
# Devices found by discovery are not written here.

`

// GetConfigDir returns the directory holding the rmlink config file:
//   - Linux: $XDG_CONFIG_HOME/rmlink or $HOME/.config/rmlink
//   - macOS: $HOME/.config/rmlink
//   - Windows: %LOCALAPPDATA%\rmlink
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local", appName), nil
		}
		return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// GetConfigPath returns the full path to the configuration file.
// RMLINK_CONFIG takes precedence over the platform directory.
func GetConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry loads the registry from the configured path once per process.
// A missing file gives a default registry.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalRegistryErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		globalRegistry, globalRegistryErr = LoadRegistryFrom(path)
	})
	return globalRegistry, globalRegistryErr
}

// GetGlobalRegistry returns the registry shared by the commands
func GetGlobalRegistry() (*Registry, error) {
	return LoadRegistry()
}

// LoadRegistryFrom loads a registry from an explicit path.
// A missing or empty file gives a default registry. Unknown keys are errors,
// so a misspelt preference is reported instead of silently ignored.
func LoadRegistryFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	switch err := dec.Decode(&registry); {
	case errors.Is(err, io.EOF):
		return NewRegistry(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if registry.Version != currentVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", registry.Version, currentVersion)
	}
	registry.applyDefaults()
	return &registry, nil
}

// applyDefaults fills maps and preferences a hand-written file left out
func (r *Registry) applyDefaults() {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if r.Codes == nil {
		r.Codes = make(map[string]*Code)
	}

	defaults := DefaultPreferences()
	if r.Preferences == nil {
		r.Preferences = defaults
		return
	}
	p := r.Preferences
	if p.DiscoverTimeout == 0 {
		p.DiscoverTimeout = defaults.DiscoverTimeout
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = defaults.RequestTimeout
	}
	if p.InitialCounter == 0 {
		p.InitialCounter = defaults.InitialCounter
	}
	if p.Bridge == nil {
		p.Bridge = defaults.Bridge
	}
}

// Save writes the registry to the configured path
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(path)
}

// SaveTo writes the registry to path. The file is written next to its
// destination and renamed over it, so readers never see a partial file.
func (r *Registry) SaveTo(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+configFile+"-*")
	if err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append([]byte(fileHeader), data...)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil && runtime.GOOS != "windows" {
		tmp.Close()
		return fmt.Errorf("failed to set config file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a configuration file with default preferences
// and one example device, unless the file already exists.
func CreateDefaultConfig() (string, error) {
	path, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists: %s", path)
	}

	registry := NewRegistry()
	registry.Devices["000000000000"] = &Device{
		Nickname: "Example Living Room",
		Host:     "192.168.1.100",
		Port:     80,
		Type:     "0x2787",
	}
	return path, registry.SaveTo(path)
}
