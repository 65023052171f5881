package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"audiodev-manager/internal/domain"
)

// EnvPrefix namespaces environment overrides, e.g. AUDIODEV_BACKEND=memory.
const EnvPrefix = "AUDIODEV"

// FileRepository implements domain.SettingsRepository using a JSON file layered
// under environment overrides. This is a secondary adapter.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a new file-based settings repository.
func NewFileRepository(path string) (domain.SettingsRepository, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	return &FileRepository{path: path}, nil
}

// persistedData represents the JSON structure on disk.
type persistedData struct {
	Backend            string                     `json:"backend"`
	Addr               string                     `json:"addr"`
	LogLevel           string                     `json:"log_level"`
	PollIntervalMillis int                        `json:"poll_interval_ms"`
	Advertise          bool                       `json:"advertise"`
	ServiceName        string                     `json:"service_name"`
	VirtualDevices     []domain.VirtualDeviceSpec `json:"virtual_devices,omitempty"`
}

// Load reads the settings from disk (defaults when the file is absent) and applies
// AUDIODEV_* environment overrides.
func (f *FileRepository) Load() (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := viper.New()
	defaults := domain.DefaultSettings()
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("addr", defaults.Addr)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("poll_interval_ms", int(defaults.PollInterval/time.Millisecond))
	v.SetDefault("advertise", defaults.Advertise)
	v.SetDefault("service_name", defaults.ServiceName)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if _, err := os.Stat(f.path); err == nil {
		v.SetConfigFile(f.path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return domain.Settings{}, fmt.Errorf("read config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return domain.Settings{}, fmt.Errorf("stat config: %w", err)
	}

	settings := domain.Settings{
		Backend:      v.GetString("backend"),
		Addr:         v.GetString("addr"),
		LogLevel:     v.GetString("log_level"),
		PollInterval: time.Duration(v.GetInt("poll_interval_ms")) * time.Millisecond,
		Advertise:    v.GetBool("advertise"),
		ServiceName:  v.GetString("service_name"),
	}
	if err := v.UnmarshalKey("virtual_devices", &settings.VirtualDevices); err != nil {
		return domain.Settings{}, fmt.Errorf("unmarshal virtual_devices: %w", err)
	}

	// Apply defaults if necessary
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaults.PollInterval
	}
	if settings.ServiceName == "" {
		settings.ServiceName = defaults.ServiceName
	}

	return settings, nil
}

// Save persists the settings to disk.
func (f *FileRepository) Save(settings domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	persisted := persistedData{
		Backend:            settings.Backend,
		Addr:               settings.Addr,
		LogLevel:           settings.LogLevel,
		PollIntervalMillis: int(settings.PollInterval / time.Millisecond),
		Advertise:          settings.Advertise,
		ServiceName:        settings.ServiceName,
		VirtualDevices:     settings.VirtualDevices,
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Atomic write
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}

	return nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "audiodev-manager", "config.json")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "audiodev-manager-config.json")
}
