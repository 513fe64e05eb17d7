package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cochaviz/apkforge/internal/build"
	"github.com/cochaviz/apkforge/internal/logging"
)

var ConfigDir = "/etc/apkforge"
var StorageDir = "/var/lib/apkforge/"

// DefaultConfigFile is read when no --config flag is given.
var DefaultConfigFile = filepath.Join(ConfigDir, "config.yaml")

// Artifact store kinds accepted in the settings file.
const (
	StoreMemory = "memory"
	StoreLocal  = "local"
)

const DefaultListen = "127.0.0.1:8080"

// Settings is the on-disk configuration. Flags given on the command line take
// precedence over anything read here.
type Settings struct {
	LogLevel      string     `yaml:"log_level"`
	LogFormat     string     `yaml:"log_format"`
	ArtifactDir   string     `yaml:"artifact_dir"`
	ArtifactStore string     `yaml:"artifact_store"`
	Listen        string     `yaml:"listen"`
	JWTSecret     string     `yaml:"jwt_secret,omitempty"`
	Phases        build.Plan `yaml:"phases,omitempty"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:      "info",
		LogFormat:     "cli",
		ArtifactDir:   filepath.Join(StorageDir, "artifacts"),
		ArtifactStore: StoreMemory,
		Listen:        DefaultListen,
	}
}

// Plan returns the configured phases, or the default plan when none are set.
// Built-in actions are attached to configured phases by name.
func (s Settings) Plan() build.Plan {
	if len(s.Phases) == 0 {
		return build.DefaultPlan()
	}
	return build.WithDefaultActions(s.Phases)
}

// LoadSettings reads path on top of DefaultSettings. A missing file is not an
// error; the defaults are returned unchanged.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		getLogger().Debug("no settings file, using defaults", "path", path)
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := settings.Verify(); err != nil {
		return settings, fmt.Errorf("settings %s: %w", path, err)
	}

	getLogger().Debug("loaded settings", "path", path, "phases", len(settings.Phases))
	return settings, nil
}

// Verify checks the values that cannot be defaulted.
func (s Settings) Verify() error {
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseMode(s.LogFormat); err != nil {
		return err
	}
	switch s.ArtifactStore {
	case StoreMemory:
	case StoreLocal:
		if s.ArtifactDir == "" {
			return fmt.Errorf("artifact_store %q requires artifact_dir", StoreLocal)
		}
	default:
		return fmt.Errorf("unknown artifact_store %q (want %s or %s)", s.ArtifactStore, StoreMemory, StoreLocal)
	}
	if len(s.Phases) > 0 {
		if err := s.Phases.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WriteDefault writes the default settings, including the default phase plan,
// to path. An existing file is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file %s already exists", path)
		}
	}

	settings := DefaultSettings()
	settings.Phases = build.DefaultPlan()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}

	getLogger().Info("wrote default settings", "path", path)
	return nil
}

// Verify checks that the settings file exists and is valid.
func Verify(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}
	_, err := LoadSettings(path)
	return err
}

func ClearConfig(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	getLogger().Info("clearing configuration files", "path", path)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
