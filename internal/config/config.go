package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the knobs that live outside a test module's own Options:
// how the worker pool elastically sizes itself and how often the
// progress printer redraws. None of this is per-scenario; it governs
// the supervisor for the whole run.
type Settings struct {
	MinWorker         int           `yaml:"minWorker"`
	MaxWorker         int           `yaml:"maxWorker"`
	MaxTasksPerWorker int           `yaml:"maxTasksPerWorker"`
	RPCSlack          time.Duration `yaml:"rpcSlack"`
	ProgressInterval  time.Duration `yaml:"progressInterval"`
}

// Default returns the built-in settings used when no config file is
// given, or when a given file omits a field.
func Default() Settings {
	return Settings{
		MinWorker:         1,
		MaxWorker:         16,
		MaxTasksPerWorker: 1,
		RPCSlack:          5 * time.Second,
		ProgressInterval:  time.Second,
	}
}

// Load reads a YAML settings file at path, starting from Default() so
// any field the file omits keeps its default. An empty path returns
// Default() unchanged.
func Load(path string) (Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw rawSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := raw.mergeInto(&settings); err != nil {
		return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return settings.applyDefaults(), nil
}

// rawSettings mirrors Settings but keeps the two duration fields as
// strings, since time.Duration has no built-in YAML unmarshaller for
// the "10s"-style strings a settings file uses.
type rawSettings struct {
	MinWorker         int    `yaml:"minWorker"`
	MaxWorker         int    `yaml:"maxWorker"`
	MaxTasksPerWorker int    `yaml:"maxTasksPerWorker"`
	RPCSlack          string `yaml:"rpcSlack"`
	ProgressInterval  string `yaml:"progressInterval"`
}

func (r rawSettings) mergeInto(s *Settings) error {
	if r.MinWorker != 0 {
		s.MinWorker = r.MinWorker
	}
	if r.MaxWorker != 0 {
		s.MaxWorker = r.MaxWorker
	}
	if r.MaxTasksPerWorker != 0 {
		s.MaxTasksPerWorker = r.MaxTasksPerWorker
	}
	if r.RPCSlack != "" {
		d, err := time.ParseDuration(r.RPCSlack)
		if err != nil {
			return fmt.Errorf("rpcSlack: %w", err)
		}
		s.RPCSlack = d
	}
	if r.ProgressInterval != "" {
		d, err := time.ParseDuration(r.ProgressInterval)
		if err != nil {
			return fmt.Errorf("progressInterval: %w", err)
		}
		s.ProgressInterval = d
	}
	return nil
}

// applyDefaults fills in any field a partially-specified YAML document
// left at its zero value.
func (s Settings) applyDefaults() Settings {
	d := Default()
	if s.MinWorker <= 0 {
		s.MinWorker = d.MinWorker
	}
	if s.MaxWorker <= 0 {
		s.MaxWorker = d.MaxWorker
	}
	if s.MaxWorker < s.MinWorker {
		s.MaxWorker = s.MinWorker
	}
	if s.MaxTasksPerWorker <= 0 {
		s.MaxTasksPerWorker = d.MaxTasksPerWorker
	}
	if s.RPCSlack <= 0 {
		s.RPCSlack = d.RPCSlack
	}
	if s.ProgressInterval <= 0 {
		s.ProgressInterval = d.ProgressInterval
	}
	return s
}
