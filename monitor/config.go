package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/projectqai/uartmon/cmd"
)

// fileConfig is the optional ~/.config/uartmon.yaml. Explicit flags win
// over anything set here.
type fileConfig struct {
	Monitor struct {
		Baud      int    `yaml:"baud"`
		Retention int    `yaml:"retention"`
		Metrics   string `yaml:"metrics"`
	} `yaml:"monitor"`
}

func loadFileConfig() (*fileConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &fileConfig{}, nil
	}
	path := filepath.Join(home, ".config", "uartmon.yaml")

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

func defaultConfig() Config {
	return Config{
		BaseDir:   cmd.BaseDir(),
		Baud:      cmd.DefaultBaud,
		Retention: 10,
	}
}
