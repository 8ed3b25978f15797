package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// config holds defaults read from the YAML config file. Flags given on the
// command line take precedence.
type config struct {
	// Image is the disk image or device to operate on. Images ending in
	// .zst are zstd compressed.
	Image string `yaml:"image"`
	// Partition selects an MBR partition 1-4, 0 for an unpartitioned
	// device and -1 to try partition 1 then the whole device.
	Partition int `yaml:"partition"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// ReadOnly refuses every write to the image.
	ReadOnly bool `yaml:"readonly"`
}

func defaultConfig() config {
	return config{Partition: -1, LogLevel: "warn"}
}

// defaultConfigPath is typically ~/.config/fatimg/config.yaml on Linux.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fatimg", "config.yaml")
}

// loadConfig merges the file at path into cfg. A missing file is only an
// error when the path was given explicitly.
func loadConfig(fsys afero.Fs, path string, explicit bool, cfg *config) error {
	if path == "" {
		return nil
	}
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	} else if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
