package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile decodes the YAML file at path on top of cfg.
// Keys absent from the file keep their current value.
func overlayFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// Dump writes cfg as YAML in the same layout Load reads.
func Dump(cfg AppConfig, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: failed to encode: %w", err)
	}
	return enc.Close()
}
