// Package modes loads the per-mode default settings.
package modes

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/mcdev12/buzzroom/go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed modes.yaml
var defaultPresets []byte

// Presets maps each mode to the settings it starts with.
type Presets map[models.Mode]models.ModeSettings

// Default returns the built-in presets.
func Default() Presets {
	p, err := Parse(defaultPresets)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded mode presets: %v", err))
	}
	return p
}

// Load reads presets from a YAML file. Modes missing from the file keep their
// built-in settings.
func Load(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mode presets: %w", err)
	}
	overrides, err := Parse(data)
	if err != nil {
		return nil, err
	}
	p := Default()
	for mode, settings := range overrides {
		p[mode] = settings
	}
	return p, nil
}

// Parse decodes and validates a YAML preset document.
func Parse(data []byte) (Presets, error) {
	var raw map[string]models.ModeSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse mode presets: %w", err)
	}
	p := make(Presets, len(raw))
	for name, settings := range raw {
		gm := models.GameMode{Mode: models.Mode(name), Settings: settings}
		if err := gm.Validate(); err != nil {
			return nil, fmt.Errorf("mode %s: %w", name, err)
		}
		p[gm.Mode] = settings
	}
	return p, nil
}

// Settings returns the preset of mode, or the built-in defaults.
func (p Presets) Settings(mode models.Mode) models.ModeSettings {
	if s, ok := p[mode]; ok {
		return s
	}
	return models.DefaultSettings()
}

// GameMode returns mode with its preset settings.
func (p Presets) GameMode(mode models.Mode) models.GameMode {
	return models.GameMode{Mode: mode, Settings: p.Settings(mode)}
}
