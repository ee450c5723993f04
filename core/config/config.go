// Package config holds the face settings: defaults, files and the settings
// scope served by the assistant.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Scope is the name of the assistant's settings scope for this face.
const Scope = "web_face_frontend"

type Config struct {
	// PreferStreamingInput orders server side recognition before the client
	// side alternatives when both are possible.
	PreferStreamingInput bool `yaml:"preferStreamingInput" json:"preferStreamingInput" jsonschema:"default=true"`
	AudioInputEnabled    bool `yaml:"audioInputEnabled" json:"audioInputEnabled" jsonschema:"default=true"`
	AudioOutputEnabled   bool `yaml:"audioOutputEnabled" json:"audioOutputEnabled" jsonschema:"default=true"`
	MicrophoneSampleRate int  `yaml:"microphoneSampleRate" json:"microphoneSampleRate" jsonschema:"default=16000"`
	HideConfiguration    bool `yaml:"hideConfiguration" json:"hideConfiguration"`
	// HideAdvancedUI hides the negotiated capabilities and settings panel.
	HideAdvancedUI bool `yaml:"hideAdvancedUI" json:"hideAdvancedUI"`
}

// overrides mirrors Config with optional fields so that values explicitly set
// to false or zero still replace defaults.
type overrides struct {
	PreferStreamingInput *bool `yaml:"preferStreamingInput"`
	AudioInputEnabled    *bool `yaml:"audioInputEnabled"`
	AudioOutputEnabled   *bool `yaml:"audioOutputEnabled"`
	MicrophoneSampleRate *int  `yaml:"microphoneSampleRate"`
	HideConfiguration    *bool `yaml:"hideConfiguration"`
	HideAdvancedUI       *bool `yaml:"hideAdvancedUI"`
}

var ErrInvalidSampleRate = errors.New("microphone sample rate must be positive")

func Default() Config {
	return Config{
		PreferStreamingInput: true,
		AudioInputEnabled:    true,
		AudioOutputEnabled:   true,
		MicrophoneSampleRate: 16000,
	}
}

// Parse reads YAML or JSON settings and lays them over the defaults.
// Unknown keys are ignored.
func Parse(data []byte) (Config, error) {
	var set overrides
	if err := yaml.Unmarshal(data, &set); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	if err := copier.CopyWithOption(&cfg, &set, copier.Option{IgnoreEmpty: true}); err != nil {
		return Config{}, fmt.Errorf("failed to apply config: %w", err)
	}
	return cfg, cfg.Validate()
}

func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func (c Config) Validate() error {
	if c.MicrophoneSampleRate <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidSampleRate, c.MicrophoneSampleRate)
	}
	return nil
}
