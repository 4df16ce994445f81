package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultSystemInstruction = `Think of me as your thoughtful friend. When you ask me something, I'll take my time to really consider it and explore it from different angles.

If I'm unsure, we'll work through it together step by step, and if something isn't possible I'll let you know gently.
`

// Persona holds the copy and sampling settings that shape the assistant.
// The server reads SystemInstruction and Generation; the client reads the greetings.
type Persona struct {
	SystemInstruction string           `yaml:"system_instruction"`
	Greeting          string           `yaml:"greeting"`
	ResetGreeting     string           `yaml:"reset_greeting"`
	Generation        GenerationConfig `yaml:"generation"`
}

// GenerationConfig is fixed at startup and applied to every completion.
type GenerationConfig struct {
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	TopK            int32   `yaml:"top_k"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

func DefaultPersona() Persona {
	return Persona{
		SystemInstruction: defaultSystemInstruction,
		Greeting:          "Hey there! I'm Gemini, your AI assistant. How can I help you today?",
		ResetGreeting:     "Chat cleared! How can I help you with something new?",
		Generation: GenerationConfig{
			Temperature:     0.9,
			TopP:            0.9,
			TopK:            10,
			MaxOutputTokens: 2000,
		},
	}
}

// LoadPersona reads a YAML persona file on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read persona file: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return DefaultPersona(), fmt.Errorf("failed to parse persona file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return DefaultPersona(), err
	}

	return p, nil
}

func (p Persona) Validate() error {
	if strings.TrimSpace(p.SystemInstruction) == "" {
		return fmt.Errorf("persona: system_instruction must not be empty")
	}
	if strings.TrimSpace(p.Greeting) == "" || strings.TrimSpace(p.ResetGreeting) == "" {
		return fmt.Errorf("persona: greeting and reset_greeting must not be empty")
	}

	g := p.Generation
	switch {
	case g.Temperature < 0 || g.Temperature > 2:
		return fmt.Errorf("persona: temperature %.2f out of range [0, 2]", g.Temperature)
	case g.TopP <= 0 || g.TopP > 1:
		return fmt.Errorf("persona: top_p %.2f out of range (0, 1]", g.TopP)
	case g.TopK < 1:
		return fmt.Errorf("persona: top_k must be at least 1")
	case g.MaxOutputTokens < 1:
		return fmt.Errorf("persona: max_output_tokens must be at least 1")
	}
	return nil
}
