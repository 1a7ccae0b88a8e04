package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Show writes the effective configuration as YAML with the token masked.
func (c *Config) Show(w io.Writer) error {
	masked := *c
	masked.SlackBotToken = MaskToken(c.SlackBotToken)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(masked); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
