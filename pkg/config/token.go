package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "slack-exporter"
	keyringUser    = "slack_bot_token"
)

// Token returns the configured bot token, falling back to the OS keyring when
// enabled. An empty result means no token is available.
func (c *Config) Token() (string, error) {
	if c.SlackBotToken != "" || !c.Keyring.Enabled {
		return c.SlackBotToken, nil
	}
	token, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return token, nil
}

// SetToken stores the bot token in the OS keyring.
func SetToken(token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("store in keyring: %w", err)
	}
	return nil
}

// DeleteToken removes the bot token from the OS keyring.
func DeleteToken() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete from keyring: %w", err)
	}
	return nil
}

// MaskToken hides all but the token type and the last four characters.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "****"
	}
	return token[:5] + "****" + token[len(token)-4:]
}
