package config

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags on the whole configuration tree.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// IsAdmin reports whether userID may run moderation commands.
// An empty admin list leaves the commands open to every sender.
func (c *BotConfig) IsAdmin(userID string) bool {
	if len(c.AdminIDs) == 0 {
		return true
	}
	return slices.Contains(c.AdminIDs, userID)
}
