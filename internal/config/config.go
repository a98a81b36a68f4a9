// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	DiscordBotToken string
	DatabasePath    string
	LogLevel        string
	CommandPrefix   string
	OwnerIDs        []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	prefix := os.Getenv("COMMAND_PREFIX")
	if prefix == "" {
		prefix = "-"
	}

	var ownerIDs []int64
	if raw := os.Getenv("OWNER_IDS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in OWNER_IDS: %w", s, err)
			}
			ownerIDs = append(ownerIDs, uid)
		}
	}

	return &Config{
		DiscordBotToken: token,
		DatabasePath:    dbPath,
		LogLevel:        logLevel,
		CommandPrefix:   prefix,
		OwnerIDs:        ownerIDs,
	}, nil
}

// IsOwner checks whether a user ID is in the owner list.
// Returns false if the list is empty: admin commands stay locked
// until at least one owner is configured.
func (c *Config) IsOwner(userID int64) bool {
	for _, id := range c.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}
