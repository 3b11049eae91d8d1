package main

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/lanikai/strawberry/internal/errs"
)

// Config is the contents of strawberry.toml, per SPEC_FULL.md §6.
type Config struct {
	User  UserConfig  `toml:"user"`
	Voice VoiceConfig `toml:"voice"`
}

type UserConfig struct {
	Token string `toml:"token"`
}

type VoiceConfig struct {
	GuildID         string `toml:"guild_id"`
	ChannelID       string `toml:"channel_id"`
	PreferredRegion string `toml:"preferred_region"`
}

// LoadConfig reads and decodes the TOML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigError, err, "reading config file")
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.ConfigError, err, "parsing config file")
	}
	return &cfg, nil
}

// deriveUserID extracts the user id embedded in a user token: the first
// dot-separated segment, base64url-decoded and interpreted as UTF-8. Bot
// tokens (prefixed "Bot ") are rejected, since this client authenticates as
// a user, not an application.
func deriveUserID(token string) (string, error) {
	if strings.HasPrefix(token, "Bot ") {
		return "", errs.New(errs.ConfigError, "bot tokens are not supported")
	}

	seg := strings.SplitN(token, ".", 2)[0]
	if n := len(seg) % 4; n != 0 {
		seg += strings.Repeat("=", 4-n)
	}

	id, err := base64.URLEncoding.DecodeString(seg)
	if err != nil {
		return "", errs.Wrap(errs.ConfigError, err, "decoding user id from token")
	}
	return string(id), nil
}
