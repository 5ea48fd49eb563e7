package lobby

import "fmt"

const (
	defaultMaxChatMessages = 100
	defaultMaxPlayers      = 8
)

// Config holds the lobby limits.
type Config struct {
	// MaxChatMessages bounds every lobby's chat backlog; the oldest lines go first.
	MaxChatMessages int `mapstructure:"maxChatMessages"`
	// DefaultMaxPlayers applies when the settings blob carries no positive max_players.
	DefaultMaxPlayers int `mapstructure:"defaultMaxPlayers"`
}

// DefaultConfig returns the lobby defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxChatMessages:   defaultMaxChatMessages,
		DefaultMaxPlayers: defaultMaxPlayers,
	}
}

// GetName returns the configuration key for the lobby settings.
func (c *Config) GetName() string {
	return "lobby"
}

// Validate fills zero values with defaults and rejects negative limits.
func (c *Config) Validate() error {
	if c.MaxChatMessages < 0 || c.DefaultMaxPlayers < 0 {
		return fmt.Errorf("lobby limits must not be negative: maxChatMessages=%d defaultMaxPlayers=%d",
			c.MaxChatMessages, c.DefaultMaxPlayers)
	}
	if c.MaxChatMessages == 0 {
		c.MaxChatMessages = defaultMaxChatMessages
	}
	if c.DefaultMaxPlayers == 0 {
		c.DefaultMaxPlayers = defaultMaxPlayers
	}
	return nil
}
