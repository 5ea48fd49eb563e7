package session

import "errors"

// Config controls per-connection buffering.
type Config struct {
	// RecvChunkSize is the size of each pooled read buffer.
	RecvChunkSize int `mapstructure:"recvChunkSize"`
	// MaxBufferSize bounds the bytes of one record still being received; a larger pending
	// record is treated as malformed.
	MaxBufferSize int `mapstructure:"maxBufferSize"`
	// MailboxSize is the number of decoded records that may wait for dispatch before the
	// read loop blocks.
	MailboxSize int `mapstructure:"mailboxSize"`
	// SendQueueSize is the number of encoded records that may wait for the socket.
	SendQueueSize int `mapstructure:"sendQueueSize"`
	// WriteTimeoutSec bounds each socket write when the connection supports deadlines;
	// 0 disables it.
	WriteTimeoutSec int `mapstructure:"writeTimeoutSec"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() *Config {
	return &Config{
		RecvChunkSize: 4096,
		MaxBufferSize: 1 << 20,
		MailboxSize:   64,
		SendQueueSize: 256,
	}
}

// GetName returns the configuration key.
func (c *Config) GetName() string {
	return "session"
}

// Validate fills zero values with defaults and rejects negative ones.
func (c *Config) Validate() error {
	if c.RecvChunkSize < 0 || c.MaxBufferSize < 0 || c.MailboxSize < 0 || c.SendQueueSize < 0 || c.WriteTimeoutSec < 0 {
		return errors.New("session sizes and timeouts cannot be negative")
	}
	def := DefaultConfig()
	if c.RecvChunkSize == 0 {
		c.RecvChunkSize = def.RecvChunkSize
	}
	if c.MaxBufferSize == 0 {
		c.MaxBufferSize = def.MaxBufferSize
	}
	if c.MailboxSize == 0 {
		c.MailboxSize = def.MailboxSize
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.MaxBufferSize < c.RecvChunkSize {
		return errors.New("maxBufferSize must be at least recvChunkSize")
	}
	return nil
}
