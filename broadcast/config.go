package broadcast

import "fmt"

// Config paces listing fan-out.
type Config struct {
	// ListingQPS caps listing records sent per second across all recipients. Zero disables
	// pacing.
	ListingQPS int `mapstructure:"listingQPS"`
}

// DefaultConfig returns the broadcast defaults.
func DefaultConfig() *Config {
	return &Config{ListingQPS: 5000}
}

// GetName returns the configuration key for the broadcast settings.
func (c *Config) GetName() string {
	return "broadcast"
}

// Validate rejects negative rates.
func (c *Config) Validate() error {
	if c.ListingQPS < 0 {
		return fmt.Errorf("listingQPS must not be negative, got %d", c.ListingQPS)
	}
	return nil
}
