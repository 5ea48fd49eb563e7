package event

import "time"

// Default topics.
const (
	// ReloadConfig carries a freshly loaded configuration to hot-reload subscribers.
	ReloadConfig = "ReloadConfig"
)

const defaultTimeout = 5 * time.Second

// Subscriber receives published values.
type Subscriber func(param any)

// Topic subscription list for a single topic.
type Topic struct {
	timeout     time.Duration
	subscribers []Subscriber
}
