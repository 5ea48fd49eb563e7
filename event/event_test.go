package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTopic(t *testing.T) {
	p := NewPublisher()
	_, ok := p.topics[ReloadConfig]
	assert.True(t, ok, "default topics exist")

	assert.NoError(t, p.NewTopic("lobby", time.Second))
	assert.Error(t, p.NewTopic("lobby", time.Second), "duplicate topic")
	assert.Error(t, p.NewTopic(ReloadConfig, time.Second))
}

func TestRegisterSubscriber(t *testing.T) {
	p := NewPublisher()

	err := p.RegisterSubscriber("missing", func(any) {})
	assert.Error(t, err)

	assert.NoError(t, p.RegisterSubscriber(ReloadConfig, func(any) {}))
	assert.Len(t, p.topics[ReloadConfig].subscribers, 1)
}

func TestPublish(t *testing.T) {
	p := NewPublisher()
	assert.Error(t, p.Publish("missing", 1))

	var mu sync.Mutex
	received := map[int]string{}
	for i := range 3 {
		_ = p.RegisterSubscriber(ReloadConfig, func(param any) {
			mu.Lock()
			received[i] = param.(string)
			mu.Unlock()
		})
	}

	assert.NoError(t, p.Publish(ReloadConfig, "cfg"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[int]string{0: "cfg", 1: "cfg", 2: "cfg"}, received)
}

func TestPublishTimeout(t *testing.T) {
	p := NewPublisher()
	_ = p.NewTopic("slow", 20*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	_ = p.RegisterSubscriber("slow", func(any) { <-release })

	start := time.Now()
	err := p.Publish("slow", nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
