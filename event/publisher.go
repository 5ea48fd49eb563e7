package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/lobbyd/log"
)

// Publisher includes multiple topics.
type Publisher struct {
	lock   sync.RWMutex
	topics map[string]*Topic
}

// NewPublisher returns a Publisher with the default topics created.
func NewPublisher() *Publisher {
	p := &Publisher{topics: make(map[string]*Topic)}
	_ = p.NewTopic(ReloadConfig, defaultTimeout)
	return p
}

// NewTopic must create a topic before you can initiate a subscription.
func (p *Publisher) NewTopic(topicName string, timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.topics[topicName]; ok {
		return fmt.Errorf("topic %s already create", topicName)
	}
	p.topics[topicName] = &Topic{
		timeout:     timeout,
		subscribers: []Subscriber{},
	}
	return nil
}

// RegisterSubscriber registers a subscriber.
func (p *Publisher) RegisterSubscriber(topicName string, fn Subscriber) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	topic, ok := p.topics[topicName]
	if !ok {
		return fmt.Errorf("topic %s not create", topicName)
	}

	topic.subscribers = append(topic.subscribers, fn)
	log.Debug().Str("topic", topicName).Int("num", len(topic.subscribers)).Msg("add subscribers")
	return nil
}

// Publish runs every subscriber of the topic concurrently and waits for them, up to the
// topic timeout. Subscribers still running after the timeout are left to finish alone.
func (p *Publisher) Publish(topicName string, i any) error {
	p.lock.RLock()
	topic, ok := p.topics[topicName]
	var subs []Subscriber
	if ok {
		subs = append(subs, topic.subscribers...)
	}
	p.lock.RUnlock()

	if !ok {
		return fmt.Errorf("topic:%s not create", topicName)
	}

	log.Info().Str("topic", topicName).Int("subscribers", len(subs)).Msg("publish event")

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub(i)
		}()
	}

	if topic.timeout <= 0 {
		wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(topic.timeout):
		log.Warn().Str("topic", topicName).Dur("timeout", topic.timeout).Msg("subscribers did not finish in time")
		return fmt.Errorf("topic:%s publish timeout after %v", topicName, topic.timeout)
	}
}
