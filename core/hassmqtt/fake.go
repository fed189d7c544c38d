package hassmqtt

import (
	"strings"
	"sync"
)

// Message is a publish recorded by FakeClient.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  string
}

// FakeClient records publishes for test assertions.
type FakeClient struct {
	mu       sync.Mutex
	messages []Message
	handlers map[string]func(topic string, payload []byte)

	// PublishError, if set, will be returned by Publish.
	PublishError error

	Closed bool
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		handlers: make(map[string]func(topic string, payload []byte)),
	}
}

func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, Message{Topic: topic, QoS: qos, Retained: retained, Payload: string(payload)})
	return nil
}

func (f *FakeClient) Subscribe(filter string, qos byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[filter] = handler
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Messages returns a copy of everything published so far.
func (f *FakeClient) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Last returns the most recent payload published to topic.
func (f *FakeClient) Last(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Topic == topic {
			return f.messages[i].Payload, true
		}
	}
	return "", false
}

// Deliver hands an incoming message to every handler whose filter matches.
func (f *FakeClient) Deliver(topic string, payload string) {
	f.mu.Lock()
	var matched []func(string, []byte)
	for filter, handler := range f.handlers {
		if topicMatches(filter, topic) {
			matched = append(matched, handler)
		}
	}
	f.mu.Unlock()

	for _, handler := range matched {
		handler(topic, []byte(payload))
	}
}

func topicMatches(filter string, topic string) bool {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(filterParts) == len(topicParts)
}
