package pubsub

import (
	"fmt"
	"sync"
	"time"
)

const (
	channelBufferSize = 512
)

type Pubsub struct {
	mu             sync.RWMutex
	subs           map[string][]*Subscription
	publishChannel chan PubsubEvent
	done           chan struct{}
	closed         bool
}

type PubsubEvent struct {
	Topic string
	Data  Event
}

// Event is the payload carried on the bus. Most events only use Key and
// Value, the other fields are populated for specific event types.
type Event struct {
	Type        string
	Key         string
	Value       string
	Previous    string
	At          time.Time
	Email       EmailData
	HttpRequest HttpRequestData
	Entity      EntityData
}

type EmailData struct {
	Subject string
	Body    string
}

type HttpRequestData struct {
	Body string
}

// EntityData describes an entity to be registered with the home automation
// hub.
type EntityData struct {
	ID                string
	Name              string
	DeviceClass       string
	UnitOfMeasurement string
	StateClass        string
}

type Subscription struct {
	Ch    <-chan Event
	ch    chan Event
	quit  chan struct{}
	topic string
	bus   *Pubsub
	once  sync.Once
}

func NewPubsub() *Pubsub {
	ps := &Pubsub{}
	ps.subs = make(map[string][]*Subscription)
	ps.publishChannel = make(chan PubsubEvent, channelBufferSize)
	ps.done = make(chan struct{})
	return ps
}

func NewKeyValueEvent(key string, value string) Event {
	return Event{Type: "key-value", Key: key, Value: value}
}

func NewValueEvent(value string) Event {
	return Event{Type: "value", Value: value}
}

func NewChangeEvent(key string, previous string, value string, at time.Time) Event {
	return Event{Type: "change", Key: key, Previous: previous, Value: value, At: at}
}

func NewEmailEvent(subject string, body string) Event {
	return Event{Type: "email", Email: EmailData{Subject: subject, Body: body}}
}

func NewHttpRequestEvent(reqUUID string, body string) Event {
	return Event{Type: "http-request", Key: reqUUID, HttpRequest: HttpRequestData{Body: body}}
}

func NewHttpResponseEvent(status int, body string, reqUUID string) Event {
	return Event{Type: "http-response", Key: fmt.Sprintf("%d", status), Value: body, Previous: reqUUID}
}

func NewEntityEvent(entity EntityData) Event {
	return Event{Type: "entity", Key: entity.ID, Entity: entity}
}

func (ps *Pubsub) Subscribe(topic string) (*Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, fmt.Errorf("pubsub: subscribe to %s on closed bus", topic)
	}

	ch := make(chan Event, channelBufferSize)
	sub := &Subscription{
		Ch:    ch,
		ch:    ch,
		quit:  make(chan struct{}),
		topic: topic,
		bus:   ps,
	}
	ps.subs[topic] = append(ps.subs[topic], sub)
	return sub, nil
}

func (ps *Pubsub) PublishChannel() chan PubsubEvent {
	return ps.publishChannel
}

func (ps *Pubsub) Publish(topic string, data Event) {
	ps.publishChannel <- PubsubEvent{Topic: topic, Data: data}
}

// Run shuffles events from the publish channel to subscribers until Close is
// called. Events for a topic reach each subscriber in publish order.
func (ps *Pubsub) Run() {
	for {
		select {
		case event := <-ps.publishChannel:
			ps.mu.RLock()
			if ps.closed {
				ps.mu.RUnlock()
				continue
			}
			for _, sub := range ps.subs[event.Topic] {
				select {
				case sub.ch <- event.Data:
				case <-sub.quit:
				}
			}
			ps.mu.RUnlock()
		case <-ps.done:
			return
		}
	}
}

func (ps *Pubsub) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.closed {
		ps.closed = true
		close(ps.done)
		for topic, subs := range ps.subs {
			for _, sub := range subs {
				sub.once.Do(func() {
					close(sub.quit)
				})
				close(sub.ch)
			}
			delete(ps.subs, topic)
		}
	}
}

// Close detaches the subscription from the bus. Ch is closed once the bus
// has let go of it, so ranging over Ch terminates.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		close(sub.quit)
		go sub.bus.unsubscribe(sub)
	})
}

func (ps *Pubsub) unsubscribe(sub *Subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subs[sub.topic]
	for i, s := range subs {
		if s == sub {
			ps.subs[sub.topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
