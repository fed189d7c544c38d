package hassmqtt

import (
	"fmt"
	"sync"

	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

type bridge struct {
	bus    *pubsub.Pubsub
	logger *logging.Logger
	client Client
	config Config

	mu      sync.Mutex
	owned   map[string]pubsub.EntityData
	pending map[string]string
}

// Init runs the bridge until the bus is closed.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, client Client, config Config) {
	b := &bridge{
		bus:     bus,
		logger:  logger,
		client:  client,
		config:  config,
		owned:   make(map[string]pubsub.EntityData),
		pending: make(map[string]string),
	}

	subRegister, _ := bus.Subscribe("entity:register")
	defer subRegister.Close()
	subAvailability, _ := bus.Subscribe("entity:availability")
	defer subAvailability.Close()
	subChanged, _ := bus.Subscribe("state:changed")
	defer subChanged.Close()

	if err := client.Publish(config.BridgeAvailabilityTopic(), 1, true, []byte(entities.AvailabilityOnline)); err != nil {
		logger.Error(fmt.Sprintf("hassmqtt: failed to publish bridge availability (%v)", err))
	}
	if err := client.Subscribe(config.statestreamFilter(), 0, b.ingest); err != nil {
		logger.Error(fmt.Sprintf("hassmqtt: failed to subscribe to statestream (%v)", err))
	}

	for {
		select {
		case event, ok := <-subRegister.Ch:
			if !ok {
				return
			}
			b.register(event.Entity)
		case event, ok := <-subAvailability.Ch:
			if !ok {
				return
			}
			b.publish(b.config.AvailabilityTopic(event.Key), event.Value)
		case event, ok := <-subChanged.Ch:
			if !ok {
				return
			}
			b.stateChanged(event.Key, event.Value)
		}
	}
}

func (b *bridge) register(entity pubsub.EntityData) {
	payload, err := b.config.DiscoveryPayload(entity)
	if err != nil {
		b.logger.Error(fmt.Sprintf("hassmqtt: failed to build discovery config for %s (%v)", entity.ID, err))
		return
	}
	b.publish(b.config.DiscoveryTopic(entity.ID), string(payload))
	b.logger.Info(fmt.Sprintf("hassmqtt: registered %s", entity.ID))

	b.mu.Lock()
	b.owned[entity.ID] = entity
	value, hasPending := b.pending[entity.ID]
	delete(b.pending, entity.ID)
	b.mu.Unlock()

	if hasPending {
		b.publish(b.config.StateTopic(entity.ID), value)
	}
}

// stateChanged publishes states of owned entities. Changes that arrive
// before the entity is registered are held until it is.
func (b *bridge) stateChanged(id string, value string) {
	b.mu.Lock()
	_, owned := b.owned[id]
	if !owned {
		b.pending[id] = value
	}
	b.mu.Unlock()

	if owned {
		b.publish(b.config.StateTopic(id), value)
	}
}

// ingest turns statestream messages for hub owned entities into
// state:update events. Echoes of our own entities are ignored.
func (b *bridge) ingest(topic string, payload []byte) {
	id, ok := b.config.statestreamKey(topic)
	if !ok {
		return
	}

	b.mu.Lock()
	_, owned := b.owned[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if owned {
		return
	}

	b.bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "state:update",
		Data:  pubsub.NewKeyValueEvent(id, string(payload)),
	}
}

func (b *bridge) publish(topic string, value string) {
	if err := b.client.Publish(topic, 1, true, []byte(value)); err != nil {
		b.logger.Error(fmt.Sprintf("hassmqtt: failed to publish to %s (%v)", topic, err))
	}
}
