package statebus

import (
	"fmt"
	"time"

	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

// Init applies state:update events to the shared state. Every change is
// republished on state:changed:<key> and state:changed, carrying the old
// value, the new value and the time of the change.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.State) {
	subUpdate, _ := bus.Subscribe("state:update")
	defer subUpdate.Close()

	run(subUpdate.Ch, bus.PublishChannel(), logger, state, time.Now)
}

func run(updates <-chan pubsub.Event, publish chan pubsub.PubsubEvent, logger *logging.Logger, state homestate.State, now func() time.Time) {
	for event := range updates {
		stateUpdate(publish, logger, state, event.Key, event.Value, now())
	}
}

func stateUpdate(publish chan pubsub.PubsubEvent, logger *logging.Logger, state homestate.State, property string, value string, at time.Time) {
	existingValue, ok := state.Read(property)

	// if the property doesn't exist in the state yet, or it exists with a different value, then update it
	if ok && existingValue == value {
		return
	}
	if err := state.Store(property, value); err != nil {
		logger.Error(fmt.Sprintf("statebus: failed to store %s (%v)", property, err))
		return
	}
	logger.Debug(fmt.Sprintf("set %s to %s", property, value))

	change := pubsub.NewChangeEvent(property, existingValue, value, at)
	publish <- pubsub.PubsubEvent{Topic: ChangedTopic(property), Data: change}
	publish <- pubsub.PubsubEvent{Topic: "state:changed", Data: change}
}

// ChangedTopic is the topic carrying changes of a single entity.
func ChangedTopic(key string) string {
	return "state:changed:" + key
}
