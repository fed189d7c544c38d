package timers

import (
	"time"

	"github.com/yob/home-energy/pubsub"
)

// Init publishes an every:minute event that anyone can listen to if they
// want to run code every minute. It returns when the scheduler is stopped.
func Init(bus *pubsub.Pubsub, scheduler *Scheduler) {
	publish := bus.PublishChannel()
	handle := scheduler.RunEvery(time.Minute, func() {
		publish <- pubsub.PubsubEvent{
			Topic: "every:minute",
			Data:  pubsub.NewValueEvent(time.Now().Format(time.RFC3339)),
		}
	})
	<-scheduler.Done()
	handle.Stop()
}
