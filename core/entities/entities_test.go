package entities

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yob/home-energy/pubsub"
)

func nextEvent(t *testing.T, sub *pubsub.Subscription) pubsub.Event {
	t.Helper()
	select {
	case event := <-sub.Ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return pubsub.Event{}
}

func TestSensorsPublishStateUpdates(t *testing.T) {
	bus := pubsub.NewPubsub()
	go bus.Run()
	defer bus.Close()

	sub, err := bus.Subscribe("state:update")
	require.NoError(t, err)

	NewSensorGauge(bus, "sensor.temp").Update(21.34)
	NewSensorDecimal(bus, "sensor.cost", 4).Update(decimal.RequireFromString("1.5"))
	NewSensorDecimal(bus, "sensor.price", 2).Unavailable()
	tracker := NewDeviceTracker(bus, "device_tracker.unifi_phone")
	tracker.Update(true)
	tracker.Update(false)

	for _, want := range [][2]string{
		{"sensor.temp", "21.3"},
		{"sensor.cost", "1.5000"},
		{"sensor.price", "unavailable"},
		{"device_tracker.unifi_phone", "home"},
		{"device_tracker.unifi_phone", "not_home"},
	} {
		event := nextEvent(t, sub)
		assert.Equal(t, want[0], event.Key)
		assert.Equal(t, want[1], event.Value)
	}
}

func TestSensorDecimalTruncates(t *testing.T) {
	bus := pubsub.NewPubsub()
	go bus.Run()
	defer bus.Close()

	sub, err := bus.Subscribe("state:update")
	require.NoError(t, err)

	sensor := NewSensorDecimal(bus, "sensor.cost", 4)
	sensor.Update(decimal.RequireFromString("1.23456"))
	assert.Equal(t, "1.2345", nextEvent(t, sub).Value)

	sensor.Update(decimal.RequireFromString("-0.99999"))
	assert.Equal(t, "-0.9999", nextEvent(t, sub).Value)
}

func TestRegisterAndAvailability(t *testing.T) {
	bus := pubsub.NewPubsub()
	go bus.Run()
	defer bus.Close()

	subRegister, err := bus.Subscribe("entity:register")
	require.NoError(t, err)
	subAvailability, err := bus.Subscribe("entity:availability")
	require.NoError(t, err)

	Register(bus, pubsub.EntityData{ID: "sensor.cost", Name: "Cost", DeviceClass: "monetary"})
	SetAvailability(bus, "sensor.cost", true)

	registered := nextEvent(t, subRegister)
	assert.Equal(t, "sensor.cost", registered.Key)
	assert.Equal(t, "monetary", registered.Entity.DeviceClass)

	availability := nextEvent(t, subAvailability)
	assert.Equal(t, "sensor.cost", availability.Key)
	assert.Equal(t, AvailabilityOnline, availability.Value)
}

func TestComponentAndObjectID(t *testing.T) {
	assert.Equal(t, "device_tracker", Component("device_tracker.unifi_phone"))
	assert.Equal(t, "unifi_phone", ObjectID("device_tracker.unifi_phone"))
	assert.Equal(t, "sensor", Component("bare"))
	assert.Equal(t, "bare", ObjectID("bare"))
}
