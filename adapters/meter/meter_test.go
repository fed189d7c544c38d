package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

func newTestMeters(t *testing.T) (*pubsub.Pubsub, map[string]meter, *pubsub.Subscription) {
	t.Helper()
	bus := pubsub.NewPubsub()
	go bus.Run()
	t.Cleanup(bus.Close)

	updates, err := bus.Subscribe("state:update")
	require.NoError(t, err)
	return bus, map[string]meter{"aa:bb:cc": newMeter(bus, "kitchen")}, updates
}

func collect(sub *pubsub.Subscription) map[string]string {
	seen := make(map[string]string)
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case event := <-sub.Ch:
			seen[event.Key] = event.Value
		case <-timeout:
			return seen
		}
	}
}

func TestHandleRequestPublishesReadings(t *testing.T) {
	bus, meters, updates := newTestMeters(t)

	err := handleRequest(logging.NewLogger(bus), meters, `{"device": {"address": "AA:BB:CC"}, "sensors": {"energy_kwh": 1234.567, "power_w": 430}}`)
	require.NoError(t, err)

	seen := collect(updates)
	assert.Equal(t, "1234.567", seen["sensor.kitchen_energy"])
	assert.Equal(t, "430.0", seen["sensor.kitchen_power"])
}

func TestHandleRequestRejectsBadBodies(t *testing.T) {
	bus, meters, updates := newTestMeters(t)
	logger := logging.NewLogger(bus)

	assert.Error(t, handleRequest(logger, meters, `{"device": `))
	assert.Error(t, handleRequest(logger, meters, `{"device": {"address": "aa:bb:cc"}, "sensors": {"energy_kwh": "lots"}}`))
	assert.Error(t, handleRequest(logger, meters, `{"device": {"address": "aa:bb:cc"}, "sensors": {}}`))
	assert.NoError(t, handleRequest(logger, meters, `{"device": {"address": "11:22:33"}, "sensors": {"energy_kwh": 1}}`))

	assert.Empty(t, collect(updates))
}

func TestNewConfigFromSection(t *testing.T) {
	file, err := conf.NewConfigFromString(`
[meter]
[meter.names]
"AA:BB:CC" = "kitchen"

[broken]
path = "meter"
[broken.names]
"aa:bb:cc" = "kitchen"
`)
	require.NoError(t, err)

	section, err := file.Section("meter")
	require.NoError(t, err)
	config, err := newConfigFromSection(section)
	require.NoError(t, err)
	assert.Equal(t, "/meter", config.path)
	assert.Equal(t, map[string]string{"aa:bb:cc": "kitchen"}, config.names)

	section, err = file.Section("broken")
	require.NoError(t, err)
	_, err = newConfigFromSection(section)
	assert.Error(t, err)
}
