package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/memorystate"
	"github.com/yob/home-energy/pubsub"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func testConfig() priceAlertConfig {
	return priceAlertConfig{
		sensorID:  "sensor.strompris_nordpool_no2",
		threshold: 3.0,
		cooldown:  12 * time.Hour,
	}
}

func newTestRule(t *testing.T, state *memorystate.State) (*priceAlert, *pubsub.Subscription, *pubsub.Subscription) {
	t.Helper()
	bus := pubsub.NewPubsub()
	go bus.Run()
	t.Cleanup(bus.Close)

	emails, err := bus.Subscribe("email:send")
	require.NoError(t, err)
	updates, err := bus.Subscribe("state:update")
	require.NoError(t, err)

	return newPriceAlert(bus.PublishChannel(), logging.NewLogger(bus), state, testConfig()), emails, updates
}

func TestPriceAlertRespectsThresholdAndCooldown(t *testing.T) {
	rule, emails, updates := newTestRule(t, memorystate.New())

	assert.False(t, rule.priceChanged("2.99", t0))
	assert.False(t, rule.priceChanged("3.00", t0))
	assert.False(t, rule.priceChanged("unavailable", t0))

	assert.True(t, rule.priceChanged("3.50", t0))
	select {
	case event := <-emails.Ch:
		assert.Equal(t, "email", event.Type)
		assert.Contains(t, event.Email.Subject, "3.50")
	case <-time.After(time.Second):
		t.Fatal("no email sent")
	}
	select {
	case event := <-updates.Ch:
		assert.Equal(t, priceAlertLastAtKey, event.Key)
		assert.Equal(t, "2025-03-14T18:00:00Z", event.Value)
	case <-time.After(time.Second):
		t.Fatal("last alert time not stored")
	}

	assert.False(t, rule.priceChanged("4.00", t0.Add(11*time.Hour)))
	assert.True(t, rule.priceChanged("4.00", t0.Add(12*time.Hour)))
}

func TestPriceAlertCooldownSurvivesRestart(t *testing.T) {
	state := memorystate.New()
	require.NoError(t, state.Store(priceAlertLastAtKey, t0.Format(time.RFC3339)))

	rule, _, _ := newTestRule(t, state)
	assert.False(t, rule.priceChanged("5.00", t0.Add(time.Hour)))
	assert.True(t, rule.priceChanged("5.00", t0.Add(13*time.Hour)))
}

func TestNewConfigFromSection(t *testing.T) {
	file, err := conf.NewConfigFromString(`
[price_alert]
sensor_id = "sensor.strompris_nordpool_no2"
threshold = 3

[broken]
sensor_id = "sensor.strompris_nordpool_no2"
`)
	require.NoError(t, err)

	section, err := file.Section("price_alert")
	require.NoError(t, err)
	config, err := newConfigFromSection(section)
	require.NoError(t, err)
	assert.Equal(t, 3.0, config.threshold)
	assert.Equal(t, 12*time.Hour, config.cooldown)

	section, err = file.Section("broken")
	require.NoError(t, err)
	_, err = newConfigFromSection(section)
	assert.Error(t, err)
}
