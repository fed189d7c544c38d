package datadog

import (
	"context"
	"errors"
	"testing"
	"time"

	datadog "github.com/DataDog/datadog-api-client-go/api/v1/datadog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/memorystate"
	"github.com/yob/home-energy/pubsub"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	bus := pubsub.NewPubsub()
	go bus.Run()
	t.Cleanup(bus.Close)
	return logging.NewLogger(bus)
}

func TestReadGaugesSkipsMissingAndNonNumeric(t *testing.T) {
	state := memorystate.New()
	require.NoError(t, state.Store("sensor.strompris_nordpool_no2", "1.25"))
	require.NoError(t, state.Store("sensor.kitchen_energy_cost", "unavailable"))

	gauges := readGauges(newTestLogger(t), state, []string{
		"sensor.strompris_nordpool_no2",
		"sensor.kitchen_energy_cost",
		"sensor.unifi_default_devices",
	})

	assert.Equal(t, []gauge{{name: "sensor.strompris_nordpool_no2", value: 1.25}}, gauges)
}

func TestProcessEventSubmitsOnePayload(t *testing.T) {
	state := memorystate.New()
	require.NoError(t, state.Store("sensor.strompris_nordpool_no2", "1.25"))
	require.NoError(t, state.Store("sensor.unifi_default_devices", "7"))

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	var bodies []datadog.MetricsPayload
	submit := func(ctx context.Context, body datadog.MetricsPayload) error {
		bodies = append(bodies, body)
		return nil
	}

	processEvent(newTestLogger(t), state, []string{"sensor.strompris_nordpool_no2", "sensor.unifi_default_devices"}, submit, now)

	require.Len(t, bodies, 1)
	require.Len(t, bodies[0].Series, 2)
	assert.Equal(t, "sensor.unifi_default_devices", bodies[0].Series[1].Metric)
	assert.Equal(t, [][]float64{{float64(now.Unix()), 7}}, bodies[0].Series[1].Points)
}

func TestProcessEventWithoutValuesSubmitsNothing(t *testing.T) {
	called := false
	submit := func(ctx context.Context, body datadog.MetricsPayload) error {
		called = true
		return errors.New("should not be called")
	}

	processEvent(newTestLogger(t), memorystate.New(), []string{"sensor.missing"}, submit, time.Now())
	assert.False(t, called)
}
