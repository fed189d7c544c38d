package datadog

import (
	"context"
	"fmt"
	"os"
	"time"

	datadog "github.com/DataDog/datadog-api-client-go/api/v1/datadog"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

const (
	submitTimeout = 30 * time.Second
)

type gauge struct {
	name  string
	value float64
}

type submitFunc func(ctx context.Context, body datadog.MetricsPayload) error

// Init submits the configured state keys to datadog as gauges once a minute.
// Keys holding non numeric values, e.g. "unavailable", are skipped.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, configSection *conf.ConfigSection) {
	interestingKeys, err := configSection.GetStringSlice("keys")
	if err != nil {
		logger.Fatal(fmt.Sprintf("datadog: %v", err))
		return
	}
	if os.Getenv("DD_API_KEY") == "" {
		logger.Fatal("datadog: env var DD_API_KEY must be set for metrics to be submitted to datadog")
		return
	}
	if os.Getenv("DD_APP_KEY") == "" {
		logger.Fatal("datadog: env var DD_APP_KEY must be set for metrics to be submitted to datadog")
		return
	}

	apiClient := datadog.NewAPIClient(datadog.NewConfiguration())
	submit := func(ctx context.Context, body datadog.MetricsPayload) error {
		_, r, err := apiClient.MetricsApi.SubmitMetrics(datadog.NewDefaultContext(ctx), body)
		if err != nil {
			return fmt.Errorf("%w (response: %v)", err, r)
		}
		return nil
	}

	sub, _ := bus.Subscribe("every:minute")
	defer sub.Close()

	for range sub.Ch {
		processEvent(logger, state, interestingKeys, submit, time.Now())
	}
}

func processEvent(logger *logging.Logger, state homestate.StateReader, interestingKeys []string, submit submitFunc, now time.Time) {
	gauges := readGauges(logger, state, interestingKeys)
	if len(gauges) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if err := submit(ctx, newPayload(gauges, now)); err != nil {
		logger.Error(fmt.Sprintf("datadog: Error when calling `MetricsApi.SubmitMetrics`: %v", err))
		return
	}
	for _, g := range gauges {
		logger.Debug(fmt.Sprintf("datadog: Wrote MetricsApi.SubmitMetrics: %s %v", g.name, g.value))
	}
}

func readGauges(logger *logging.Logger, state homestate.StateReader, interestingKeys []string) []gauge {
	gauges := make([]gauge, 0, len(interestingKeys))
	for _, stateKey := range interestingKeys {
		value, ok := state.ReadFloat64(stateKey)
		if !ok {
			logger.Debug(fmt.Sprintf("datadog: failed to read %s from state", stateKey))
			continue
		}
		gauges = append(gauges, gauge{name: stateKey, value: value})
	}
	return gauges
}

func newPayload(gauges []gauge, now time.Time) datadog.MetricsPayload {
	nowEpoch := float64(now.Unix())
	series := make([]datadog.Series, 0, len(gauges))
	for _, g := range gauges {
		series = append(series, *datadog.NewSeries(g.name, [][]float64{{nowEpoch, g.value}}))
	}
	return *datadog.NewMetricsPayload(series)
}
