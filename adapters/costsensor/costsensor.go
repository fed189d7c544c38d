package costsensor

import (
	"fmt"
	"sync"
	"time"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/costs"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/statebus"
	"github.com/yob/home-energy/core/timers"
	"github.com/yob/home-energy/pubsub"
)

const (
	costPlaces = 4
	costUnit   = "kr"

	// How long a sensor without a stored cost waits for the hub to echo
	// the last published one before starting from zero.
	persistedWait = 10 * time.Second
)

type configData struct {
	name     string
	uniqueID string
	tariffID string
	energyID string
	reset    costs.ResetSchedule
}

type sensor struct {
	bus    *pubsub.Pubsub
	logger *logging.Logger
	config configData
	tariff *costs.Tariff
	acc    *costs.Accumulator
	cost   *entities.SensorDecimal
}

// Init runs one cost sensor per [[cost_sensors]] entry. A broken entry is
// logged and skipped, the others keep running.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, configSections []*conf.ConfigSection) {
	var wg sync.WaitGroup

	for _, section := range configSections {
		config, err := newConfigFromSection(section)
		if err != nil {
			logger.Fatal(fmt.Sprintf("costsensor: %v", err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runSensor(bus, logger, state, scheduler, config, persistedWait); err != nil {
				logger.Fatal(fmt.Sprintf("costsensor: %s: %v", config.uniqueID, err))
			}
		}()
	}

	wg.Wait()
}

func runSensor(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, config configData, wait time.Duration) error {
	subPersisted, err := bus.Subscribe(statebus.ChangedTopic(config.uniqueID))
	if err != nil {
		return err
	}
	defer subPersisted.Close()

	subTariff, err := bus.Subscribe(statebus.ChangedTopic(config.tariffID))
	if err != nil {
		return err
	}
	defer subTariff.Close()

	subEnergy, err := bus.Subscribe(statebus.ChangedTopic(config.energyID))
	if err != nil {
		return err
	}
	defer subEnergy.Close()

	// nothing is published until the stored cost is known, samples queue
	// up on the subscriptions meanwhile
	awaitPersisted(logger, state, config.uniqueID, subPersisted.Ch, wait)
	subPersisted.Close()

	s := newSensor(bus, logger, state, config)
	s.register()

	if spec := config.reset.CronSpec(); spec != "" {
		handle, err := scheduler.ScheduleRecurring(spec, s.reset)
		if err != nil {
			return err
		}
		defer handle.Stop()
	}

	s.run(subTariff.Ch, subEnergy.Ch)
	return nil
}

// awaitPersisted returns once state holds a value for id, a change of id is
// seen on changes, or wait has passed.
func awaitPersisted(logger *logging.Logger, state homestate.StateReader, id string, changes <-chan pubsub.Event, wait time.Duration) {
	if _, ok := state.Read(id); ok {
		return
	}

	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	select {
	case <-changes:
	case <-timeout.C:
		logger.Info(fmt.Sprintf("costsensor: %s has no stored cost after %s", id, wait))
	}
}

func newSensor(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, config configData) *sensor {
	s := &sensor{
		bus:    bus,
		logger: logger,
		config: config,
		tariff: costs.NewTariff(),
		cost:   entities.NewSensorDecimal(bus, config.uniqueID, costPlaces),
	}

	if value, ok := state.Read(config.tariffID); ok {
		if err := s.tariff.SetState(value); err != nil {
			logger.Warn(fmt.Sprintf("costsensor: %s has no usable tariff yet (%v)", config.uniqueID, err))
		}
	}

	value, ok := state.Read(config.uniqueID)
	initial := costs.InitialCost(value, ok)
	logger.Info(fmt.Sprintf("costsensor: %s starting from %s", config.uniqueID, initial.StringFixed(costPlaces)))

	s.acc = costs.NewAccumulator(initial, s.tariff, s.cost.Update)
	return s
}

func (s *sensor) register() {
	entities.Register(s.bus, pubsub.EntityData{
		ID:                s.config.uniqueID,
		Name:              s.config.name,
		DeviceClass:       "monetary",
		UnitOfMeasurement: costUnit,
		StateClass:        "total",
	})
	entities.SetAvailability(s.bus, s.config.uniqueID, true)
	s.cost.Update(s.acc.Cost())
}

// run handles tariff and energy changes one at a time, in arrival order per
// source. It returns once either subscription is closed.
func (s *sensor) run(tariffs <-chan pubsub.Event, energy <-chan pubsub.Event) {
	for {
		select {
		case event, ok := <-tariffs:
			if !ok {
				return
			}
			s.tariffChanged(event.Value)
		case event, ok := <-energy:
			if !ok {
				return
			}
			s.energyChanged(event.At, event.Value)
		}
	}
}

func (s *sensor) tariffChanged(value string) {
	if err := s.tariff.SetState(value); err != nil {
		s.logger.Warn(fmt.Sprintf("costsensor: %s ignoring tariff %q from %s", s.config.uniqueID, value, s.config.tariffID))
		return
	}
	s.logger.Debug(fmt.Sprintf("costsensor: %s tariff is now %s", s.config.uniqueID, value))
}

func (s *sensor) energyChanged(at time.Time, value string) {
	if at.IsZero() {
		at = time.Now()
	}
	result, err := s.acc.ApplyState(at, value)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("costsensor: %s ignoring reading (%v)", s.config.uniqueID, err))
		return
	}

	switch result.Outcome {
	case costs.Baseline:
		s.logger.Debug(fmt.Sprintf("costsensor: %s baseline reading %s", s.config.uniqueID, value))
	case costs.Spike:
		s.logger.Warn(fmt.Sprintf("costsensor: %s ignoring spike of %s after %s", s.config.uniqueID, result.Delta, result.Elapsed))
	case costs.NoTariff:
		s.logger.Warn(fmt.Sprintf("costsensor: %s has no tariff, %s consumed without cost", s.config.uniqueID, result.Delta))
	case costs.Accepted:
		s.logger.Debug(fmt.Sprintf("costsensor: %s added %s x %s, total %s", s.config.uniqueID, result.Delta, result.Tariff, result.Cost.StringFixed(costPlaces)))
	}
}

func (s *sensor) reset() {
	s.acc.Reset()
	s.logger.Info(fmt.Sprintf("costsensor: %s reset (%s)", s.config.uniqueID, s.config.reset))
}

func newConfigFromSection(configSection *conf.ConfigSection) (configData, error) {
	config := configData{}
	fields := []struct {
		key    string
		target *string
	}{
		{"name", &config.name},
		{"unique_id", &config.uniqueID},
		{"tariff", &config.tariffID},
		{"energy", &config.energyID},
	}
	for _, field := range fields {
		value, err := configSection.GetString(field.key)
		if err != nil || value == "" {
			return configData{}, fmt.Errorf("%s not found in config", field.key)
		}
		*field.target = value
	}

	reset, err := costs.ParseResetSchedule(configSection.GetStringDefault("cron", ""))
	if err != nil {
		return configData{}, fmt.Errorf("%s: %w", config.uniqueID, err)
	}
	config.reset = reset
	return config, nil
}
