package tariff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

const (
	tariffPlaces = 4
)

type configData struct {
	sensorID  string
	name      string
	unit      string
	loc       *time.Location
	peakStart int
	peakEnd   int
	peak      decimal.Decimal
	offpeak   decimal.Decimal
}

// priceAt is the peak price from peakStart up to, but not including,
// peakEnd, and the off-peak price otherwise.
func (c configData) priceAt(t time.Time) (decimal.Decimal, bool) {
	hour := t.In(c.loc).Hour()
	if hour >= c.peakStart && hour < c.peakEnd {
		return c.peak, true
	}
	return c.offpeak, false
}

// Init publishes the grid tariff per kWh every minute. The sensor can be
// used as the tariff of a cost sensor.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("tariff: %v", err))
		return
	}

	sensor := entities.NewSensorDecimal(bus, config.sensorID, tariffPlaces)
	entities.Register(bus, pubsub.EntityData{
		ID:                config.sensorID,
		Name:              config.name,
		DeviceClass:       "monetary",
		UnitOfMeasurement: config.unit,
		StateClass:        "measurement",
	})
	entities.SetAvailability(bus, config.sensorID, true)

	sub, _ := bus.Subscribe("every:minute")
	defer sub.Close()

	update(logger, sensor, config, time.Now())
	for range sub.Ch {
		update(logger, sensor, config, time.Now())
	}
}

func update(logger *logging.Logger, sensor *entities.SensorDecimal, config configData, now time.Time) {
	price, peak := config.priceAt(now)
	if peak {
		logger.Debug("tariff: setting price to peak")
	} else {
		logger.Debug(fmt.Sprintf("tariff: setting price to offpeak (hour: %d)", now.In(config.loc).Hour()))
	}
	sensor.Update(price)
}

func newConfigFromSection(configSection *conf.ConfigSection) (configData, error) {
	loc, err := time.LoadLocation(configSection.GetStringDefault("timezone", "Europe/Oslo"))
	if err != nil {
		return configData{}, fmt.Errorf("failed to load timezone: %v", err)
	}

	peak, err := configSection.GetFloat64("peak_per_kwh")
	if err != nil {
		return configData{}, fmt.Errorf("peak_per_kwh not found in config")
	}
	offpeak, err := configSection.GetFloat64("offpeak_per_kwh")
	if err != nil {
		return configData{}, fmt.Errorf("offpeak_per_kwh not found in config")
	}

	config := configData{
		sensorID:  configSection.GetStringDefault("sensor_id", "sensor.grid_tariff"),
		name:      configSection.GetStringDefault("name", "Grid tariff"),
		unit:      configSection.GetStringDefault("unit", "kr"),
		loc:       loc,
		peakStart: configSection.GetIntDefault("peak_start_hour", 6),
		peakEnd:   configSection.GetIntDefault("peak_end_hour", 22),
		peak:      decimal.NewFromFloat(peak),
		offpeak:   decimal.NewFromFloat(offpeak),
	}
	if config.peakStart < 0 || config.peakEnd > 24 || config.peakStart > config.peakEnd {
		return configData{}, fmt.Errorf("peak hours %d-%d are not within a day", config.peakStart, config.peakEnd)
	}
	return config, nil
}
