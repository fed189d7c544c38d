package meter

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	corehttp "github.com/yob/home-energy/core/http"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/pubsub"
)

const (
	defaultPath = "/meter"
)

type configData struct {
	path  string
	names map[string]string
}

type meter struct {
	energy *entities.SensorString
	power  *entities.SensorGauge
}

// Init accepts meter readings posted as JSON to the configured path, e.g.
//
//	{"device": {"address": "aa:bb:cc"}, "sensors": {"energy_kwh": 1234.5, "power_w": 430}}
//
// Readings of known devices are published as sensor.<name>_energy and
// sensor.<name>_power.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("meter: %v", err))
		return
	}

	meters := make(map[string]meter, len(config.names))
	for address, name := range config.names {
		meters[address] = newMeter(bus, name)
	}

	subRequests, _ := bus.Subscribe(fmt.Sprintf("http-request:%s", config.path))
	defer subRequests.Close()
	corehttp.RegisterPath(bus, config.path)

	for event := range subRequests.Ch {
		if event.Type != "http-request" {
			continue
		}
		reqUUID := event.Key

		err := handleRequest(logger, meters, event.HttpRequest.Body)
		if err != nil {
			logger.Error(fmt.Sprintf("meter: error handling request (%v)", err))
			corehttp.Respond(bus, reqUUID, 400, fmt.Sprintf("ERR: %v\n", err))
			continue
		}

		corehttp.Respond(bus, reqUUID, 200, "OK\n")
	}
}

func newMeter(bus *pubsub.Pubsub, name string) meter {
	m := meter{
		energy: entities.NewSensorString(bus, fmt.Sprintf("sensor.%s_energy", name)),
		power:  entities.NewSensorGauge(bus, fmt.Sprintf("sensor.%s_power", name)),
	}
	entities.Register(bus, pubsub.EntityData{
		ID:                m.energy.ID(),
		Name:              fmt.Sprintf("%s energy", name),
		DeviceClass:       "energy",
		UnitOfMeasurement: "kWh",
		StateClass:        "total_increasing",
	})
	entities.Register(bus, pubsub.EntityData{
		ID:                m.power.ID(),
		Name:              fmt.Sprintf("%s power", name),
		DeviceClass:       "power",
		UnitOfMeasurement: "W",
		StateClass:        "measurement",
	})
	entities.SetAvailability(bus, m.energy.ID(), true)
	entities.SetAvailability(bus, m.power.ID(), true)
	return m
}

func handleRequest(logger *logging.Logger, meters map[string]meter, jsonBody string) error {
	if !gjson.Valid(jsonBody) {
		return fmt.Errorf("invalid JSON")
	}

	address := strings.ToLower(gjson.Get(jsonBody, "device.address").String())
	m, ok := meters[address]
	if !ok {
		logger.Debug(fmt.Sprintf("meter: ignoring reading from unknown device %q", address))
		return nil
	}

	energy := gjson.Get(jsonBody, "sensors.energy_kwh")
	if energy.Exists() && energy.Type != gjson.Number {
		return fmt.Errorf("energy_kwh is not a number")
	}
	power := gjson.Get(jsonBody, "sensors.power_w")
	if power.Exists() && power.Type != gjson.Number {
		return fmt.Errorf("power_w is not a number")
	}
	if !energy.Exists() && !power.Exists() {
		return fmt.Errorf("no readings for %s", address)
	}

	// the raw number keeps the meter's precision
	if energy.Exists() {
		m.energy.Update(energy.Raw)
	}
	if power.Exists() {
		m.power.Update(power.Float())
	}
	return nil
}

func newConfigFromSection(configSection *conf.ConfigSection) (configData, error) {
	names, err := configSection.GetStringMap("names")
	if err != nil {
		return configData{}, fmt.Errorf("names map not found in config - %v", err)
	}

	lowered := make(map[string]string, len(names))
	for address, name := range names {
		lowered[strings.ToLower(address)] = name
	}

	path := configSection.GetStringDefault("path", defaultPath)
	if !strings.HasPrefix(path, "/") {
		return configData{}, fmt.Errorf("path must start with /")
	}

	return configData{
		path:  path,
		names: lowered,
	}, nil
}
