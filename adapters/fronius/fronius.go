package fronius

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/timers"
	"github.com/yob/home-energy/pubsub"
)

const (
	defaultPollInterval = 20
	requestTimeout      = 10 * time.Second
)

type sensors struct {
	gridPower   *entities.SensorGauge
	loadPower   *entities.SensorGauge
	pvPower     *entities.SensorGauge
	gridVoltage *entities.SensorGauge
	gridImport  *entities.SensorString
	gridExport  *entities.SensorString
}

type inverter struct {
	logger       *logging.Logger
	client       *http.Client
	powerFlowUrl string
	meterDataUrl string
	sensors      sensors
}

type powerFlow struct {
	gridWatts       float64
	loadWatts       float64
	generationWatts float64
}

type meterData struct {
	voltage          float64
	importedWattHour float64
	exportedWattHour float64
}

// Init polls the inverter's solar API. The smart meter's imported energy is
// published as sensor.fronius_grid_import_energy in kWh, ready to be the
// energy source of a cost sensor.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, config *conf.ConfigSection) {
	address, err := config.GetString("address")
	if err != nil {
		logger.Fatal("fronius: address not found in config")
		return
	}
	interval := time.Duration(config.GetIntDefault("poll_interval_seconds", defaultPollInterval)) * time.Second

	inv := newInverter(bus, logger, fmt.Sprintf("http://%s", address))
	inv.register(bus)
	inv.poll()

	scheduler.RunEvery(interval, inv.poll)
	<-scheduler.Done()
}

func newInverter(bus *pubsub.Pubsub, logger *logging.Logger, baseUrl string) *inverter {
	return &inverter{
		logger:       logger,
		client:       &http.Client{Timeout: requestTimeout},
		powerFlowUrl: baseUrl + "/solar_api/v1/GetPowerFlowRealtimeData.fcgi",
		meterDataUrl: baseUrl + "/solar_api/v1/GetMeterRealtimeData.cgi?Scope=System",
		sensors: sensors{
			gridPower:   entities.NewSensorGauge(bus, "sensor.fronius_grid_power"),
			loadPower:   entities.NewSensorGauge(bus, "sensor.fronius_load_power"),
			pvPower:     entities.NewSensorGauge(bus, "sensor.fronius_pv_power"),
			gridVoltage: entities.NewSensorGauge(bus, "sensor.fronius_grid_voltage"),
			gridImport:  entities.NewSensorString(bus, "sensor.fronius_grid_import_energy"),
			gridExport:  entities.NewSensorString(bus, "sensor.fronius_grid_export_energy"),
		},
	}
}

func (inv *inverter) register(bus *pubsub.Pubsub) {
	all := []pubsub.EntityData{
		{ID: inv.sensors.gridPower.ID(), Name: "Grid power", DeviceClass: "power", UnitOfMeasurement: "W", StateClass: "measurement"},
		{ID: inv.sensors.loadPower.ID(), Name: "Load power", DeviceClass: "power", UnitOfMeasurement: "W", StateClass: "measurement"},
		{ID: inv.sensors.pvPower.ID(), Name: "Solar power", DeviceClass: "power", UnitOfMeasurement: "W", StateClass: "measurement"},
		{ID: inv.sensors.gridVoltage.ID(), Name: "Grid voltage", DeviceClass: "voltage", UnitOfMeasurement: "V", StateClass: "measurement"},
		{ID: inv.sensors.gridImport.ID(), Name: "Grid import", DeviceClass: "energy", UnitOfMeasurement: "kWh", StateClass: "total_increasing"},
		{ID: inv.sensors.gridExport.ID(), Name: "Grid export", DeviceClass: "energy", UnitOfMeasurement: "kWh", StateClass: "total_increasing"},
	}
	for _, entity := range all {
		entities.Register(bus, entity)
		entities.SetAvailability(bus, entity.ID, true)
	}
}

func (inv *inverter) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	jsonBody, err := inv.get(ctx, inv.powerFlowUrl)
	if err != nil {
		inv.logger.Error(fmt.Sprintf("fronius: %v", err))
	} else if flow, err := parsePowerFlow(jsonBody); err != nil {
		inv.logger.Error(fmt.Sprintf("fronius: %v", err))
	} else {
		inv.sensors.gridPower.Update(flow.gridWatts)
		inv.sensors.loadPower.Update(flow.loadWatts)
		inv.sensors.pvPower.Update(flow.generationWatts)
	}

	jsonBody, err = inv.get(ctx, inv.meterDataUrl)
	if err != nil {
		inv.logger.Error(fmt.Sprintf("fronius: %v", err))
		return
	}
	meter, err := parseMeterData(jsonBody)
	if err != nil {
		inv.logger.Error(fmt.Sprintf("fronius: %v", err))
		return
	}
	inv.sensors.gridVoltage.Update(meter.voltage)
	inv.sensors.gridImport.Update(kiloWattHours(meter.importedWattHour))
	inv.sensors.gridExport.Update(kiloWattHours(meter.exportedWattHour))
}

func (inv *inverter) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := inv.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected response code %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func parsePowerFlow(jsonBody string) (powerFlow, error) {
	if !gjson.Valid(jsonBody) {
		return powerFlow{}, fmt.Errorf("invalid JSON")
	}
	site := gjson.Get(jsonBody, "Body.Data.Site")
	if !site.Exists() {
		return powerFlow{}, fmt.Errorf("power flow has no site data")
	}

	// P_Load is reported as a negative number, "how many watts is the site
	// using right now" reads better as a positive one
	return powerFlow{
		gridWatts:       site.Get("P_Grid").Float(),
		loadWatts:       math.Abs(site.Get("P_Load").Float()),
		generationWatts: site.Get("P_PV").Float(),
	}, nil
}

func parseMeterData(jsonBody string) (meterData, error) {
	if !gjson.Valid(jsonBody) {
		return meterData{}, fmt.Errorf("invalid JSON")
	}
	meter := gjson.Get(jsonBody, "Body.Data.0")
	imported := meter.Get("EnergyReal_WAC_Sum_Consumed")
	if imported.Type != gjson.Number {
		return meterData{}, fmt.Errorf("meter has no imported energy")
	}
	return meterData{
		voltage:          meter.Get("Voltage_AC_Phase_1").Float(),
		importedWattHour: imported.Float(),
		exportedWattHour: meter.Get("EnergyReal_WAC_Sum_Produced").Float(),
	}, nil
}

func kiloWattHours(wattHours float64) string {
	return strconv.FormatFloat(wattHours/1000, 'f', 3, 64)
}
