package unifi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	legacy "github.com/dim13/unifi"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/presence"
	"github.com/yob/home-energy/core/timers"
	"github.com/yob/home-energy/core/vlan"
	"github.com/yob/home-energy/pubsub"
	"github.com/yob/home-energy/unifi"
)

const (
	defaultPollInterval = 5
	pollTimeout         = 10 * time.Second
)

var (
	unifiApiVersion = 5
)

// Source lists the clients currently connected to the network.
type Source interface {
	Clients(ctx context.Context) ([]unifi.ClientDevice, error)
}

type integrationSource struct {
	client *unifi.Client
}

func (s *integrationSource) Clients(ctx context.Context) ([]unifi.ClientDevice, error) {
	return s.client.GetClients(ctx)
}

// controllerSource polls a self-hosted controller through the legacy API.
type controllerSource struct {
	u    *legacy.Unifi
	site string
}

func (s *controllerSource) Clients(ctx context.Context) ([]unifi.ClientDevice, error) {
	site, err := s.u.Site(s.site)
	if err != nil {
		return nil, err
	}
	stations, err := s.u.Sta(site)
	if err != nil {
		return nil, err
	}

	devices := make([]unifi.ClientDevice, 0, len(stations))
	for _, sta := range stations {
		devices = append(devices, unifi.ClientDevice{
			Id:          sta.Mac,
			Name:        sta.Hostname,
			IpAddress:   sta.IP,
			MacAddress:  sta.Mac,
			ConnectedAt: time.Unix(sta.LastSeen, 0).UTC(),
		})
	}
	return devices, nil
}

type trackerConfig struct {
	name string
	mac  string
}

type configData struct {
	baseURL      string
	apiKey       string
	address      string
	unifiUser    string
	unifiPass    string
	unifiPort    string
	unifiSite    string
	pollInterval time.Duration
	networks     []vlan.Network
	trackers     []trackerConfig
}

func (c configData) usesController() bool {
	return c.apiKey == ""
}

type tracker struct {
	config trackerConfig
	entity *entities.DeviceTracker
}

type network struct {
	counter *vlan.Counter
	entity  *entities.SensorString
}

type app struct {
	bus      *pubsub.Pubsub
	logger   *logging.Logger
	source   Source
	now      func() time.Time
	presence *presence.Tracker
	trackers []tracker
	networks []network

	last    []unifi.ClientDevice
	hasLast bool
}

// Init polls the network for connected clients. Configured trackers publish
// home / not_home, and every configured network publishes the number of
// clients with an address inside it.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("unifi: %v", err))
		return
	}

	var source Source
	if config.usesController() {
		u, err := legacy.Login(config.unifiUser, config.unifiPass, config.address, config.unifiPort, config.unifiSite, unifiApiVersion)
		if err != nil {
			logger.Fatal(fmt.Sprintf("unifi: login returned error: %v", err))
			return
		}
		defer u.Logout()
		source = &controllerSource{u: u, site: config.unifiSite}
	} else {
		source = &integrationSource{client: unifi.NewClient(config.baseURL, config.apiKey)}
	}

	a := newApp(bus, logger, source, config, time.Now)
	a.register()
	a.poll()
	scheduler.RunEvery(config.pollInterval, a.poll)

	<-scheduler.Done()
}

func newApp(bus *pubsub.Pubsub, logger *logging.Logger, source Source, config configData, now func() time.Time) *app {
	a := &app{
		bus:      bus,
		logger:   logger,
		source:   source,
		now:      now,
		presence: presence.NewTracker(),
	}
	for _, t := range config.trackers {
		a.trackers = append(a.trackers, tracker{
			config: t,
			entity: entities.NewDeviceTracker(bus, TrackerID(t.name)),
		})
	}
	for _, n := range config.networks {
		a.networks = append(a.networks, network{
			counter: vlan.NewCounter(n),
			entity:  entities.NewSensorString(bus, NetworkSensorID(n.Name)),
		})
	}
	return a
}

func (a *app) register() {
	for _, t := range a.trackers {
		entities.Register(a.bus, pubsub.EntityData{
			ID:   t.entity.ID(),
			Name: t.config.name,
		})
		entities.SetAvailability(a.bus, t.entity.ID(), true)
	}
	for _, n := range a.networks {
		entities.Register(a.bus, pubsub.EntityData{
			ID:                n.entity.ID(),
			Name:              fmt.Sprintf("%s devices", n.counter.Network().Name),
			UnitOfMeasurement: "devices",
			StateClass:        "measurement",
		})
		entities.SetAvailability(a.bus, n.entity.ID(), true)
	}
}

func (a *app) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	devices, err := a.source.Clients(ctx)
	if err != nil {
		a.logger.Error(fmt.Sprintf("unifi: failed to list clients (%v)", err))
		return
	}
	a.logger.Debug(fmt.Sprintf("unifi: %d clients connected", len(devices)))

	now := a.now()
	for _, t := range a.trackers {
		state, changed := a.presence.Observe(t.config.mac, unifi.HasMac(devices, t.config.mac), now)
		if !changed {
			continue
		}
		a.logger.Info(fmt.Sprintf("unifi: %s is now %s", t.config.name, state))
		t.entity.Update(state == presence.Home)
	}

	if a.hasLast && unifi.SameDevices(a.last, devices) {
		// same snapshot, refresh the last counts
		for _, n := range a.networks {
			if count, ok := n.counter.Last(); ok {
				n.entity.Update(strconv.Itoa(count))
			}
		}
		return
	}
	a.last = devices
	a.hasLast = true

	ips := unifi.IPAddresses(devices)
	for _, n := range a.networks {
		count, changed := n.counter.Update(ips)
		if !changed {
			continue
		}
		a.logger.Debug(fmt.Sprintf("unifi: %d devices on %s", count, n.counter.Network().Name))
		n.entity.Update(strconv.Itoa(count))
	}
}

func TrackerID(name string) string {
	return fmt.Sprintf("device_tracker.unifi_%s", sanitize(name))
}

func NetworkSensorID(name string) string {
	return fmt.Sprintf("sensor.unifi_%s_devices", sanitize(name))
}

// sanitize lowercases name and replaces everything but letters and digits
// with underscores.
func sanitize(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

func newConfigFromSection(configSection *conf.ConfigSection) (configData, error) {
	config := configData{
		pollInterval: time.Duration(configSection.GetIntDefault("poll_interval_seconds", defaultPollInterval)) * time.Second,
	}
	if config.pollInterval <= 0 {
		return configData{}, fmt.Errorf("poll_interval_seconds must be positive")
	}

	if apiKey := configSection.GetStringDefault("api_key", ""); apiKey != "" {
		baseURL, err := configSection.GetString("base_url")
		if err != nil {
			return configData{}, fmt.Errorf("base_url not found in config")
		}
		config.apiKey = apiKey
		config.baseURL = baseURL
	} else {
		fields := []struct {
			key    string
			target *string
		}{
			{"address", &config.address},
			{"user", &config.unifiUser},
			{"pass", &config.unifiPass},
			{"port", &config.unifiPort},
			{"site", &config.unifiSite},
		}
		for _, field := range fields {
			value, err := configSection.GetString(field.key)
			if err != nil {
				return configData{}, fmt.Errorf("%s not found in config", field.key)
			}
			*field.target = value
		}
	}

	if configSection.Has("networks") {
		sections, err := configSection.Sections("networks")
		if err != nil {
			return configData{}, err
		}
		for _, section := range sections {
			name, err := section.GetString("name")
			if err != nil {
				return configData{}, fmt.Errorf("network name not found in config")
			}
			cidr, err := section.GetString("vlan")
			if err != nil {
				return configData{}, fmt.Errorf("vlan not found for network %s", name)
			}
			n, err := vlan.ParseNetwork(name, cidr)
			if err != nil {
				return configData{}, err
			}
			config.networks = append(config.networks, n)
		}
	}

	if configSection.Has("trackers") {
		sections, err := configSection.Sections("trackers")
		if err != nil {
			return configData{}, err
		}
		for _, section := range sections {
			name, err := section.GetString("name")
			if err != nil {
				return configData{}, fmt.Errorf("tracker name not found in config")
			}
			mac, err := section.GetString("mac_address")
			if err != nil {
				return configData{}, fmt.Errorf("mac_address not found for tracker %s", name)
			}
			config.trackers = append(config.trackers, trackerConfig{name: name, mac: presence.NormalizeKey(mac)})
		}
	}

	if len(config.networks) == 0 && len(config.trackers) == 0 {
		return configData{}, fmt.Errorf("no networks or trackers in config")
	}
	return config, nil
}
