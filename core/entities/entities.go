package entities

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/pubsub"
)

const (
	StateHome    = "home"
	StateNotHome = "not_home"

	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

type SensorGauge struct {
	bus *pubsub.Pubsub
	id  string
}

type SensorString struct {
	bus *pubsub.Pubsub
	id  string
}

// SensorDecimal publishes monetary values with a fixed number of decimals.
type SensorDecimal struct {
	bus    *pubsub.Pubsub
	id     string
	places int32
}

type DeviceTracker struct {
	bus *pubsub.Pubsub
	id  string
}

func NewSensorGauge(bus *pubsub.Pubsub, id string) *SensorGauge {
	return &SensorGauge{
		bus: bus,
		id:  id,
	}
}

func (s *SensorGauge) ID() string {
	return s.id
}

func (s *SensorGauge) Update(value float64) {
	update(s.bus, s.id, strconv.FormatFloat(value, 'f', 1, 64))
}

func (s *SensorGauge) Unavailable() {
	update(s.bus, s.id, homestate.Unavailable)
}

func NewSensorString(bus *pubsub.Pubsub, id string) *SensorString {
	return &SensorString{
		bus: bus,
		id:  id,
	}
}

func (s *SensorString) ID() string {
	return s.id
}

func (s *SensorString) Update(value string) {
	update(s.bus, s.id, value)
}

func (s *SensorString) Unavailable() {
	update(s.bus, s.id, homestate.Unavailable)
}

func NewSensorDecimal(bus *pubsub.Pubsub, id string, places int32) *SensorDecimal {
	return &SensorDecimal{
		bus:    bus,
		id:     id,
		places: places,
	}
}

func (s *SensorDecimal) ID() string {
	return s.id
}

// Update publishes value truncated to the sensor's places.
func (s *SensorDecimal) Update(value decimal.Decimal) {
	update(s.bus, s.id, value.Truncate(s.places).StringFixed(s.places))
}

func (s *SensorDecimal) Unavailable() {
	update(s.bus, s.id, homestate.Unavailable)
}

func NewDeviceTracker(bus *pubsub.Pubsub, id string) *DeviceTracker {
	return &DeviceTracker{
		bus: bus,
		id:  id,
	}
}

func (s *DeviceTracker) ID() string {
	return s.id
}

func (s *DeviceTracker) Update(home bool) {
	if home {
		update(s.bus, s.id, StateHome)
	} else {
		update(s.bus, s.id, StateNotHome)
	}
}

// Register announces an entity owned by this process. The MQTT bridge turns
// it into a discovery config so the hub creates the entity.
func Register(bus *pubsub.Pubsub, entity pubsub.EntityData) {
	bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "entity:register",
		Data:  pubsub.NewEntityEvent(entity),
	}
}

func SetAvailability(bus *pubsub.Pubsub, id string, online bool) {
	status := AvailabilityOffline
	if online {
		status = AvailabilityOnline
	}
	bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "entity:availability",
		Data:  pubsub.NewKeyValueEvent(id, status),
	}
}

// Component is the domain part of an entity id, e.g. "sensor" for
// sensor.kitchen_energy_cost.
func Component(id string) string {
	if i := strings.Index(id, "."); i > 0 {
		return id[:i]
	}
	return "sensor"
}

// ObjectID is the part of an entity id after the domain.
func ObjectID(id string) string {
	if i := strings.Index(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}

func update(bus *pubsub.Pubsub, id string, value string) {
	bus.PublishChannel() <- pubsub.PubsubEvent{
		Topic: "state:update",
		Data:  pubsub.NewKeyValueEvent(id, value),
	}
}
