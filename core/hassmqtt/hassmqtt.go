// Package hassmqtt links the bus to Home Assistant over MQTT: entities
// registered on the bus are announced through MQTT discovery, their state
// and availability are published on state and availability topics, and
// hub owned entities are read back from the statestream integration.
package hassmqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/pubsub"
)

const (
	defaultDiscoveryPrefix   = "homeassistant"
	defaultBaseTopic         = "home-energy"
	defaultStatestreamPrefix = "homeassistant/statestream"
	defaultClientID          = "home-energy"
)

// Client is the subset of an MQTT client the bridge needs.
type Client interface {
	// Publish sends payload to topic. Returns error if publishing fails
	// (should not crash the process).
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe calls handler for every message matching the topic filter.
	Subscribe(filter string, qos byte, handler func(topic string, payload []byte)) error

	// Close disconnects from the broker.
	Close() error
}

type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	DiscoveryPrefix   string
	BaseTopic         string
	StatestreamPrefix string
}

func NewConfigFromSection(section *conf.ConfigSection) (Config, error) {
	broker, err := section.GetString("broker")
	if err != nil {
		return Config{}, fmt.Errorf("broker not found in config")
	}
	return Config{
		Broker:            broker,
		ClientID:          section.GetStringDefault("client_id", defaultClientID),
		Username:          section.GetStringDefault("username", ""),
		Password:          section.GetStringDefault("password", ""),
		DiscoveryPrefix:   strings.TrimRight(section.GetStringDefault("discovery_prefix", defaultDiscoveryPrefix), "/"),
		BaseTopic:         strings.TrimRight(section.GetStringDefault("base_topic", defaultBaseTopic), "/"),
		StatestreamPrefix: strings.TrimRight(section.GetStringDefault("statestream_prefix", defaultStatestreamPrefix), "/"),
	}, nil
}

func (c Config) DiscoveryTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/config", c.DiscoveryPrefix, entities.Component(id), entities.ObjectID(id))
}

func (c Config) StateTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/state", c.BaseTopic, entities.Component(id), entities.ObjectID(id))
}

func (c Config) AvailabilityTopic(id string) string {
	return fmt.Sprintf("%s/%s/%s/availability", c.BaseTopic, entities.Component(id), entities.ObjectID(id))
}

// BridgeAvailabilityTopic carries the last will of the process.
func (c Config) BridgeAvailabilityTopic() string {
	return fmt.Sprintf("%s/bridge/availability", c.BaseTopic)
}

func (c Config) statestreamFilter() string {
	return fmt.Sprintf("%s/+/+/state", c.StatestreamPrefix)
}

// statestreamKey maps <prefix>/<domain>/<object_id>/state to the entity id.
func (c Config) statestreamKey(topic string) (string, bool) {
	rest := strings.TrimPrefix(topic, c.StatestreamPrefix+"/")
	if rest == topic {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "state" || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

type availability struct {
	Topic string `json:"topic"`
}

type discoveryPayload struct {
	Name              string         `json:"name,omitempty"`
	UniqueID          string         `json:"unique_id"`
	ObjectID          string         `json:"object_id"`
	StateTopic        string         `json:"state_topic"`
	Availability      []availability `json:"availability"`
	AvailabilityMode  string         `json:"availability_mode"`
	DeviceClass       string         `json:"device_class,omitempty"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	PayloadHome       string         `json:"payload_home,omitempty"`
	PayloadNotHome    string         `json:"payload_not_home,omitempty"`
	SourceType        string         `json:"source_type,omitempty"`
}

// DiscoveryPayload is the retained config message that makes the hub create
// the entity.
func (c Config) DiscoveryPayload(entity pubsub.EntityData) ([]byte, error) {
	payload := discoveryPayload{
		Name:       entity.Name,
		UniqueID:   strings.ReplaceAll(entity.ID, ".", "_"),
		ObjectID:   entities.ObjectID(entity.ID),
		StateTopic: c.StateTopic(entity.ID),
		Availability: []availability{
			{Topic: c.BridgeAvailabilityTopic()},
			{Topic: c.AvailabilityTopic(entity.ID)},
		},
		AvailabilityMode:  "all",
		DeviceClass:       entity.DeviceClass,
		UnitOfMeasurement: entity.UnitOfMeasurement,
		StateClass:        entity.StateClass,
	}
	if entities.Component(entity.ID) == "device_tracker" {
		payload.DeviceClass = ""
		payload.PayloadHome = entities.StateHome
		payload.PayloadNotHome = entities.StateNotHome
		payload.SourceType = "router"
	}
	return json.Marshal(payload)
}
