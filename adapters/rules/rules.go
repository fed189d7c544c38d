package rules

import (
	"fmt"
	"time"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/statebus"
	"github.com/yob/home-energy/pubsub"
)

const (
	priceAlertLastAtKey = "rules.price_alert.last_at"
)

type priceAlertConfig struct {
	sensorID  string
	threshold float64
	cooldown  time.Duration
}

type priceAlert struct {
	publish chan pubsub.PubsubEvent
	logger  *logging.Logger
	config  priceAlertConfig
	lastAt  time.Time
}

// Init emails a warning when the price sensor rises above the configured
// threshold, at most once per cooldown.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("rules: %v", err))
		return
	}

	rule := newPriceAlert(bus.PublishChannel(), logger, state, config)

	sub, _ := bus.Subscribe(statebus.ChangedTopic(config.sensorID))
	defer sub.Close()

	for event := range sub.Ch {
		at := event.At
		if at.IsZero() {
			at = time.Now()
		}
		rule.priceChanged(event.Value, at)
	}
}

func newPriceAlert(publish chan pubsub.PubsubEvent, logger *logging.Logger, state homestate.StateReader, config priceAlertConfig) *priceAlert {
	rule := &priceAlert{
		publish: publish,
		logger:  logger,
		config:  config,
	}
	if lastAt, ok := state.ReadTime(priceAlertLastAtKey); ok {
		rule.lastAt = lastAt
	}
	return rule
}

// priceChanged reports whether an alert was sent.
func (rule *priceAlert) priceChanged(value string, now time.Time) bool {
	rule.logger.Debug("executing rule priceAlert")

	price, ok := homestate.ParseFloat64(value)
	if !ok || price <= rule.config.threshold {
		return false
	}
	if !rule.lastAt.IsZero() && now.Sub(rule.lastAt) < rule.config.cooldown {
		rule.logger.Debug(fmt.Sprintf("rules: price alert suppressed, last sent %s", rule.lastAt.Format(time.RFC3339)))
		return false
	}

	rule.publish <- pubsub.PubsubEvent{
		Topic: "email:send",
		Data: pubsub.NewEmailEvent(
			fmt.Sprintf("[home-energy] Price spike! %s is %s", rule.config.sensorID, value),
			fmt.Sprintf("%s rose to %s, above the alert threshold of %.2f.", rule.config.sensorID, value, rule.config.threshold),
		),
	}

	rule.publish <- pubsub.PubsubEvent{
		Topic: "state:update",
		Data:  pubsub.NewKeyValueEvent(priceAlertLastAtKey, now.UTC().Format(time.RFC3339)),
	}

	rule.lastAt = now
	rule.logger.Info(fmt.Sprintf("rules: price alert sent for %s", value))
	return true
}

func newConfigFromSection(configSection *conf.ConfigSection) (priceAlertConfig, error) {
	sensorID, err := configSection.GetString("sensor_id")
	if err != nil {
		return priceAlertConfig{}, fmt.Errorf("sensor_id not found in config")
	}

	threshold, err := configSection.GetFloat64("threshold")
	if err != nil {
		return priceAlertConfig{}, fmt.Errorf("threshold not found in config")
	}

	cooldownHours := configSection.GetFloat64Default("cooldown_hours", 12)
	if cooldownHours < 0 {
		return priceAlertConfig{}, fmt.Errorf("cooldown_hours must not be negative")
	}

	return priceAlertConfig{
		sensorID:  sensorID,
		threshold: threshold,
		cooldown:  time.Duration(cooldownHours * float64(time.Hour)),
	}, nil
}
