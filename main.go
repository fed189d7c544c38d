package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/urfave/cli/v2"

	"github.com/yob/home-energy/adapters/costsensor"
	"github.com/yob/home-energy/adapters/datadog"
	"github.com/yob/home-energy/adapters/fronius"
	"github.com/yob/home-energy/adapters/meter"
	"github.com/yob/home-energy/adapters/nordpool"
	"github.com/yob/home-energy/adapters/rules"
	"github.com/yob/home-energy/adapters/tariff"
	"github.com/yob/home-energy/adapters/unifi"
	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/crdbstate"
	"github.com/yob/home-energy/core/email"
	"github.com/yob/home-energy/core/hassmqtt"
	"github.com/yob/home-energy/core/homestate"
	corehttp "github.com/yob/home-energy/core/http"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/memorystate"
	"github.com/yob/home-energy/core/statebus"
	"github.com/yob/home-energy/core/timers"
	"github.com/yob/home-energy/pubsub"
)

const (
	coreStartupDelay = 100 * time.Millisecond
)

func main() {
	var configPath string
	var inContainer bool

	app := &cli.App{
		Name:  "home-energy",
		Usage: "home-energy --config=config.toml",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the TOML config file",
				EnvVars:     []string{"HOME_ENERGY_CONFIG"},
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:        "in-container",
				Usage:       "read the config file from /config",
				EnvVars:     []string{"HOME_ENERGY_IN_CONTAINER"},
				Destination: &inContainer,
			},
		},
		Action: func(c *cli.Context) error {
			path, err := conf.ResolvePath(configPath, inContainer)
			if err != nil {
				return err
			}
			configFile, err := conf.Load(path)
			if errors.Is(err, conf.ErrSampleWritten) {
				return fmt.Errorf("%v, edit it and start again", err)
			} else if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return run(c.Context, configFile)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configFile *conf.ConfigFile) error {
	bus := pubsub.NewPubsub()
	logger := logging.NewLogger(bus)
	scheduler := timers.NewScheduler(time.Local)

	level := "info"
	if section, err := configFile.Section("logging"); err == nil {
		level = section.GetStringDefault("level", level)
	}

	state, err := newState(configFile, logger)
	if err != nil {
		return err
	}

	// core services subscribe before any adapter publishes
	go func() {
		logging.Init(bus, level)
	}()
	go func() {
		statebus.Init(bus, logger, state)
	}()

	var mqttClient hassmqtt.Client
	if section, err := configFile.Section("mqtt"); err == nil {
		mqttConfig, err := hassmqtt.NewConfigFromSection(section)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		client, err := hassmqtt.NewRealClient(mqttConfig)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		mqttClient = client
		go func() {
			hassmqtt.Init(bus, logger, client, mqttConfig)
		}()
	}

	go func() {
		timers.Init(bus, scheduler)
	}()

	if section, err := configFile.Section("http"); err == nil {
		port := section.GetIntDefault("port", 8080)
		go func() {
			corehttp.Init(bus, logger, port)
		}()
	}

	if section, err := configFile.Section("email"); err == nil {
		go func() {
			email.Init(bus, logger, section)
		}()
	}

	time.Sleep(coreStartupDelay)
	startAdapters(bus, logger, state.ReadOnly(), scheduler, configFile)

	go func() {
		signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-signalCtx.Done()

		logger.Info("shutting down")
		scheduler.Stop()
		if mqttClient != nil {
			mqttClient.Close()
		}
		// give the log sink a moment to drain
		time.Sleep(coreStartupDelay)
		bus.Close()
	}()

	// loop forever, shuffling events between goroutines
	bus.Run()
	return nil
}

func newState(configFile *conf.ConfigFile, logger *logging.Logger) (homestate.State, error) {
	section, err := configFile.Section("crdb")
	if err != nil {
		return memorystate.New(), nil
	}
	state, err := crdbstate.New(section, logger)
	if err != nil {
		return nil, err
	}
	return state, nil
}

func startAdapters(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, configFile *conf.ConfigFile) {
	if section, err := configFile.Section("nordpool"); err == nil {
		go func() {
			nordpool.Init(bus, logger, state, scheduler, section)
		}()
	}

	if sections, err := configFile.Sections("cost_sensors"); err == nil {
		go func() {
			costsensor.Init(bus, logger, state, scheduler, sections)
		}()
	}

	if section, err := configFile.Section("unifi"); err == nil {
		go func() {
			unifi.Init(bus, logger, state, scheduler, section)
		}()
	}

	if section, err := configFile.Section("meter"); err == nil {
		go func() {
			meter.Init(bus, logger, state, section)
		}()
	}

	if section, err := configFile.Section("fronius"); err == nil {
		go func() {
			fronius.Init(bus, logger, state, scheduler, section)
		}()
	}

	if section, err := configFile.Section("tariff"); err == nil {
		go func() {
			tariff.Init(bus, logger, state, section)
		}()
	}

	if section, err := configFile.Section("price_alert"); err == nil {
		go func() {
			rules.Init(bus, logger, state, section)
		}()
	}

	if section, err := configFile.Section("datadog"); err == nil {
		go func() {
			datadog.Init(bus, logger, state, section)
		}()
	}
}
