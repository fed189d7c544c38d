package nordpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/entities"
	"github.com/yob/home-energy/core/homestate"
	corehttp "github.com/yob/home-energy/core/http"
	"github.com/yob/home-energy/core/logging"
	"github.com/yob/home-energy/core/pricetable"
	"github.com/yob/home-energy/core/statebus"
	"github.com/yob/home-energy/core/timers"
	"github.com/yob/home-energy/nordpool"
	"github.com/yob/home-energy/pubsub"
)

const (
	pricesPath      = "/nordpool/prices"
	tomorrowAfter   = 16
	fetchHour       = 18
	retryDelay      = 15 * time.Minute
	maxFetchElapsed = 2 * time.Minute
	recomputeSpec   = "0 * * * *"
	purgeSpec       = "1 0 * * *"
)

type Fetcher interface {
	FetchPrices(ctx context.Context, date nordpool.Date) ([]nordpool.Entry, error)
}

type configData struct {
	area           string
	currency       string
	unit           string
	loc            *time.Location
	sensorID       string
	sensorName     string
	subsidizedID   string
	subsidizedName string
}

type app struct {
	bus       *pubsub.Pubsub
	logger    *logging.Logger
	scheduler *timers.Scheduler
	config    configData
	fetcher   Fetcher
	now       func() time.Time

	table      *pricetable.Table
	price      *entities.SensorString
	subsidized *entities.SensorString
	newBackOff func() backoff.BackOff
	retryDelay time.Duration
	runAt      func(at time.Time, fn func())
}

// Init publishes the day-ahead price of the configured area and the
// subsidized price derived from it. It returns when the scheduler stops.
func Init(bus *pubsub.Pubsub, logger *logging.Logger, state homestate.StateReader, scheduler *timers.Scheduler, configSection *conf.ConfigSection) {
	config, err := newConfigFromSection(configSection)
	if err != nil {
		logger.Fatal(fmt.Sprintf("nordpool: %v", err))
		return
	}

	a := newApp(bus, logger, scheduler, config, nordpool.NewClient(config.currency, []string{config.area}), time.Now)
	if err := a.start(); err != nil {
		logger.Fatal(fmt.Sprintf("nordpool: %v", err))
		return
	}
	<-scheduler.Done()
}

func newApp(bus *pubsub.Pubsub, logger *logging.Logger, scheduler *timers.Scheduler, config configData, fetcher Fetcher, now func() time.Time) *app {
	a := &app{
		bus:        bus,
		logger:     logger,
		scheduler:  scheduler,
		config:     config,
		fetcher:    fetcher,
		now:        now,
		price:      entities.NewSensorString(bus, config.sensorID),
		subsidized: entities.NewSensorString(bus, config.subsidizedID),
		retryDelay: retryDelay,
		runAt: func(at time.Time, fn func()) {
			scheduler.RunAt(at, fn)
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = maxFetchElapsed
			return b
		},
	}

	broadcaster := pricetable.NewBroadcaster()
	broadcaster.Subscribe(a.priceChanged)
	a.table = pricetable.New(config.loc, now, broadcaster.Notify)
	return a
}

func (a *app) start() error {
	a.register(a.config.sensorID, a.config.sensorName)
	a.register(a.config.subsidizedID, a.config.subsidizedName)

	subPrice, err := a.bus.Subscribe(statebus.ChangedTopic(a.config.sensorID))
	if err != nil {
		return err
	}
	go func() {
		for event := range subPrice.Ch {
			a.updateSubsidized(event.Value)
		}
	}()

	subRequest, err := a.bus.Subscribe(fmt.Sprintf("http-request:%s", pricesPath))
	if err != nil {
		return err
	}
	go func() {
		for event := range subRequest.Ch {
			a.servePrices(event.Key)
		}
	}()
	corehttp.RegisterPath(a.bus, pricesPath)

	a.table.PublishCurrent()

	if _, err := a.scheduler.ScheduleRecurring(recomputeSpec, func() {
		if _, ok := a.table.PublishCurrent(); !ok {
			a.logger.Warn(fmt.Sprintf("nordpool: no current price for %s", a.now().In(a.config.loc).Format(time.RFC3339)))
		}
	}); err != nil {
		return err
	}

	a.schedulePurge()
	a.fetch()
	return nil
}

func (a *app) register(id string, name string) {
	entities.Register(a.bus, pubsub.EntityData{
		ID:                id,
		Name:              name,
		DeviceClass:       "monetary",
		UnitOfMeasurement: a.config.unit,
		StateClass:        "measurement",
	})
	entities.SetAvailability(a.bus, id, true)
}

func (a *app) priceChanged(price *nordpool.Entry) {
	state := pricetable.AreaState(price, a.config.area)
	if state == homestate.Unavailable {
		a.logger.Warn(fmt.Sprintf("nordpool: %s has no current price, setting to unavailable", a.config.area))
	} else {
		a.logger.Info(fmt.Sprintf("nordpool: %s price changed to %s", a.config.area, state))
	}
	a.price.Update(state)
}

func (a *app) updateSubsidized(priceState string) {
	state := pricetable.SubsidizedState(priceState)
	if state == homestate.Unavailable {
		a.logger.Warn(fmt.Sprintf("nordpool: %s is unavailable", a.config.sensorID))
	}
	a.subsidized.Update(state)
}

// fetch stores today's prices when missing, and tomorrow's once they are
// published in the afternoon. It schedules itself again for 18:00, or after
// retryDelay when a fetch failed.
func (a *app) fetch() {
	now := a.now().In(a.config.loc)
	today := a.table.Today()
	tomorrow := today.AddDays(1)

	failed := false
	if !a.table.HasPricesForDate(today) {
		if err := a.fetchDate(today); err != nil {
			a.logger.Error(fmt.Sprintf("nordpool: failed to fetch prices for %s (%v)", today, err))
			failed = true
		}
	}
	if now.Hour() > tomorrowAfter && !a.table.HasPricesForDate(tomorrow) {
		if err := a.fetchDate(tomorrow); err != nil {
			if errors.Is(err, nordpool.ErrNoPrices) {
				a.logger.Warn(fmt.Sprintf("nordpool: prices for %s not published yet", tomorrow))
			} else {
				a.logger.Error(fmt.Sprintf("nordpool: failed to fetch prices for %s (%v)", tomorrow, err))
			}
			failed = true
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), fetchHour, 0, 0, 0, a.config.loc)
	if now.Hour() > tomorrowAfter && a.table.HasPricesForDate(tomorrow) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, fetchHour, 0, 0, 0, a.config.loc)
	}
	if failed || !next.After(now) {
		next = now.Add(a.retryDelay)
	}
	a.logger.Debug(fmt.Sprintf("nordpool: next fetch at %s", next.Format(time.RFC3339)))

	a.runAt(next, a.fetch)
}

func (a *app) fetchDate(date nordpool.Date) error {
	ctx, cancel := context.WithTimeout(context.Background(), maxFetchElapsed+time.Minute)
	defer cancel()

	entries, err := backoff.RetryWithData(func() ([]nordpool.Entry, error) {
		entries, err := a.fetcher.FetchPrices(ctx, date)
		if errors.Is(err, nordpool.ErrNoPrices) {
			return nil, backoff.Permanent(err)
		}
		return entries, err
	}, backoff.WithContext(a.newBackOff(), ctx))
	if err != nil {
		return err
	}

	if a.table.AddPrices(date, entries) {
		a.logger.Info(fmt.Sprintf("nordpool: added %d prices for %s", len(entries), date))
	}
	return nil
}

func (a *app) schedulePurge() {
	next, err := timers.NextRun(purgeSpec, a.now(), a.config.loc)
	if err != nil {
		a.logger.Error(fmt.Sprintf("nordpool: %v", err))
		return
	}
	a.runAt(next, func() {
		a.purgeYesterday()
		a.schedulePurge()
	})
}

func (a *app) purgeYesterday() {
	yesterday := a.table.Today().AddDays(-1)
	if a.table.PurgeDate(yesterday) {
		a.logger.Info(fmt.Sprintf("nordpool: purged prices for %s", yesterday))
	}
}

type pricesResponse struct {
	Area    string                      `json:"area"`
	Current *nordpool.Entry             `json:"current"`
	Dates   map[string][]nordpool.Entry `json:"dates"`
}

func (a *app) servePrices(reqUUID string) {
	response := pricesResponse{
		Area:  a.config.area,
		Dates: make(map[string][]nordpool.Entry),
	}
	if current, ok := a.table.CurrentIntervalPrice(a.now()); ok {
		response.Current = &current
	}
	for date, entries := range a.table.Entries() {
		response.Dates[date.String()] = entries
	}

	body, err := json.Marshal(response)
	if err != nil {
		corehttp.Respond(a.bus, reqUUID, http.StatusInternalServerError, err.Error())
		return
	}
	corehttp.Respond(a.bus, reqUUID, http.StatusOK, string(body))
}

func newConfigFromSection(configSection *conf.ConfigSection) (configData, error) {
	area, err := configSection.GetString("area")
	if err != nil {
		return configData{}, fmt.Errorf("area not found in config")
	}

	loc, err := time.LoadLocation(configSection.GetStringDefault("timezone", "Europe/Oslo"))
	if err != nil {
		return configData{}, fmt.Errorf("failed to load timezone: %v", err)
	}

	sensorID := configSection.GetStringDefault("sensor_id", fmt.Sprintf("sensor.strompris_nordpool_%s", strings.ToLower(area)))
	return configData{
		area:           area,
		currency:       configSection.GetStringDefault("currency", "NOK"),
		unit:           configSection.GetStringDefault("unit", "kr"),
		loc:            loc,
		sensorID:       sensorID,
		sensorName:     configSection.GetStringDefault("sensor_name", fmt.Sprintf("Nord Pool %s", area)),
		subsidizedID:   configSection.GetStringDefault("subsidized_sensor_id", sensorID+"_med_stromstotte"),
		subsidizedName: configSection.GetStringDefault("subsidized_sensor_name", fmt.Sprintf("Nord Pool %s med strømstøtte", area)),
	}, nil
}
