package pricetable

import (
	"sort"
	"sync"
	"time"

	"github.com/yob/home-energy/nordpool"
)

const (
	// MWh to kWh.
	unitDivisor = 1000
	// Value added tax applied on top of the spot price.
	taxMultiplier = 1.25
)

// Notifier receives the current interval price. A nil entry means no price
// is known for the current hour. It is called with the table locked and
// must not call back into the table.
type Notifier func(price *nordpool.Entry)

// Table holds day-ahead prices per calendar date in the price area's time
// zone.
type Table struct {
	mu     sync.Mutex
	loc    *time.Location
	now    func() time.Time
	data   map[nordpool.Date][]nordpool.Entry
	notify Notifier
}

func New(loc *time.Location, now func() time.Time, notify Notifier) *Table {
	if now == nil {
		now = time.Now
	}
	if notify == nil {
		notify = func(*nordpool.Entry) {}
	}
	return &Table{
		loc:    loc,
		now:    now,
		data:   make(map[nordpool.Date][]nordpool.Entry),
		notify: notify,
	}
}

// Today is the current date in the table's time zone.
func (t *Table) Today() nordpool.Date {
	return nordpool.DateOf(t.now().In(t.loc))
}

func (t *Table) HasPricesForDate(date nordpool.Date) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[date]
	return ok
}

// AddPrices stores the entries for date. A date that is already present is
// left untouched and false is returned. On insertion the current price is
// recomputed and passed to the notifier.
func (t *Table) AddPrices(date nordpool.Date, entries []nordpool.Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.data[date]; ok {
		return false
	}
	stored := make([]nordpool.Entry, len(entries))
	copy(stored, entries)
	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].DeliveryStart.Before(stored[j].DeliveryStart)
	})
	t.data[date] = stored

	t.notify(t.currentIntervalPrice(t.now()))
	return true
}

// CurrentIntervalPrice averages the entries delivered within the hour
// containing now. Prices are converted to currency per kWh including tax.
func (t *Table) CurrentIntervalPrice(now time.Time) (nordpool.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	price := t.currentIntervalPrice(now)
	if price == nil {
		return nordpool.Entry{}, false
	}
	return *price, true
}

// PublishCurrent recomputes the current price and passes it to the notifier
// even when nothing changed, so consumers see a fresh value every hour.
func (t *Table) PublishCurrent() (nordpool.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	price := t.currentIntervalPrice(t.now())
	t.notify(price)
	if price == nil {
		return nordpool.Entry{}, false
	}
	return *price, true
}

func (t *Table) PurgeDate(date nordpool.Date) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.data[date]; !ok {
		return false
	}
	delete(t.data, date)
	return true
}

// Entries returns a copy of the stored entries, keyed by date.
func (t *Table) Entries() map[nordpool.Date][]nordpool.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make(map[nordpool.Date][]nordpool.Entry, len(t.data))
	for date, entries := range t.data {
		result[date] = append([]nordpool.Entry(nil), entries...)
	}
	return result
}

func (t *Table) currentIntervalPrice(now time.Time) *nordpool.Entry {
	local := now.In(t.loc)
	entries, ok := t.data[nordpool.DateOf(local)]
	if !ok {
		return nil
	}

	// wall clock hour, zones with half hour offsets included
	start := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, t.loc)
	end := start.Add(time.Hour)

	var matched []nordpool.Entry
	for _, e := range entries {
		if !e.DeliveryStart.Before(start) && !e.DeliveryEnd.After(end) {
			matched = append(matched, e)
		}
	}
	return average(matched)
}

// average only reports areas that are present in the first entry and in
// every other matched entry.
func average(entries []nordpool.Entry) *nordpool.Entry {
	if len(entries) == 0 {
		return nil
	}

	result := nordpool.Entry{
		DeliveryStart: entries[0].DeliveryStart,
		DeliveryEnd:   entries[0].DeliveryEnd,
		PricePerArea:  make(map[string]float64),
	}
	for _, e := range entries[1:] {
		if e.DeliveryStart.Before(result.DeliveryStart) {
			result.DeliveryStart = e.DeliveryStart
		}
		if e.DeliveryEnd.After(result.DeliveryEnd) {
			result.DeliveryEnd = e.DeliveryEnd
		}
	}

	for area := range entries[0].PricePerArea {
		sum := 0.0
		complete := true
		for _, e := range entries {
			price, ok := e.PricePerArea[area]
			if !ok {
				complete = false
				break
			}
			sum += price
		}
		if complete {
			result.PricePerArea[area] = sum / float64(len(entries)) / unitDivisor * taxMultiplier
		}
	}
	return &result
}
