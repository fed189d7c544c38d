package pricetable

import (
	"strconv"
	"sync"

	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/nordpool"
)

const (
	// SubsidyThreshold is the price per kWh above which 90% of the excess
	// is covered.
	SubsidyThreshold = 0.9375
	subsidyShare     = 0.1
)

// Broadcaster fans the table's current price out to every subscriber in
// the order it was produced.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers []Notifier
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Subscribe(fn Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Notify has the Notifier signature so it can be handed to New.
func (b *Broadcaster) Notify(price *nordpool.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, fn := range b.subscribers {
		fn(price)
	}
}

// AreaState formats the area's price with two decimals, or "unavailable".
func AreaState(price *nordpool.Entry, area string) string {
	if price == nil {
		return homestate.Unavailable
	}
	value, ok := price.PricePerArea[area]
	if !ok {
		return homestate.Unavailable
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func Subsidized(price float64) float64 {
	if price <= SubsidyThreshold {
		return price
	}
	return SubsidyThreshold + subsidyShare*(price-SubsidyThreshold)
}

// SubsidizedState derives the subsidized sensor state from the price
// sensor state.
func SubsidizedState(state string) string {
	price, ok := homestate.ParseFloat64(state)
	if !ok {
		return homestate.Unavailable
	}
	return strconv.FormatFloat(Subsidized(price), 'f', 2, 64)
}
