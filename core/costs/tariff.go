package costs

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Tariff holds the last valid value of a price sensor.
type Tariff struct {
	mu    sync.RWMutex
	price decimal.Decimal
	known bool
}

func NewTariff() *Tariff {
	return &Tariff{}
}

func (t *Tariff) Set(price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.price = price
	t.known = true
}

// SetState parses a price sensor state. An unparsable state keeps the
// previous price.
func (t *Tariff) SetState(state string) error {
	price, err := ParseReading(state)
	if err != nil {
		return err
	}
	t.Set(price)
	return nil
}

func (t *Tariff) CurrentTariff() (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.price, t.known
}
