package memorystate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yob/home-energy/core/homestate"
)

type State struct {
	data *sync.Map
}

func New() *State {
	return &State{
		data: &sync.Map{},
	}
}

func (state *State) Read(key string) (string, bool) {
	if value, ok := state.data.Load(key); ok {
		return value.(string), true
	}
	return "", false
}

func (state *State) ReadFloat64(key string) (float64, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseFloat64(value)
	}
	return 0, false
}

func (state *State) ReadDecimal(key string) (decimal.Decimal, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseDecimal(value)
	}
	return decimal.Zero, false
}

func (state *State) ReadTime(key string) (time.Time, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseTime(value)
	}
	return time.Time{}, false
}

func (state *State) ReadOnly() homestate.StateReader {
	return homestate.NewReadOnly(state)
}

func (state *State) Store(key string, value string) error {
	state.data.Store(key, value)
	return nil
}

func (state *State) StoreMulti(updates map[string]string) error {
	for key, value := range updates {
		state.data.Store(key, value)
	}
	return nil
}

func (state *State) Remove(key string) error {
	state.data.Delete(key)
	return nil
}
