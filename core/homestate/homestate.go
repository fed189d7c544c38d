package homestate

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Unavailable is the value published when a sensor has no usable reading.
const Unavailable = "unavailable"

// State holds the latest value of every entity, keyed by entity id
// (e.g. sensor.kitchen_energy_cost). Only the statebus writes to it.
type State interface {
	StateReader
	Store(string, string) error
	StoreMulti(map[string]string) error
	Remove(string) error
	ReadOnly() StateReader
}

type StateReader interface {
	Read(string) (string, bool)
	ReadFloat64(string) (float64, bool)
	ReadDecimal(string) (decimal.Decimal, bool)
	ReadTime(string) (time.Time, bool)
}

// ParseFloat64 converts a stored value. "unavailable", "unknown" and other
// non numeric values are reported as missing.
func ParseFloat64(value string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func ParseDecimal(value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func ParseTime(value string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// readOnly wraps a writeable state so adapters can be handed a reader
// without being able to bypass the statebus.
type readOnly struct {
	state StateReader
}

func NewReadOnly(state StateReader) StateReader {
	return &readOnly{state: state}
}

func (r *readOnly) Read(key string) (string, bool) {
	return r.state.Read(key)
}

func (r *readOnly) ReadFloat64(key string) (float64, bool) {
	return r.state.ReadFloat64(key)
}

func (r *readOnly) ReadDecimal(key string) (decimal.Decimal, bool) {
	return r.state.ReadDecimal(key)
}

func (r *readOnly) ReadTime(key string) (time.Time, bool) {
	return r.state.ReadTime(key)
}
