package costs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SpikeWindow = 60 * time.Second
)

var (
	ErrInvalidReading = errors.New("costs: reading is not a number")

	// SpikeDelta is the smallest energy delta treated as a meter glitch when
	// it arrives within SpikeWindow of the previous accepted sample.
	SpikeDelta = decimal.NewFromInt(10)
)

// TariffSource reports the current price per energy unit. ok is false while
// no price is known.
type TariffSource interface {
	CurrentTariff() (price decimal.Decimal, ok bool)
}

type Outcome int

const (
	// Baseline is the first sample, it only sets the reading to diff against.
	Baseline Outcome = iota
	Accepted
	Spike
	// NoTariff advances the baseline without adding cost.
	NoTariff
)

func (o Outcome) String() string {
	switch o {
	case Baseline:
		return "baseline"
	case Accepted:
		return "accepted"
	case Spike:
		return "spike"
	case NoTariff:
		return "no-tariff"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome Outcome
	Delta   decimal.Decimal
	Elapsed time.Duration
	Tariff  decimal.Decimal
	Cost    decimal.Decimal
}

// Accumulator turns energy meter readings into a running cost. Samples must
// be applied in arrival order; all methods are safe for concurrent use.
type Accumulator struct {
	mu             sync.Mutex
	cost           decimal.Decimal
	reading        decimal.Decimal
	hasReading     bool
	lastAcceptedAt time.Time
	tariff         TariffSource
	emit           func(decimal.Decimal)
}

// NewAccumulator starts from initial. emit is called with the new cost after
// every change, with the accumulator locked.
func NewAccumulator(initial decimal.Decimal, tariff TariffSource, emit func(decimal.Decimal)) *Accumulator {
	if emit == nil {
		emit = func(decimal.Decimal) {}
	}
	return &Accumulator{
		cost:   initial,
		tariff: tariff,
		emit:   emit,
	}
}

// InitialCost parses a persisted cost. Missing, malformed and negative
// values start from zero.
func InitialCost(state string, ok bool) decimal.Decimal {
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(state))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func ParseReading(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidReading, value)
	}
	return d, nil
}

func (a *Accumulator) Cost() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cost
}

// ApplySample adds the cost of the energy used since the previous accepted
// reading.
func (a *Accumulator) ApplySample(at time.Time, reading decimal.Decimal) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasReading {
		a.reading = reading
		a.hasReading = true
		a.lastAcceptedAt = at
		return Result{Outcome: Baseline, Cost: a.cost}
	}

	delta := reading.Sub(a.reading)
	elapsed := at.Sub(a.lastAcceptedAt)
	if elapsed < SpikeWindow && delta.Abs().GreaterThanOrEqual(SpikeDelta) {
		return Result{Outcome: Spike, Delta: delta, Elapsed: elapsed, Cost: a.cost}
	}

	a.reading = reading
	a.lastAcceptedAt = at

	tariff, ok := a.tariff.CurrentTariff()
	if !ok {
		return Result{Outcome: NoTariff, Delta: delta, Elapsed: elapsed, Cost: a.cost}
	}

	a.cost = a.cost.Add(delta.Mul(tariff))
	a.emit(a.cost)
	return Result{Outcome: Accepted, Delta: delta, Elapsed: elapsed, Tariff: tariff, Cost: a.cost}
}

// ApplyState parses a raw sensor state before applying it. Malformed values
// leave the accumulator untouched.
func (a *Accumulator) ApplyState(at time.Time, value string) (Result, error) {
	reading, err := ParseReading(value)
	if err != nil {
		return Result{}, err
	}
	return a.ApplySample(at, reading), nil
}

// Reset sets the cost to zero. The meter baseline is kept so the next
// sample is diffed against the last known reading.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cost = decimal.Zero
	a.emit(a.cost)
}
