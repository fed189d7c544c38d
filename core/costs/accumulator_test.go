package costs

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func fixedTariff(value string) *Tariff {
	tariff := NewTariff()
	tariff.Set(d(value))
	return tariff
}

type emitted struct {
	values []string
}

func (e *emitted) emit(cost decimal.Decimal) {
	e.values = append(e.values, cost.StringFixed(4))
}

func TestSpikeWithinWindowIsRejected(t *testing.T) {
	out := &emitted{}
	acc := NewAccumulator(decimal.Zero, fixedTariff("2.0"), out.emit)

	assert.Equal(t, Baseline, acc.ApplySample(t0, d("100")).Outcome)

	result := acc.ApplySample(t0.Add(30*time.Second), d("110"))
	assert.Equal(t, Spike, result.Outcome)
	assert.True(t, d("10").Equal(result.Delta))
	assert.Equal(t, 30*time.Second, result.Elapsed)
	assert.True(t, acc.Cost().IsZero())
	assert.Empty(t, out.values)
}

func TestLargeDeltaAfterWindowIsAccepted(t *testing.T) {
	out := &emitted{}
	acc := NewAccumulator(decimal.Zero, fixedTariff("2.0"), out.emit)

	acc.ApplySample(t0, d("100"))
	result := acc.ApplySample(t0.Add(90*time.Second), d("110"))

	assert.Equal(t, Accepted, result.Outcome)
	assert.True(t, d("20").Equal(acc.Cost()))
	assert.Equal(t, []string{"20.0000"}, out.values)
}

func TestSmallDeltaWithinWindowIsAccepted(t *testing.T) {
	acc := NewAccumulator(decimal.Zero, fixedTariff("1.5"), nil)

	acc.ApplySample(t0, d("100"))
	acc.ApplySample(t0.Add(5*time.Second), d("100.2"))
	result := acc.ApplySample(t0.Add(10*time.Second), d("100.5"))

	assert.Equal(t, Accepted, result.Outcome)
	assert.True(t, d("0.75").Equal(acc.Cost()), "got %s", acc.Cost())
}

func TestNegativeSpikeIsRejected(t *testing.T) {
	acc := NewAccumulator(decimal.Zero, fixedTariff("1"), nil)

	acc.ApplySample(t0, d("500"))
	assert.Equal(t, Spike, acc.ApplySample(t0.Add(time.Second), d("0")).Outcome)

	// the baseline is still the pre-spike reading
	result := acc.ApplySample(t0.Add(2*time.Second), d("501"))
	assert.Equal(t, Accepted, result.Outcome)
	assert.True(t, d("1").Equal(acc.Cost()))
}

func TestSpikeWindowCountsFromLastAcceptedSample(t *testing.T) {
	acc := NewAccumulator(decimal.Zero, fixedTariff("1"), nil)

	acc.ApplySample(t0, d("100"))
	assert.Equal(t, Spike, acc.ApplySample(t0.Add(50*time.Second), d("120")).Outcome)
	assert.Equal(t, Accepted, acc.ApplySample(t0.Add(61*time.Second), d("120")).Outcome)
	assert.True(t, d("20").Equal(acc.Cost()))
}

func TestResetKeepsBaseline(t *testing.T) {
	out := &emitted{}
	acc := NewAccumulator(decimal.Zero, fixedTariff("2"), out.emit)

	acc.ApplySample(t0, d("100"))
	acc.ApplySample(t0.Add(2*time.Minute), d("105"))
	require.True(t, d("10").Equal(acc.Cost()))

	acc.Reset()
	assert.True(t, acc.Cost().IsZero())

	acc.ApplySample(t0.Add(4*time.Minute), d("106"))
	assert.True(t, d("2").Equal(acc.Cost()))
	assert.Equal(t, []string{"10.0000", "0.0000", "2.0000"}, out.values)
}

func TestUnknownTariffAdvancesBaseline(t *testing.T) {
	tariff := NewTariff()
	acc := NewAccumulator(d("3.5"), tariff, nil)

	acc.ApplySample(t0, d("100"))
	result := acc.ApplySample(t0.Add(2*time.Minute), d("101"))
	assert.Equal(t, NoTariff, result.Outcome)
	assert.True(t, d("3.5").Equal(acc.Cost()))

	tariff.Set(d("1"))
	acc.ApplySample(t0.Add(3*time.Minute), d("102"))
	assert.True(t, d("4.5").Equal(acc.Cost()))
}

func TestApplyStateRejectsMalformedValues(t *testing.T) {
	acc := NewAccumulator(decimal.Zero, fixedTariff("1"), nil)

	_, err := acc.ApplyState(t0, "unavailable")
	assert.True(t, errors.Is(err, ErrInvalidReading))

	result, err := acc.ApplyState(t0, "100")
	require.NoError(t, err)
	assert.Equal(t, Baseline, result.Outcome)

	_, err = acc.ApplyState(t0.Add(time.Minute), "")
	assert.Error(t, err)

	result, err = acc.ApplyState(t0.Add(2*time.Minute), "101")
	require.NoError(t, err)
	assert.Equal(t, Accepted, result.Outcome)
	assert.True(t, d("1").Equal(acc.Cost()))
}

func TestInitialCost(t *testing.T) {
	assert.True(t, d("12.3456").Equal(InitialCost("12.3456", true)))
	assert.True(t, InitialCost("-1", true).IsZero())
	assert.True(t, InitialCost("unknown", true).IsZero())
	assert.True(t, InitialCost("5", false).IsZero())
}

func TestTariffKeepsLastValidValue(t *testing.T) {
	tariff := NewTariff()
	_, ok := tariff.CurrentTariff()
	assert.False(t, ok)

	require.NoError(t, tariff.SetState("1.25"))
	assert.Error(t, tariff.SetState("unavailable"))

	price, ok := tariff.CurrentTariff()
	assert.True(t, ok)
	assert.True(t, d("1.25").Equal(price))
}
