package homestate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseFloat64(t *testing.T) {
	f, ok := ParseFloat64("1.25")
	assert.True(t, ok)
	assert.Equal(t, 1.25, f)

	_, ok = ParseFloat64(Unavailable)
	assert.False(t, ok)
	_, ok = ParseFloat64("unknown")
	assert.False(t, ok)
}

func TestParseDecimal(t *testing.T) {
	d, ok := ParseDecimal("12.3456")
	assert.True(t, ok)
	assert.True(t, decimal.RequireFromString("12.3456").Equal(d))

	_, ok = ParseDecimal("")
	assert.False(t, ok)
}

func TestParseTime(t *testing.T) {
	ts, ok := ParseTime("2025-03-14T10:00:00Z")
	assert.True(t, ok)
	assert.True(t, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC).Equal(ts))

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}
