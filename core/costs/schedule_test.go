package costs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResetSchedule(t *testing.T) {
	for input, want := range map[string]ResetSchedule{
		"":        ResetNone,
		"None":    ResetNone,
		"daily":   ResetDaily,
		"Monthly": ResetMonthly,
		"YEARLY":  ResetYearly,
	} {
		got, err := ParseResetSchedule(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseResetSchedule("hourly")
	assert.Error(t, err)
}

func TestCronSpec(t *testing.T) {
	assert.Equal(t, "", ResetNone.CronSpec())
	assert.Equal(t, "0 0 * * *", ResetDaily.CronSpec())
	assert.Equal(t, "0 0 1 * *", ResetMonthly.CronSpec())
	assert.Equal(t, "0 0 1 1 *", ResetYearly.CronSpec())
	assert.Equal(t, "monthly", ResetMonthly.String())
}
