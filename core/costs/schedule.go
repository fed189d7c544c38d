package costs

import (
	"fmt"
	"strings"
)

// ResetSchedule is how often a cost sensor starts again from zero.
type ResetSchedule int

const (
	ResetNone ResetSchedule = iota
	ResetDaily
	ResetMonthly
	ResetYearly
)

func ParseResetSchedule(value string) (ResetSchedule, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return ResetNone, nil
	case "daily":
		return ResetDaily, nil
	case "monthly":
		return ResetMonthly, nil
	case "yearly":
		return ResetYearly, nil
	default:
		return ResetNone, fmt.Errorf("costs: unknown reset schedule %q", value)
	}
}

// CronSpec is the five field cron expression for the schedule, evaluated in
// local time. ResetNone has no spec.
func (r ResetSchedule) CronSpec() string {
	switch r {
	case ResetDaily:
		return "0 0 * * *"
	case ResetMonthly:
		return "0 0 1 * *"
	case ResetYearly:
		return "0 0 1 1 *"
	default:
		return ""
	}
}

func (r ResetSchedule) String() string {
	switch r {
	case ResetDaily:
		return "daily"
	case ResetMonthly:
		return "monthly"
	case ResetYearly:
		return "yearly"
	default:
		return "none"
	}
}
