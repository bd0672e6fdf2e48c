package domain

import "time"

type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// UptimeRecord accumulates the results of one service inside one calendar
// period. CoverageStart and LastCheck bound the time actually observed.
type UptimeRecord struct {
	Service       string    `json:"service"`
	Period        Period    `json:"period"`
	PeriodStart   time.Time `json:"period_start"`
	TotalChecks   int64     `json:"total_checks"`
	HealthyChecks int64     `json:"healthy_checks"`
	OutageSeconds float64   `json:"outage_seconds"`
	CoverageStart time.Time `json:"coverage_start"`
	LastCheck     time.Time `json:"last_check"`
}

// Ratio is the observed availability in [0,1]: the share of observed time
// not spent in outage. An empty record counts as fully available.
func (r UptimeRecord) Ratio() float64 {
	observed := r.LastCheck.Sub(r.CoverageStart).Seconds()
	if observed <= 0 {
		if r.OutageSeconds > 0 {
			return 0
		}
		return 1
	}
	ratio := (observed - r.OutageSeconds) / observed
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}
