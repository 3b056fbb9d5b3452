package travel

import "time"

// =============================================================================
// PERIODICITY - how often a company's reviewed data auto-publishes
// =============================================================================

type Periodicity string

const (
	PeriodicityMonthly    Periodicity = "monthly"
	PeriodicityQuarterly  Periodicity = "quarterly"
	PeriodicitySemiannual Periodicity = "semiannual"
	PeriodicityAnnual     Periodicity = "annual"
)

// Delta returns the release interval for the periodicity. Unknown values
// fall back to quarterly, the default for new companies.
func (p Periodicity) Delta() time.Duration {
	switch p {
	case PeriodicityMonthly:
		return 30 * 24 * time.Hour
	case PeriodicityQuarterly:
		return 90 * 24 * time.Hour
	case PeriodicitySemiannual:
		return 180 * 24 * time.Hour
	case PeriodicityAnnual:
		return 365 * 24 * time.Hour
	default:
		return 90 * 24 * time.Hour
	}
}

// Valid reports whether p is one of the four known intervals.
func (p Periodicity) Valid() bool {
	switch p {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicitySemiannual, PeriodicityAnnual:
		return true
	}
	return false
}
