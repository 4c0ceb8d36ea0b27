// README: Pricing rates and fare breakdown definitions.
package pricing

import "time"

// Rate keys as stored in the pricing_config key-value table.
const (
	KeyBaseFare      = "base_fare"
	KeyPerKm         = "rate_per_km"
	KeyPerMinute     = "rate_per_minute"
	KeyPerWaitMinute = "waiting_charge_per_minute"
)

// Rates is the active pricing configuration, immutable once fetched for a
// given fare computation.
type Rates struct {
	BaseFare      float64
	PerKm         float64
	PerMinute     float64
	PerWaitMinute float64
}

// FareInput captures everything a fare depends on.
type FareInput struct {
	DistanceKm float64
	Duration   time.Duration
	Wait       time.Duration
}

// Fare is a computed fare with its component breakdown.
type Fare struct {
	Base     float64
	Distance float64
	Time     float64
	Waiting  float64
	Total    float64
}
