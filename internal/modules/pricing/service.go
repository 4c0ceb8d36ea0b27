// README: Pricing service computes fares from the active rate configuration.
package pricing

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrConfigMissing is returned when no active pricing configuration exists.
// A ride cannot complete without a fare, so callers must surface this.
var ErrConfigMissing = errors.New("pricing configuration missing")

// RatesSource yields the active pricing configuration.
type RatesSource interface {
	PricingRates(ctx context.Context) (Rates, error)
}

type Service struct {
	rates RatesSource
}

func NewService(rates RatesSource) *Service {
	return &Service{rates: rates}
}

// FareFor looks up the active rates and computes the fare for in.
func (s *Service) FareFor(ctx context.Context, in FareInput) (Fare, error) {
	rates, err := s.rates.PricingRates(ctx)
	if err != nil {
		return Fare{}, err
	}
	return Calculate(in, rates), nil
}

// Calculate is a pure function of its inputs: identical inputs always yield
// the identical fare. Negative distances and durations (clock skew, degenerate
// trips) are clamped to zero rather than rejected.
func Calculate(in FareInput, rates Rates) Fare {
	distanceKm := math.Max(in.DistanceKm, 0)
	durationMin := clampMinutes(in.Duration)
	waitMin := clampMinutes(in.Wait)

	f := Fare{
		Base:     rates.BaseFare,
		Distance: distanceKm * rates.PerKm,
		Time:     durationMin * rates.PerMinute,
		Waiting:  waitMin * rates.PerWaitMinute,
	}
	f.Total = round2(f.Base + f.Distance + f.Time + f.Waiting)
	return f
}

func clampMinutes(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
