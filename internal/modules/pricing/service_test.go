// README: Fare calculator tests (determinism, clamping, config lookup).
package pricing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculate(t *testing.T) {
	rates := Rates{BaseFare: 50, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}

	cases := []struct {
		name string
		in   FareInput
		want float64
	}{
		{
			name: "standard trip",
			in:   FareInput{DistanceKm: 10, Duration: 20 * time.Minute, Wait: 2 * time.Minute},
			want: 192,
		},
		{
			name: "zero trip charges base fare only",
			in:   FareInput{},
			want: 50,
		},
		{
			name: "negative inputs clamp to zero",
			in:   FareInput{DistanceKm: -3, Duration: -5 * time.Minute, Wait: -time.Minute},
			want: 50,
		},
		{
			name: "fractional distance rounds to cents",
			in:   FareInput{DistanceKm: 1.234, Duration: time.Minute},
			want: 64.34, // 50 + 12.34 + 2
		},
		{
			name: "sub-minute durations count fractionally",
			in:   FareInput{Duration: 30 * time.Second},
			want: 51,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Calculate(tc.in, rates)
			if got.Total != tc.want {
				t.Errorf("Calculate(%+v).Total = %v, want %v", tc.in, got.Total, tc.want)
			}
		})
	}
}

func TestCalculateDeterministic(t *testing.T) {
	rates := Rates{BaseFare: 50, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}
	in := FareInput{DistanceKm: 10, Duration: 20 * time.Minute, Wait: 2 * time.Minute}

	first := Calculate(in, rates)
	for i := 0; i < 100; i++ {
		if got := Calculate(in, rates); got != first {
			t.Fatalf("iteration %d: Calculate returned %+v, want %+v", i, got, first)
		}
	}
	if first.Total != 192 {
		t.Fatalf("Total = %v, want 192", first.Total)
	}
}

func TestCalculateBreakdown(t *testing.T) {
	rates := Rates{BaseFare: 20, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}
	got := Calculate(FareInput{DistanceKm: 5, Duration: 10 * time.Minute, Wait: 3 * time.Minute}, rates)

	if got.Base != 20 || got.Distance != 50 || got.Time != 20 || got.Waiting != 3 {
		t.Errorf("breakdown = %+v, want base=20 distance=50 time=20 waiting=3", got)
	}
	if got.Total != 93 {
		t.Errorf("Total = %v, want 93", got.Total)
	}
}

type staticRates struct {
	rates Rates
	err   error
}

func (s staticRates) PricingRates(context.Context) (Rates, error) {
	return s.rates, s.err
}

func TestFareForMissingConfig(t *testing.T) {
	svc := NewService(staticRates{err: ErrConfigMissing})
	_, err := svc.FareFor(context.Background(), FareInput{DistanceKm: 1})
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestFareForUsesConfiguredRates(t *testing.T) {
	svc := NewService(staticRates{rates: Rates{BaseFare: 20, PerKm: 10, PerMinute: 2, PerWaitMinute: 1}})
	fare, err := svc.FareFor(context.Background(), FareInput{DistanceKm: 2, Duration: 4 * time.Minute})
	if err != nil {
		t.Fatalf("FareFor: %v", err)
	}
	if fare.Total != 48 {
		t.Errorf("Total = %v, want 48", fare.Total)
	}
}
