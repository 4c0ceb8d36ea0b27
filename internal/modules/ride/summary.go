// README: Aggregated ride and per-driver statistics for the reporting endpoint.
package ride

import (
	"context"
	"math"
	"sort"

	"rideservice/internal/types"
)

type DriverSummary struct {
	DriverID       types.ID `json:"driver_id"`
	Name           string   `json:"name"`
	CompletedRides int      `json:"completed_rides"`
	CancelledRides int      `json:"cancelled_rides"`
	TotalFare      float64  `json:"total_fare"`
	AvgFare        float64  `json:"avg_fare"`
	TotalKm        float64  `json:"total_km"`
}

type Summary struct {
	TotalRides     int     `json:"total_rides"`
	PendingRides   int     `json:"pending_rides"`
	ActiveRides    int     `json:"active_rides"`
	CompletedRides int     `json:"completed_rides"`
	CancelledRides int     `json:"cancelled_rides"`
	TotalRevenue   float64 `json:"total_revenue"`
	AvgFare        float64 `json:"avg_fare"`
	AvgDistanceKm  float64 `json:"avg_distance_km"`
	AvgWaitMin     float64 `json:"avg_wait_min"`
	AvgTripMin     float64 `json:"avg_trip_min"`

	Drivers []DriverSummary `json:"drivers"`
}

// Summarize walks every ride once and folds the numbers. Averages cover
// completed rides only; wait is arrival to start, trip is start to completion.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	rides, err := s.store.ListRides(ctx)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[types.ID]string, len(drivers))
	for _, d := range drivers {
		names[d.ID] = d.Name
	}

	sum := &Summary{}
	perDriver := make(map[types.ID]*DriverSummary)
	driverStats := func(id types.ID) *DriverSummary {
		ds, ok := perDriver[id]
		if !ok {
			ds = &DriverSummary{DriverID: id, Name: names[id]}
			perDriver[id] = ds
		}
		return ds
	}

	var waitMin, tripMin float64
	var waitN, tripN int
	for _, r := range rides {
		sum.TotalRides++
		switch r.Status {
		case StatusCreated:
			sum.PendingRides++
		case StatusAssigned, StatusDriverArrived, StatusStarted:
			sum.ActiveRides++
		case StatusCancelled:
			sum.CancelledRides++
			if r.DriverID != nil {
				driverStats(*r.DriverID).CancelledRides++
			}
		case StatusCompleted:
			sum.CompletedRides++
			sum.AvgDistanceKm += r.DistanceKm
			if r.Fare != nil {
				sum.TotalRevenue += r.Fare.Total
			}
			if r.ArrivedAt != nil && r.StartedAt != nil {
				waitMin += r.StartedAt.Sub(*r.ArrivedAt).Minutes()
				waitN++
			}
			if r.StartedAt != nil && r.CompletedAt != nil {
				tripMin += r.CompletedAt.Sub(*r.StartedAt).Minutes()
				tripN++
			}
			if r.DriverID != nil {
				ds := driverStats(*r.DriverID)
				ds.CompletedRides++
				ds.TotalKm += r.DistanceKm
				if r.Fare != nil {
					ds.TotalFare += r.Fare.Total
				}
			}
		}
	}

	if sum.CompletedRides > 0 {
		sum.AvgFare = round2(sum.TotalRevenue / float64(sum.CompletedRides))
		sum.AvgDistanceKm = round2(sum.AvgDistanceKm / float64(sum.CompletedRides))
	}
	if waitN > 0 {
		sum.AvgWaitMin = round2(waitMin / float64(waitN))
	}
	if tripN > 0 {
		sum.AvgTripMin = round2(tripMin / float64(tripN))
	}
	sum.TotalRevenue = round2(sum.TotalRevenue)

	sum.Drivers = make([]DriverSummary, 0, len(perDriver))
	for _, ds := range perDriver {
		if ds.CompletedRides > 0 {
			ds.AvgFare = round2(ds.TotalFare / float64(ds.CompletedRides))
		}
		ds.TotalFare = round2(ds.TotalFare)
		ds.TotalKm = round2(ds.TotalKm)
		sum.Drivers = append(sum.Drivers, *ds)
	}
	sort.Slice(sum.Drivers, func(i, j int) bool { return sum.Drivers[i].DriverID < sum.Drivers[j].DriverID })
	return sum, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
