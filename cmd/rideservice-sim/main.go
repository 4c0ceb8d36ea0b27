// README: Simulation runner; seeds a virtual fleet and prints summary statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rideservice/internal/logging"
	"rideservice/internal/sim"
)

func main() {
	opts := sim.DefaultOptions()
	flag.IntVar(&opts.Riders, "riders", opts.Riders, "number of riders to seed")
	flag.IntVar(&opts.Drivers, "drivers", opts.Drivers, "number of drivers to seed")
	flag.IntVar(&opts.Days, "days", opts.Days, "number of simulated days")
	flag.Float64Var(&opts.CancelRate, "cancel-rate", opts.CancelRate, "chance an assigned ride is cancelled before start")
	flag.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log := logging.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := sim.New(opts, log).Run(ctx)
	if err != nil {
		log.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\n=== SIMULATION SUMMARY ===")
	fmt.Printf("Total rides:      %d\n", summary.TotalRides)
	fmt.Printf("Completed rides:  %d\n", summary.CompletedRides)
	fmt.Printf("Cancelled rides:  %d\n", summary.CancelledRides)
	fmt.Printf("Unmatched rides:  %d\n", summary.PendingRides)
	fmt.Printf("Total revenue:    %.2f\n", summary.TotalRevenue)
	fmt.Printf("Avg fare:         %.2f\n", summary.AvgFare)
	fmt.Printf("Avg wait:         %.2f min\n", summary.AvgWaitMin)
	fmt.Printf("Avg trip:         %.2f min\n", summary.AvgTripMin)

	fmt.Println("\n--- DRIVER STATISTICS ---")
	for _, d := range summary.Drivers {
		fmt.Printf("%s (%s): rides=%d cancelled=%d total_fare=%.2f avg_fare=%.2f km=%.2f\n",
			d.Name, d.DriverID, d.CompletedRides, d.CancelledRides, d.TotalFare, d.AvgFare, d.TotalKm)
	}
}
