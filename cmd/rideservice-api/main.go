// README: Entry point; loads config, wires services, starts HTTP server and the dispatch scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rideservice/internal/config"
	"rideservice/internal/events"
	httptransport "rideservice/internal/http"
	"rideservice/internal/infra"
	"rideservice/internal/logging"
	"rideservice/internal/modules/dispatch"
	"rideservice/internal/modules/location"
	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Error("postgres init failed", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if cfg.DB.Migrate {
		if err := infra.Migrate(ctx, dbPool, "migrations"); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	// The GEO index is optional; without Redis the store falls back to a
	// table scan with haversine filtering.
	var geo *location.Index
	if cfg.Redis.Addr != "" {
		redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Error("redis init failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		geo = location.NewIndex(redisClient)
	}

	var pub events.Publisher = events.NoopPublisher{}
	if cfg.AMQP.URL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQP.URL)
		if err != nil {
			log.Error("rabbitmq init failed", "error", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		pub = amqpPub
	}

	store := storage.NewPostgresStore(dbPool, geo)
	if _, err := store.PricingRates(ctx); errors.Is(err, pricing.ErrConfigMissing) {
		seed := pricing.Rates{
			BaseFare:      cfg.Pricing.BaseFare,
			PerKm:         cfg.Pricing.PerKm,
			PerMinute:     cfg.Pricing.PerMinute,
			PerWaitMinute: cfg.Pricing.PerWaitMinute,
		}
		if err := store.SeedPricingRates(ctx, seed); err != nil {
			log.Error("pricing seed failed", "error", err)
			os.Exit(1)
		}
		log.Info("pricing configuration seeded", "base_fare", seed.BaseFare)
	}

	pricingSvc := pricing.NewService(store)
	rideSvc := ride.NewService(store, pricingSvc, pub, log)
	dispatcher := dispatch.NewDispatcher(store, cfg.Dispatch, log, pub)
	scheduler := dispatch.NewScheduler(store, dispatcher,
		time.Duration(cfg.Dispatch.IntervalSeconds)*time.Second, log)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(rideSvc, store, log),
	}

	go scheduler.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
