// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rideservice/internal/http/handlers"
	"rideservice/internal/http/middleware"
	"rideservice/internal/modules/ride"
	"rideservice/internal/storage"
)

func NewRouter(rideSvc *ride.Service, store storage.Store, log *slog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	rideHandler := handlers.NewRideHandler(rideSvc)
	r.POST("/api/rides", rideHandler.Create)
	r.GET("/api/rides", rideHandler.List)
	r.GET("/api/rides/:id", rideHandler.Get)
	r.POST("/api/rides/:id/arrive", rideHandler.Arrive)
	r.POST("/api/rides/:id/start", rideHandler.Start)
	r.POST("/api/rides/:id/complete", rideHandler.Complete)
	r.POST("/api/rides/:id/cancel", rideHandler.Cancel)

	fleetHandler := handlers.NewFleetHandler(store)
	r.POST("/api/drivers", fleetHandler.RegisterDriver)
	r.GET("/api/drivers", fleetHandler.ListDrivers)
	r.POST("/api/riders", fleetHandler.RegisterRider)
	r.GET("/api/riders", fleetHandler.ListRiders)

	summaryHandler := handlers.NewSummaryHandler(rideSvc)
	r.GET("/api/metrics", summaryHandler.Get)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
