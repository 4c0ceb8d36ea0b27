// README: Fleet handlers for driver and rider registration and listing.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rideservice/internal/modules/driver"
	"rideservice/internal/modules/rider"
	"rideservice/internal/storage"
	"rideservice/internal/types"
)

type FleetHandler struct {
	store storage.Store
}

func NewFleetHandler(store storage.Store) *FleetHandler {
	return &FleetHandler{store: store}
}

type registerDriverReq struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type registerRiderReq struct {
	Name    string  `json:"name"`
	HomeLat float64 `json:"home_lat"`
	HomeLng float64 `json:"home_lng"`
}

type driverView struct {
	DriverID     types.ID      `json:"driver_id"`
	Name         string        `json:"name"`
	Status       driver.Status `json:"status"`
	Pos          types.Point   `json:"pos"`
	ActiveRideID *types.ID     `json:"active_ride_id,omitempty"`
}

func (h *FleetHandler) RegisterDriver(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(c, http.StatusBadRequest, "missing name")
		return
	}
	d := &driver.Driver{
		ID:     types.ID(uuid.NewString()),
		Name:   req.Name,
		Pos:    types.Point{Lat: req.Lat, Lng: req.Lng},
		Status: driver.StatusIdle,
	}
	if err := h.store.CreateDriver(c.Request.Context(), d); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"driver_id": d.ID, "status": d.Status})
}

func (h *FleetHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.store.ListDrivers(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]driverView, 0, len(drivers))
	for _, d := range drivers {
		views = append(views, driverView{
			DriverID:     d.ID,
			Name:         d.Name,
			Status:       d.Status,
			Pos:          d.Pos,
			ActiveRideID: d.ActiveRideID,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"drivers": views})
}

func (h *FleetHandler) RegisterRider(c *gin.Context) {
	var req registerRiderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(c, http.StatusBadRequest, "missing name")
		return
	}
	r := &rider.Rider{
		ID:   types.ID(uuid.NewString()),
		Name: req.Name,
		Home: types.Point{Lat: req.HomeLat, Lng: req.HomeLng},
	}
	if err := h.store.CreateRider(c.Request.Context(), r); err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"rider_id": r.ID})
}

func (h *FleetHandler) ListRiders(c *gin.Context) {
	riders, err := h.store.ListRiders(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"riders": riders})
}
