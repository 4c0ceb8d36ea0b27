// README: Ride handlers for create/get/list and lifecycle commands.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideservice/internal/modules/pricing"
	"rideservice/internal/modules/ride"
	"rideservice/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	RiderID    string  `json:"rider_id"`
	PickupLat  float64 `json:"pickup_lat"`
	PickupLng  float64 `json:"pickup_lng"`
	DropoffLat float64 `json:"dropoff_lat"`
	DropoffLng float64 `json:"dropoff_lng"`
}

type cancelRideReq struct {
	Reason string `json:"reason"`
}

type rideView struct {
	RideID      types.ID      `json:"ride_id"`
	RiderID     types.ID      `json:"rider_id"`
	DriverID    *types.ID     `json:"driver_id,omitempty"`
	Status      ride.Status   `json:"status"`
	Pickup      types.Point   `json:"pickup"`
	Dropoff     types.Point   `json:"dropoff"`
	DistanceKm  float64       `json:"distance_km"`
	Fare        *pricing.Fare `json:"fare,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	AssignedAt  *time.Time    `json:"assigned_at,omitempty"`
	ArrivedAt   *time.Time    `json:"arrived_at,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
}

func toRideView(r *ride.Ride) rideView {
	return rideView{
		RideID:      r.ID,
		RiderID:     r.RiderID,
		DriverID:    r.DriverID,
		Status:      r.Status,
		Pickup:      r.Pickup,
		Dropoff:     r.Dropoff,
		DistanceKm:  r.DistanceKm,
		Fare:        r.Fare,
		CreatedAt:   r.CreatedAt,
		AssignedAt:  r.AssignedAt,
		ArrivedAt:   r.ArrivedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CancelledAt: r.CancelledAt,
	}
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RiderID == "" {
		writeError(c, http.StatusBadRequest, "missing rider_id")
		return
	}
	id, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RiderID: types.ID(req.RiderID),
		Pickup:  types.Point{Lat: req.PickupLat, Lng: req.PickupLng},
		Dropoff: types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"ride_id": id, "status": ride.StatusCreated})
}

func (h *RideHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideView(r))
}

func (h *RideHandler) List(c *gin.Context) {
	rides, err := h.rides.List(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	views := make([]rideView, 0, len(rides))
	for _, r := range rides {
		views = append(views, toRideView(r))
	}
	writeJSON(c, http.StatusOK, map[string]any{"rides": views})
}

func (h *RideHandler) Arrive(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	if err := h.rides.Arrive(c.Request.Context(), types.ID(id)); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": ride.StatusDriverArrived})
}

func (h *RideHandler) Start(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	if err := h.rides.Start(c.Request.Context(), types.ID(id)); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": ride.StatusStarted})
}

func (h *RideHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	if err := h.rides.Complete(c.Request.Context(), types.ID(id)); err != nil {
		writeRideError(c, err)
		return
	}
	r, err := h.rides.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideView(r))
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	var req cancelRideReq
	if c.Request.Body != nil {
		_ = c.ShouldBindJSON(&req)
	}
	if req.Reason == "" {
		req.Reason = "user_cancel"
	}
	err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID: types.ID(id),
		Reason: req.Reason,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": ride.StatusCancelled})
}
