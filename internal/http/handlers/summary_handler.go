// README: Summary handler exposing aggregated ride statistics.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideservice/internal/modules/ride"
)

type SummaryHandler struct {
	rides *ride.Service
}

func NewSummaryHandler(svc *ride.Service) *SummaryHandler {
	return &SummaryHandler{rides: svc}
}

func (h *SummaryHandler) Get(c *gin.Context) {
	sum, err := h.rides.Summarize(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sum)
}
