package http

import "github.com/gin-gonic/gin"

// Register registers the loan scoring routes. Extra middleware applies to the
// manual recompute route only.
func (h *Handler) Register(rg *gin.RouterGroup, recompute ...gin.HandlerFunc) {
	rg.GET("/loans/:id", h.GetLoan)
	rg.POST("/loans/:id/score", append(recompute, h.ScoreLoan)...)
	rg.GET("/events", h.StreamEvents)
}
