package handler

import (
	"net/http"

	"tcpgateway/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
)

// StatsSource is satisfied by *tcp.ConnectionManager
type StatsSource interface {
	Stats() tcp.Stats
}

type StatsHandler struct {
	source StatsSource
}

func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

func (h *StatsHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/check-conn", h.CheckConn)
	r.GET("/stats", h.Stats)
}

func (h *StatsHandler) CheckConn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *StatsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Stats())
}
