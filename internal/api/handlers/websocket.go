package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/playmatatu/icepitch/internal/ws"
)

// HandleSessionWebSocket handles real-time session communication
func HandleSessionWebSocket() gin.HandlerFunc {
	return ws.HandleWebSocket
}
