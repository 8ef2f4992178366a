package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/icepitch/internal/game"
)

// ListFormations returns every formation in the catalog
func ListFormations(c *gin.Context) {
	if game.Manager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game service not ready"})
		return
	}
	formations := game.Manager.Catalog().All()
	c.JSON(http.StatusOK, gin.H{
		"default":    game.DefaultFormation,
		"formations": formations,
	})
}
