package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/game"
)

// GetConfig returns the pitch and physics values the renderer needs
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		lo, hi := game.GoalBand()
		c.JSON(http.StatusOK, gin.H{
			"pitch_width":     game.PitchWidth,
			"pitch_height":    game.PitchHeight,
			"goal_band":       []float64{lo, hi},
			"player_radius":   game.PlayerRadius,
			"ball_radius":     game.BallRadius,
			"max_power":       game.MaxPower,
			"viewport_margin": game.DefaultViewportMargin,
			"winning_score":   cfg.WinningScore,
			"tick_rate_hz":    cfg.TickRateHz,
			"broadcast_hz":    cfg.BroadcastHz,
		})
	}
}
