package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/icepitch/internal/auth"
	"github.com/playmatatu/icepitch/internal/config"
	"github.com/playmatatu/icepitch/internal/game"
	"github.com/playmatatu/icepitch/internal/ws"
)

// respondGameError maps game errors onto HTTP statuses.
func respondGameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, game.ErrTooManySessions):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many active sessions, try again later"})
	case errors.Is(err, game.ErrUnknownFormation), errors.Is(err, game.ErrInvalidTeam):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[SESSION] Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// CreateSession starts a new session and returns its token and kickoff state
func CreateSession(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FormationA string `json:"formation_a"`
			FormationB string `json:"formation_b"`
		}
		// Body is optional.
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		catalog := game.Manager.Catalog()
		for _, name := range []string{req.FormationA, req.FormationB} {
			if name != "" && !catalog.Has(name) {
				c.JSON(http.StatusBadRequest, gin.H{"error": game.ErrUnknownFormation.Error(), "formation": name})
				return
			}
		}

		snap, err := game.Manager.Create()
		if err != nil {
			respondGameError(c, err)
			return
		}
		id := snap.SessionID

		if req.FormationA != "" || req.FormationB != "" {
			err := game.Manager.Exec(id, func(s *game.Session) {
				if req.FormationA != "" {
					s.SelectFormation(game.TeamA, req.FormationA)
				}
				if req.FormationB != "" {
					s.SelectFormation(game.TeamB, req.FormationB)
				}
				snap = s.Snapshot()
			})
			if err != nil {
				respondGameError(c, err)
				return
			}
		}

		token, expiresAt, err := auth.IssueSessionToken(cfg.JWTSecret, id, time.Duration(cfg.SessionTokenTTLMinutes)*time.Minute)
		if err != nil {
			log.Printf("[SESSION] Failed to sign token for %s: %v", id, err)
			game.Manager.Remove(id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Header("X-Session-ID", id)
		c.JSON(http.StatusCreated, gin.H{
			"session_id": id,
			"token":      token,
			"expires_at": expiresAt.Format(time.RFC3339),
			"ws_url":     "/api/v1/sessions/" + id + "/ws",
			"state":      snap,
		})
	}
}

// GetSession returns the session summary and its current snapshot. Reading
// does not count as activity, and a session hosted on another node is answered
// from the cache without starting it here.
func GetSession(c *gin.Context) {
	rec, snap, err := game.Manager.Describe(c.Param("id"))
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": rec.Status, "session": rec, "state": snap})
}

// SelectFormation changes one side's formation
func SelectFormation(c *gin.Context) {
	var req struct {
		Team string `json:"team" binding:"required"`
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "team and name required"})
		return
	}

	team, err := game.ParseTeam(req.Team)
	if err != nil {
		respondGameError(c, err)
		return
	}
	if !game.Manager.Catalog().Has(req.Name) {
		respondGameError(c, game.ErrUnknownFormation)
		return
	}

	var snap game.Snapshot
	var cmdErr error
	err = game.Manager.Exec(c.Param("id"), func(s *game.Session) {
		cmdErr = s.SelectFormation(team, req.Name)
		snap = s.Snapshot()
	})
	if err == nil {
		err = cmdErr
	}
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": snap})
}

// ResetSession restarts the match at kickoff
func ResetSession(c *gin.Context) {
	var snap game.Snapshot
	err := game.Manager.Exec(c.Param("id"), func(s *game.Session) {
		s.ResetMatch()
		snap = s.Snapshot()
	})
	if err != nil {
		respondGameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": snap})
}

// DeleteSession stops the session and closes its connection
func DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := game.Manager.Remove(id); err != nil {
		respondGameError(c, err)
		return
	}
	ws.SessionHub.Disconnect(id)
	c.JSON(http.StatusOK, gin.H{"status": game.StatusClosed, "session_id": id})
}
