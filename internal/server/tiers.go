package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListTiers(c *gin.Context) {
	items, err := s.tierSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetTier(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.tierSvc.Get(c.Request.Context(), tierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SetTierDuration(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Duration int64 `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.tierSvc.SetDuration(c.Request.Context(), tierdomain.SetDurationRequest{
		TierID:   tierID,
		Duration: req.Duration,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordTransition(c, tierdomain.OpSetDuration, item)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SetTierStart(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		StartAt int64 `json:"start_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.tierSvc.SetStart(c.Request.Context(), tierdomain.SetStartRequest{
		TierID:  tierID,
		StartAt: req.StartAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordTransition(c, tierdomain.OpSetStart, item)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ActivateTier(c *gin.Context) {
	s.transitionTier(c, tierdomain.OpActivate, s.tierSvc.Activate)
}

func (s *Server) PauseTier(c *gin.Context) {
	s.boundaryTier(c, tierdomain.OpPause, s.tierSvc.Pause)
}

func (s *Server) SetTierEnd(c *gin.Context) {
	s.boundaryTier(c, tierdomain.OpSetEnd, s.tierSvc.SetEnd)
}

func (s *Server) UnpauseTier(c *gin.Context) {
	s.transitionTier(c, tierdomain.OpUnpause, s.tierSvc.Unpause)
}

func (s *Server) FinishTier(c *gin.Context) {
	s.transitionTier(c, tierdomain.OpFinish, s.tierSvc.Finish)
}

func (s *Server) transitionTier(c *gin.Context, op tierdomain.Op, call func(ctx context.Context, tierID int64) (tierdomain.Tier, error)) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := call(c.Request.Context(), tierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordTransition(c, op, item)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) boundaryTier(c *gin.Context, op tierdomain.Op, call func(ctx context.Context, req tierdomain.SetBoundaryRequest) (tierdomain.Tier, error)) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := call(c.Request.Context(), tierdomain.SetBoundaryRequest{
		TierID:    tierID,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordTransition(c, op, item)
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) recordTransition(c *gin.Context, op tierdomain.Op, item tierdomain.Tier) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordTierTransition(c.Request.Context(), string(op), string(item.Status))
}

func tierIDParam(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return id, nil
}
