package server

import (
	"net/http"
	"strconv"
	"strings"

	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListTierFees(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.feeSvc.ListByTier(c.Request.Context(), tierID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetTierFee(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	variant, err := variantParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// An optional bps query quotes the discounted magnitude instead.
	if raw := strings.TrimSpace(c.Query("bps")); raw != "" {
		bps, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr != nil {
			AbortWithError(c, newValidationError("bps", "invalid_bps", "invalid bps"))
			return
		}
		amount, quoteErr := s.feeSvc.DiscountedFee(c.Request.Context(), tierID, variant, bps)
		if quoteErr != nil {
			AbortWithError(c, quoteErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"tier_id": tierID,
			"variant": variant,
			"amount":  amount,
			"bps":     bps,
		}})
		return
	}

	amount, err := s.feeSvc.Fee(c.Request.Context(), tierID, variant)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"tier_id": tierID,
		"variant": variant,
		"amount":  amount,
	}})
}

func (s *Server) SetTierFee(c *gin.Context) {
	tierID, err := tierIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	variant, err := variantParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.feeSvc.SetFee(c.Request.Context(), feedomain.SetFeeRequest{
		TierID:  tierID,
		Variant: variant,
		Amount:  req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordFeeChange(c.Request.Context(), entry.TierID, entry.Variant)
	}
	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func variantParam(c *gin.Context) (string, error) {
	variant := strings.TrimSpace(c.Param("variant"))
	if variant == "" {
		return "", newValidationError("variant", "invalid_variant", "invalid variant")
	}
	return variant, nil
}
