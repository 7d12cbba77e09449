package server

import (
	"net/http"
	"strconv"
	"strings"

	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) GetAsset(c *gin.Context) {
	assetID, err := assetIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.assetSvc.Get(c.Request.Context(), assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) GetAssetUnchecked(c *gin.Context) {
	assetID, err := assetIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.assetSvc.GetUnchecked(c.Request.Context(), assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) MintAsset(c *gin.Context) {
	var req assetdomain.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.assetSvc.Mint(c.Request.Context(), assetdomain.MintRequest{
		Owner:  strings.TrimSpace(req.Owner),
		TierID: req.TierID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordMint(c.Request.Context(), view.TierID, 1)
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) BatchMintAssets(c *gin.Context) {
	var req assetdomain.BatchMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.assetSvc.BatchMint(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordMint(c.Request.Context(), req.TierID, len(req.Owners))
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenewAsset(c *gin.Context) {
	assetID, err := assetIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Payment uint64 `json:"payment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// One renewal of an asset at a time across the fleet; the row lock
	// inside the transaction only covers a single database.
	token, ok, err := s.limiter.TryLockAsset(c.Request.Context(), assetID)
	if err != nil {
		AbortWithError(c, ErrRenewalInProgress)
		return
	}
	if !ok {
		AbortWithError(c, ErrRenewalInProgress)
		return
	}
	defer func() {
		if err := s.limiter.ReleaseAsset(c.Request.Context(), assetID, token); err != nil {
			s.log.Warn("renew lock release failed", zap.Int64("asset_id", assetID), zap.Error(err))
		}
	}()

	view, err := s.assetSvc.Renew(c.Request.Context(), assetdomain.RenewRequest{
		AssetID: assetID,
		Payment: req.Payment,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordRenewal(c.Request.Context(), view.TierID, req.Payment)
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) RefreshAssets(c *gin.Context) {
	var req assetdomain.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.assetSvc.Refresh(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"from_id": req.FromID,
		"to_id":   req.ToID,
	}})
}

func assetIDParam(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return id, nil
}
