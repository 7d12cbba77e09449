package server

import (
	"net/http"
	"strings"

	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListEvents(c *gin.Context) {
	var query struct {
		EventType string `form:"event_type"`
		Limit     int    `form:"limit,default=50"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.eventsSvc.List(c.Request.Context(), eventsdomain.ListEventsRequest{
		EventType: strings.TrimSpace(query.EventType),
		Limit:     query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
