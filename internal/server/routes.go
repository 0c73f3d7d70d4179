package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/health"
)

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/v1")
	{
		api.POST("/goals", s.submitGoal)
		api.GET("/goals", s.listGoals)
		api.GET("/goals/:id", s.getGoal)
		api.DELETE("/goals/:id", s.cancelGoal)

		api.GET("/locks", s.listLocks)
		api.GET("/scripts", s.listScripts)

		api.GET("/providers", s.listProviders)
		api.POST("/providers", s.announceProvider)
		api.PUT("/providers/:id/heartbeat", s.heartbeatProvider)
		api.DELETE("/providers/:id", s.deregisterProvider)

		api.GET("/history", s.listHistory)
		api.GET("/events", s.streamEvents)
	}
}

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps coded errors to their HTTP status
func respondError(c *gin.Context, err error) {
	code := werr.GetCode(err)
	status := code.HTTPStatus()
	if errors.Is(err, discovery.ErrNotFound) {
		code, status = werr.CodeNotFound, http.StatusNotFound
	}
	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{Code: code.String(), Message: err.Error()}})
}

func goalID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, werr.Newf("invalid goal id %q", c.Param("id")).WithCode(werr.CodeInvalidInput))
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
