package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/internal/store"
	"github.com/msto63/wiener/pkg/core/discovery"
)

// ProvidersResponse combines the binding table with the announcements
type ProvidersResponse struct {
	Connected  []provider.State         `json:"connected"`
	Announced  []discovery.ProviderInfo `json:"announced"`
	Bindings   map[string]string        `json:"bindings"`
	Unresolved []string                 `json:"unresolved"`
}

func (s *Server) requireRegistry(c *gin.Context) bool {
	if s.registry == nil {
		respondError(c, werr.New("provider discovery disabled").WithCode(werr.CodeServiceUnavailable))
		return false
	}
	return true
}

func (s *Server) listProviders(c *gin.Context) {
	resp := ProvidersResponse{
		Connected:  s.orch.Providers(),
		Announced:  []discovery.ProviderInfo{},
		Bindings:   s.orch.Table().Bindings(),
		Unresolved: s.orch.Table().Unresolved(),
	}
	if s.registry != nil {
		announced, err := s.registry.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		resp.Announced = announced
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) announceProvider(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	var info discovery.ProviderInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		respondError(c, werr.Wrap(err, "invalid provider info").WithCode(werr.CodeInvalidInput))
		return
	}
	if info.Address == "" {
		info.Address = c.ClientIP()
	}
	if err := s.registry.Register(c.Request.Context(), &info); err != nil {
		respondError(c, werr.Wrap(err, "announcement rejected").WithCode(werr.CodeInvalidInput))
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) heartbeatProvider(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	if err := s.registry.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deregisterProvider(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	if err := s.registry.Deregister(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		respondError(c, werr.New("goal history disabled").WithCode(werr.CodeServiceUnavailable))
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(c, werr.Newf("invalid limit %q", v).WithCode(werr.CodeInvalidInput))
			return
		}
		limit = n
	}
	records, err := s.history.Recent(c.Request.Context(), limit, c.Query("status"))
	if err != nil {
		respondError(c, werr.Wrap(err, "history query failed").WithCode(werr.CodeDatabaseError))
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, records)
}
