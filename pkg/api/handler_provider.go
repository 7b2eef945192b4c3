package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/secret"
)

// setProviderHandler handles POST /api/provider/{id}/set (§6.1, §6.3).
func (s *Server) setProviderHandler(c *gin.Context) {
	var req setProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	view, err := s.sim.SetProvider(c.Request.Context(), c.Param("id"),
		config.ProviderType(req.Provider), req.BaseURL, secret.NewValue(req.APIKey), req.ModelName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// listModelsHandler handles GET /api/provider/{id}/models?provider=... —
// the query parameter is accepted for parity with §6.1's surface but the
// session's already-bound provider is authoritative (§4.2: adapters carry
// no hidden global state, so listing always uses the session's own config).
func (s *Server) listModelsHandler(c *gin.Context) {
	models, err := s.sim.ListModels(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// selectModelHandler handles POST /api/provider/{id}/select-model.
func (s *Server) selectModelHandler(c *gin.Context) {
	var req selectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}
	view, err := s.sim.SelectModel(c.Request.Context(), c.Param("id"), req.ModelName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// currentProviderHandler handles GET /api/provider/{id}/current.
func (s *Server) currentProviderHandler(c *gin.Context) {
	cfg, err := s.store.GetProviderConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg.View())
}
