package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/config"
)

// getDebugSettingsHandler handles GET /api/debug/settings (§6.1): the
// non-secret runtime-tunable subset of Config.
func (s *Server) getDebugSettingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Debug())
}

// patchDebugSettingsHandler handles PATCH /api/debug/settings.
func (s *Server) patchDebugSettingsHandler(c *gin.Context) {
	// Event-dice fields absent from the body keep their current values.
	req := debugSettingsPatchRequest{EventDice: s.cfg.EventDice}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}
	s.cfg.ApplyDebug(config.DebugSettings{
		DefaultPostGenDelaySec: req.DefaultPostGenDelaySec,
		DefaultTickLabel:       req.DefaultTickLabel,
		EventDice:              req.EventDice,
	})
	c.JSON(http.StatusOK, s.cfg.Debug())
}
