package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// createSessionHandler handles POST /api/session/create.
func (s *Server) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	delay := s.cfg.DefaultPostGenDelaySec
	if req.PostGenDelaySec != nil {
		delay = *req.PostGenDelaySec
	}
	tick := req.TickLabel
	if tick == "" {
		tick = s.cfg.DefaultTickLabel
	}

	in := store.CreateSessionInput{
		Title:             req.Title,
		WorldPreset:       req.WorldPreset,
		TickLabel:         tick,
		PostGenDelaySec:   delay,
		OutputLanguage:    req.OutputLanguage,
		TimelineStartISO:  req.TimelineStartISO,
		TimelineStepValue: req.TimelineStepValue,
		TimelineStepUnit:  config.TimelineStepUnit(req.TimelineStepUnit),
	}

	sess, _, err := s.sim.CreateSession(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// getSessionHandler handles GET /api/session/{id}.
func (s *Server) getSessionHandler(c *gin.Context) {
	sess, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// historyHandler handles GET /api/session/history?limit=N.
func (s *Server) historyHandler(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	sessions, err := s.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// startHandler handles POST /api/session/{id}/start.
func (s *Server) startHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.sim.Start(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	s.respondRunning(c, id)
}

// pauseHandler handles POST /api/session/{id}/pause.
func (s *Server) pauseHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.sim.Pause(id); err != nil {
		writeError(c, err)
		return
	}
	s.respondRunning(c, id)
}

// resumeHandler handles POST /api/session/{id}/resume.
func (s *Server) resumeHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.sim.Resume(id); err != nil {
		writeError(c, err)
		return
	}
	s.respondRunning(c, id)
}

func (s *Server) respondRunning(c *gin.Context, sessionID string) {
	state, err := s.sim.RunnerState(sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runningResponse(state))
}

// updateSettingsHandler handles PATCH /api/session/{id}/settings.
func (s *Server) updateSettingsHandler(c *gin.Context) {
	var req settingsPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	patch := store.SessionSettingsPatch{
		TickLabel:         req.TickLabel,
		PostGenDelaySec:   req.PostGenDelaySec,
		OutputLanguage:    req.OutputLanguage,
		TimelineStartISO:  req.TimelineStartISO,
		TimelineStepValue: req.TimelineStepValue,
	}
	if req.TimelineStepUnit != nil {
		u := config.TimelineStepUnit(*req.TimelineStepUnit)
		patch.TimelineStepUnit = &u
	}

	sess, err := s.sim.UpdateSettings(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
