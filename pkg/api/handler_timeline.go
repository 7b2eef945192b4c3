package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/store"
)

// getTimelineHandler handles GET /api/timeline/{id}?branch_id=...&limit=....
// {id} is the session id, kept for symmetry with the other session-scoped
// routes even though the branch id fully determines the query (§6.1).
func (s *Server) getTimelineHandler(c *gin.Context) {
	branchID := c.Query("branch_id")
	if branchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: "branch_id is required"})
		return
	}
	limit := queryInt(c, "limit", 0)

	messages, err := s.store.ListTimeline(c.Request.Context(), branchID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// deleteLastMessageHandler handles DELETE /api/message/{id}/last?branch_id=...
// {id} is the session id; 409 BUSY is surfaced per §7/§8 scenario 4.
func (s *Server) deleteLastMessageHandler(c *gin.Context) {
	branchID := c.Query("branch_id")
	if branchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: "branch_id is required"})
		return
	}

	seq, err := s.sim.DeleteLastMessage(c.Request.Context(), c.Param("id"), branchID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seq_deleted": seq})
}

// editMessageHandler handles PATCH /api/message/{id}/{message_id}. {id} is
// the session id (routing symmetry only — edit_message is keyed on
// message_id and is not session-scoped, per §4.6).
func (s *Server) editMessageHandler(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	patch := store.MessagePatch{Content: req.Content, ReportSnapshot: req.ReportSnapshot}
	msg, err := s.sim.EditMessage(c.Request.Context(), c.Param("message_id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// createInterventionHandler handles POST /api/intervention/{id}. {id} is
// the session id; the target branch id is in the request body (§6.1).
func (s *Server) createInterventionHandler(c *gin.Context) {
	var req interventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	intervention, err := s.sim.Intervene(c.Request.Context(), c.Param("id"), req.BranchID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, intervention)
}
