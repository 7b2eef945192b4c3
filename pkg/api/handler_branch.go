package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getBranchesHandler handles GET /api/branch/{id} — {id} is a session id;
// it returns every branch of the session plus the active branch (§6.1).
func (s *Server) getBranchesHandler(c *gin.Context) {
	sessionID := c.Param("id")
	sess, err := s.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	branches, err := s.store.ListBranches(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := BranchListResponse{ActiveBranchID: sess.ActiveBranchID}
	for i := range branches {
		resp.Branches = append(resp.Branches, branchResponse(&branches[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// forkBranchHandler handles POST /api/branch/{id}/fork — {id} is the
// source branch id.
func (s *Server) forkBranchHandler(c *gin.Context) {
	var req forkRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	sourceBranchID := c.Param("id")
	source, err := s.store.GetBranch(c.Request.Context(), sourceBranchID)
	if err != nil {
		writeError(c, err)
		return
	}

	branch, err := s.sim.Fork(c.Request.Context(), source.SessionID, sourceBranchID, req.FromMessageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, branchResponse(branch))
}

// switchBranchHandler handles POST /api/branch/{id}/switch — {id} is the
// session id, the target branch id is in the request body (§6.1).
func (s *Server) switchBranchHandler(c *gin.Context) {
	var req switchBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}
	if req.BranchID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: "branch_id is required"})
		return
	}

	sessionID := c.Param("id")
	if err := s.sim.SwitchBranch(c.Request.Context(), sessionID, req.BranchID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_branch_id": req.BranchID})
}
