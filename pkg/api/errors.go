// Package api implements the thin HTTP/WebSocket transport (§6.1, §6.2):
// gin handlers mapping 1:1 onto the Simulation Service and Store's
// read-only operations, plus the /ws/{id} event stream. Grounded on this
// codebase's gin-based go.mod (the committed, direct dependency — a later
// echo-based snapshot of pkg/api in the teacher repo's working tree never
// made it into go.mod's require block, so gin is what is actually wired
// here) for handler signatures and a central mapServiceError-style error
// translator.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/simulation"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// ErrorResponse is the §7 user-visible error envelope returned by every
// non-2xx HTTP response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// writeError maps err to an HTTP status and the §7 error envelope, logging
// anything unexpected. It never writes a secret.Value into the response —
// every error type in this mapping table carries only sanitized text.
func writeError(c *gin.Context, err error) {
	var validErr *simulation.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_ERROR", Message: err.Error()})
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "resource not found"})
	case errors.Is(err, store.ErrBusy):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code: "BUSY", Message: "runner is writing to this branch",
			Hint: "pause the session before deleting the last message",
		})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "CONFLICT", Message: "conflicting write, retry"})
	case errors.Is(err, store.ErrArchived):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "BRANCH_ARCHIVED", Message: "branch is archived"})
	case errors.Is(err, simulation.ErrBranchArchived):
		c.JSON(http.StatusConflict, ErrorResponse{Code: "BRANCH_ARCHIVED", Message: "branch is archived"})
	case errors.Is(err, simulation.ErrNoModelSelected):
		c.JSON(http.StatusConflict, ErrorResponse{
			Code: "NO_MODEL_SELECTED", Message: "no model is selected for this session",
			Hint: "call select-model before start",
		})
	case errors.Is(err, providers.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "UNKNOWN_PROVIDER", Message: err.Error()})
	default:
		var clientErr *providers.ClientError
		if errors.As(err, &clientErr) {
			c.JSON(http.StatusBadGateway, ErrorResponse{Code: "PROVIDER_CLIENT_ERROR", Message: clientErr.Error()})
			return
		}
		var transientErr *providers.TransientError
		if errors.As(err, &transientErr) {
			c.JSON(http.StatusBadGateway, ErrorResponse{Code: "PROVIDER_TRANSIENT_ERROR", Message: transientErr.Error()})
			return
		}
		slog.Error("unexpected api error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL_ERROR", Message: "internal server error"})
	}
}
