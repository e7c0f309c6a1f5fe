package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/shutdown"
)

type shutdownRequest struct {
	OccurrenceID string `json:"occurrence_id" binding:"required"`
	Nonce        string `json:"nonce" binding:"required"`
	IssuedAt     string `json:"issued_at" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
	Signature    string `json:"signature" binding:"required"`
}

// handleShutdown verifies a detached Ed25519 signature over the
// canonical shutdown payload (§6) and, only once that verification
// passes, drives the processor to SHUTDOWN via the runtime-control bus.
// This route intentionally bypasses requireAuth: its own signature
// check is the authorization (§6 "bypasses normal auth").
func (s *Server) handleShutdown(c *gin.Context) {
	var req shutdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleShutdown", cerr.KindValidation, err))
		return
	}

	issuedAt, err := parseRFC3339(req.IssuedAt)
	if err != nil {
		writeError(c, cerr.New("httpapi.handleShutdown", cerr.KindValidation, "issued_at must be RFC3339"))
		return
	}
	sig, err := decodeHexOrBase64(req.Signature)
	if err != nil {
		writeError(c, cerr.New("httpapi.handleShutdown", cerr.KindValidation, "signature must be hex or base64"))
		return
	}

	sigReq := shutdown.Request{
		OccurrenceID: req.OccurrenceID,
		Nonce:        req.Nonce,
		IssuedAt:     issuedAt,
		Reason:       req.Reason,
		Signature:    sig,
	}
	if err := s.deps.ShutdownVerifier.Verify(sigReq); err != nil {
		writeError(c, err)
		return
	}

	if err := s.deps.RuntimeControl.Shutdown(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ShutdownAcceptedResponse{Status: "shutting_down"})
}
