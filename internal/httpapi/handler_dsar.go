package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/dsar"
)

type dsarRequest struct {
	Kind      string `json:"kind" binding:"required"`
	SubjectID string `json:"subject_id" binding:"required"`
}

func (s *Server) handleDSARRequest(c *gin.Context) {
	var req dsarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleDSARRequest", cerr.KindValidation, err))
		return
	}

	kind := dsar.Kind(req.Kind)
	switch kind {
	case dsar.KindAccess, dsar.KindDelete, dsar.KindExport, dsar.KindCorrect:
	default:
		writeError(c, cerr.New("httpapi.handleDSARRequest", cerr.KindValidation, "unknown request kind: "+req.Kind))
		return
	}

	result, err := s.deps.DSAR.Submit(c.Request.Context(), kind, req.SubjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, DSARAcceptedResponse{RequestID: result.RequestID, Status: string(result.Status)})
}

func (s *Server) handleDSARStatus(c *gin.Context) {
	requestID := c.Param("request_id")
	req, ok := s.deps.DSAR.Status(requestID)
	if !ok {
		writeError(c, cerr.New("httpapi.handleDSARStatus", cerr.KindValidation, "unknown request id"))
		return
	}
	c.JSON(http.StatusOK, DSARStatusResponse{
		RequestID: req.RequestID,
		Status:    string(req.Status),
		Kind:      string(req.Kind),
		Result:    req.Result,
		Error:     req.Error,
	})
}
