package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

type loginRequest struct {
	SubjectID  string `json:"subject_id" binding:"required"`
	Credential string `json:"credential" binding:"required"`
}

type refreshRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleLogin", cerr.KindValidation, err))
		return
	}

	token, role, expiresAt, err := s.deps.Sessions.Issue(req.SubjectID, req.Credential)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleRefresh", cerr.KindValidation, err))
		return
	}

	token, role, expiresAt, err := s.deps.Sessions.Refresh(req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}

// handleOAuthCallback is a simplified stand-in for a real OAuth
// authorization-code exchange (§6 "OAuth callback"): there is no OAuth
// client library in this dependency set, so the callback trusts its
// query parameters the way a fully configured IdP integration would
// trust a verified id_token, and issues a session directly. A real
// deployment replaces this handler's body without touching Sessions.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	subjectID := c.Query("subject_id")
	if subjectID == "" {
		writeError(c, cerr.New("httpapi.handleOAuthCallback", cerr.KindValidation, "subject_id query parameter is required"))
		return
	}
	token, role, expiresAt, err := s.deps.Sessions.Issue(subjectID, subjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, Role: role})
}
