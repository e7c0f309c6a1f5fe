package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

func (s *Server) handleConsentStatus(c *gin.Context) {
	subjectID := c.Query("subject_id")
	if subjectID == "" {
		writeError(c, cerr.New("httpapi.handleConsentStatus", cerr.KindValidation, "subject_id query parameter is required"))
		return
	}

	record, ok, err := s.deps.Gate.Consent.Get(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentStatus", cerr.KindFatal, err))
		return
	}
	if !ok {
		writeError(c, cerr.New("httpapi.handleConsentStatus", cerr.KindValidation, "no consent record for subject"))
		return
	}

	categories := make([]string, len(record.Categories))
	for i, cat := range record.Categories {
		categories[i] = string(cat)
	}
	c.JSON(http.StatusOK, ConsentStatusResponse{
		SubjectID:  record.SubjectID,
		Stream:     string(record.Stream),
		Categories: categories,
		GrantedAt:  record.GrantedAt.Format(time.RFC3339),
		ExpiresAt:  record.ExpiresAt.Format(time.RFC3339),
		Revoked:    record.RevokedAt != nil,
		Partnered:  record.Stream == model.ConsentPartnered && record.RevokedAt == nil,
	})
}

type consentGrantRequest struct {
	SubjectID  string   `json:"subject_id" binding:"required"`
	Stream     string   `json:"stream" binding:"required"`
	Categories []string `json:"categories"`
}

func (s *Server) handleConsentGrant(c *gin.Context) {
	var req consentGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentGrant", cerr.KindValidation, err))
		return
	}

	stream := model.ConsentStream(req.Stream)
	switch stream {
	case model.ConsentTemporary, model.ConsentPartnered, model.ConsentAnonymous:
	default:
		writeError(c, cerr.New("httpapi.handleConsentGrant", cerr.KindValidation, "unknown consent stream: "+req.Stream))
		return
	}

	categories := make([]model.DataCategory, len(req.Categories))
	for i, cat := range req.Categories {
		categories[i] = model.DataCategory(cat)
	}

	now := time.Now().UTC()
	record := model.ConsentRecord{
		SubjectID:  req.SubjectID,
		Stream:     stream,
		Categories: categories,
		GrantedAt:  now,
	}
	if stream == model.ConsentTemporary {
		record.ExpiresAt = now.Add(model.TemporaryTTL)
	}

	if err := s.deps.Gate.Consent.Put(c.Request.Context(), record); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentGrant", cerr.KindFatal, err))
		return
	}
	if s.deps.Audit != nil {
		payload := []byte(`{"subject_id":"` + req.SubjectID + `","action":"grant","stream":"` + req.Stream + `"}`)
		_, _ = s.deps.Audit.Append(s.deps.OccurrenceID, model.AuditConsent, payload)
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "granted"})
}

type consentRevokeRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

// handleConsentRevoke marks a subject's consent record revoked (§4.6
// "revocation decay") by setting RevokedAt. Nothing in this core runs the
// 90-day decay (RevocationDecayPeriod) or anonymizes the subject's data
// afterwards; the revocation only blocks new intake at the gate.
func (s *Server) handleConsentRevoke(c *gin.Context) {
	var req consentRevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentRevoke", cerr.KindValidation, err))
		return
	}

	record, ok, err := s.deps.Gate.Consent.Get(c.Request.Context(), req.SubjectID)
	if err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentRevoke", cerr.KindFatal, err))
		return
	}
	if !ok {
		writeError(c, cerr.New("httpapi.handleConsentRevoke", cerr.KindValidation, "no consent record for subject"))
		return
	}

	now := time.Now().UTC()
	record.RevokedAt = &now
	if err := s.deps.Gate.Consent.Put(c.Request.Context(), *record); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentRevoke", cerr.KindFatal, err))
		return
	}
	if s.deps.Audit != nil {
		payload := []byte(`{"subject_id":"` + req.SubjectID + `","action":"revoke"}`)
		_, _ = s.deps.Audit.Append(s.deps.OccurrenceID, model.AuditConsent, payload)
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "revoked"})
}

func (s *Server) handleConsentAudit(c *gin.Context) {
	if s.deps.AuditLog == nil {
		c.JSON(http.StatusOK, []ConsentAuditEntry{})
		return
	}
	entries, err := s.deps.AuditLog.All(s.deps.OccurrenceID)
	if err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentAudit", cerr.KindFatal, err))
		return
	}

	out := make([]ConsentAuditEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != model.AuditConsent {
			continue
		}
		out = append(out, ConsentAuditEntry{
			Seq:     e.Seq,
			Kind:    string(e.Kind),
			Payload: base64.StdEncoding.EncodeToString(e.Payload),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleConsentPartnership(c *gin.Context) {
	subjectID := c.Query("subject_id")
	if subjectID == "" {
		writeError(c, cerr.New("httpapi.handleConsentPartnership", cerr.KindValidation, "subject_id query parameter is required"))
		return
	}
	record, ok, err := s.deps.Gate.Consent.Get(c.Request.Context(), subjectID)
	if err != nil {
		writeError(c, cerr.Wrap("httpapi.handleConsentPartnership", cerr.KindFatal, err))
		return
	}
	partnered := ok && record.Stream == model.ConsentPartnered && record.RevokedAt == nil
	c.JSON(http.StatusOK, partnershipResponse{SubjectID: subjectID, Partnered: partnered})
}

type partnershipResponse struct {
	SubjectID string `json:"subject_id"`
	Partnered bool   `json:"partnered"`
}
