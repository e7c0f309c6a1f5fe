package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// parseRFC3339 parses the shutdown request's issued_at field.
func parseRFC3339(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// decodeHexOrBase64 accepts either encoding for the shutdown request's
// detached signature, since signing tools differ in which they default
// to and the wire contract (§6) does not pin one.
func decodeHexOrBase64(v string) ([]byte, error) {
	if b, err := hex.DecodeString(v); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(v)
}

// statusForKind maps the §7 error taxonomy onto HTTP status codes,
// grounded on the teacher pack's mapServiceError idiom
// (codeready-toolchain-tarsy pkg/api/errors.go), generalized from a
// handful of service sentinels to cerr.Kind.
func statusForKind(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case cerr.Is(err, cerr.KindValidation):
		return http.StatusBadRequest, string(cerr.KindValidation)
	case cerr.Is(err, cerr.KindConsentBlocked):
		return http.StatusForbidden, string(cerr.KindConsentBlocked)
	case cerr.Is(err, cerr.KindCreditDenied):
		return http.StatusPaymentRequired, string(cerr.KindCreditDenied)
	case cerr.Is(err, cerr.KindProhibited):
		return http.StatusForbidden, string(cerr.KindProhibited)
	case cerr.Is(err, cerr.KindManagedAttr):
		return http.StatusConflict, string(cerr.KindManagedAttr)
	case cerr.Is(err, cerr.KindTimeout):
		return http.StatusGatewayTimeout, string(cerr.KindTimeout)
	case cerr.Is(err, cerr.KindCircuitOpen):
		return http.StatusServiceUnavailable, string(cerr.KindCircuitOpen)
	case cerr.Is(err, cerr.KindBudgetExhausted):
		return http.StatusConflict, string(cerr.KindBudgetExhausted)
	case cerr.Is(err, cerr.KindHandlerFailure):
		return http.StatusUnprocessableEntity, string(cerr.KindHandlerFailure)
	default:
		return http.StatusInternalServerError, string(cerr.KindFatal)
	}
}

// writeError renders err through statusForKind.
func writeError(c *gin.Context, err error) {
	status, code := statusForKind(err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
