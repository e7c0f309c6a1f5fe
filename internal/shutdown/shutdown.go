// Package shutdown verifies emergency shutdown requests (§6): a detached
// Ed25519 signature over the canonical JSON payload
// {occurrence_id, nonce, issued_at, reason}, encoded with a fixed field
// order by hand rather than general JSON canonicalization (RFC
// 8785-style stability for this one known shape, not a spec map).
package shutdown

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// Request is an emergency shutdown request as received over
// /v1/shutdown, before signature verification.
type Request struct {
	OccurrenceID string    `json:"occurrence_id"`
	Nonce        string    `json:"nonce"`
	IssuedAt     time.Time `json:"issued_at"`
	Reason       string    `json:"reason"`
	Signature    []byte    `json:"signature"`
}

// canonicalPayload encodes r's signed fields in a fixed order. Not a
// general JSON canonicalizer: the field set and order are pinned by this
// function, not derived from the struct's tag order, so a later field
// addition cannot silently change what a previously-issued signature
// covers.
func canonicalPayload(r Request) []byte {
	return []byte(fmt.Sprintf(
		`{"occurrence_id":%q,"nonce":%q,"issued_at":%q,"reason":%q}`,
		r.OccurrenceID, r.Nonce, r.IssuedAt.UTC().Format(time.RFC3339Nano), r.Reason,
	))
}

// Verifier checks emergency shutdown requests against one trusted
// Ed25519 public key. Key rotation is out of scope: an adjacent layer is
// expected to reissue a Verifier when the trusted key changes.
type Verifier struct {
	trustedKey ed25519.PublicKey
}

// NewVerifier builds a Verifier trusting exactly one Ed25519 public key.
func NewVerifier(trustedKey ed25519.PublicKey) (*Verifier, error) {
	if len(trustedKey) != ed25519.PublicKeySize {
		return nil, cerr.New("shutdown.NewVerifier", cerr.KindValidation, "trusted key must be 32 bytes")
	}
	return &Verifier{trustedKey: trustedKey}, nil
}

// Verify reports whether r carries a valid detached signature over its
// canonical payload, signed by the verifier's trusted key.
func (v *Verifier) Verify(r Request) error {
	if r.OccurrenceID == "" || r.Nonce == "" || r.Reason == "" {
		return cerr.New("shutdown.Verify", cerr.KindValidation, "occurrence_id, nonce, and reason are required")
	}
	if len(r.Signature) != ed25519.SignatureSize {
		return cerr.New("shutdown.Verify", cerr.KindValidation, "malformed signature")
	}
	if !ed25519.Verify(v.trustedKey, canonicalPayload(r), r.Signature) {
		return cerr.New("shutdown.Verify", cerr.KindProhibited, "signature verification failed")
	}
	return nil
}

// Sign produces a detached signature over r's canonical payload, for
// tests and for the operator-side tool that issues shutdown requests.
func Sign(priv ed25519.PrivateKey, r Request) []byte {
	return ed25519.Sign(priv, canonicalPayload(r))
}
