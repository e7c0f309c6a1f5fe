// Package audit implements the append-only, hash-chained audit log (§3,
// §8 invariant 3): every entry stores entry_hash = H(prev_hash ‖ payload)
// plus a signature, and no entry is ever mutated. Writers serialize on the
// chain tail (§5).
package audit

import (
	"crypto/ed25519"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Store persists audit entries; implementations (sqlite/postgres, §6)
// must preserve seq order per occurrence.
type Store interface {
	Append(entry model.AuditEntry) error
	Tail(occurrenceID string) (model.AuditEntry, bool, error)
	All(occurrenceID string) ([]model.AuditEntry, error)
}

// Chain is the single-writer-per-occurrence hash chain. Multiple
// occurrences share the same Store but each has an independent chain
// tail, matching §4.4's multi-occurrence model.
type Chain struct {
	mu         sync.Mutex
	store      Store
	signingKey ed25519.PrivateKey
}

// New constructs a Chain backed by store, signing entries with key. A nil
// key is permitted for test/dev chains; their entries carry an empty
// signature, which Verify accepts only when it is given no verifying key.
func New(store Store, key ed25519.PrivateKey) *Chain {
	return &Chain{store: store, signingKey: key}
}

// Append adds a new entry to the tail of occurrenceID's chain, computing
// entry_hash from the current tail and signing the result (§3).
func (c *Chain) Append(occurrenceID string, kind model.AuditKind, payload []byte) (model.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var prevHash []byte
	var seq uint64
	tail, ok, err := c.store.Tail(occurrenceID)
	if err != nil {
		return model.AuditEntry{}, cerr.Wrap("audit.Append", cerr.KindFatal, err)
	}
	if ok {
		prevHash = tail.EntryHash
		seq = tail.Seq + 1
	}

	entryHash := hashEntry(prevHash, payload)
	var sig []byte
	if c.signingKey != nil {
		sig = ed25519.Sign(c.signingKey, entryHash)
	}

	entry := model.AuditEntry{
		Seq:          seq,
		OccurrenceID: occurrenceID,
		Kind:         kind,
		PrevHash:     prevHash,
		EntryHash:    entryHash,
		Signature:    sig,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.store.Append(entry); err != nil {
		return model.AuditEntry{}, cerr.Wrap("audit.Append", cerr.KindFatal, err)
	}
	return entry, nil
}

func hashEntry(prevHash, payload []byte) []byte {
	h := sha256.New()
	h.Write(prevHash)
	h.Write(payload)
	return h.Sum(nil)
}

// Verify walks one occurrence's full chain top-to-bottom, checking that each
// entry's hash derives correctly from its predecessor and, when a
// verifying key is supplied, that its signature is valid (§8 invariant 3).
func Verify(entries []model.AuditEntry, verifyKey ed25519.PublicKey) error {
	var prevHash []byte
	for i, e := range entries {
		want := hashEntry(prevHash, e.Payload)
		if !bytesEqual(want, e.EntryHash) {
			return cerr.New("audit.Verify", cerr.KindFatal, "hash mismatch at seq "+itoa(e.Seq))
		}
		if verifyKey != nil {
			if !ed25519.Verify(verifyKey, e.EntryHash, e.Signature) {
				return cerr.New("audit.Verify", cerr.KindFatal, "signature invalid at seq "+itoa(e.Seq))
			}
		}
		if e.Seq != uint64(i) {
			return cerr.New("audit.Verify", cerr.KindFatal, "non-monotonic seq at index "+itoa(uint64(i)))
		}
		prevHash = e.EntryHash
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}
