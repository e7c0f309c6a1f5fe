package audit

import (
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string][]model.AuditEntry
}

func newMemStore() *memStore { return &memStore{entries: make(map[string][]model.AuditEntry)} }

func (s *memStore) Append(e model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.OccurrenceID] = append(s.entries[e.OccurrenceID], e)
	return nil
}

func (s *memStore) Tail(occurrenceID string) (model.AuditEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[occurrenceID]
	if len(list) == 0 {
		return model.AuditEntry{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (s *memStore) All(occurrenceID string) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[occurrenceID], nil
}

func TestChain_AppendChainsHashesAcrossEntries(t *testing.T) {
	chain := New(newMemStore(), nil)

	e1, err := chain.Append("occ1", model.AuditAction, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e1.Seq)
	assert.Empty(t, e1.PrevHash)

	e2, err := chain.Append("occ1", model.AuditAction, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e2.Seq)
	assert.Equal(t, e1.EntryHash, e2.PrevHash)
}

func TestChain_AppendSignsWhenKeyPresent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	chain := New(newMemStore(), priv)

	entry, err := chain.Append("occ1", model.AuditAction, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, entry.EntryHash, entry.Signature))
}

func TestChain_OccurrencesHaveIndependentTails(t *testing.T) {
	chain := New(newMemStore(), nil)

	a, err := chain.Append("occ-a", model.AuditAction, []byte("a1"))
	require.NoError(t, err)
	b, err := chain.Append("occ-b", model.AuditAction, []byte("b1"))
	require.NoError(t, err)

	assert.Equal(t, uint64(0), a.Seq)
	assert.Equal(t, uint64(0), b.Seq)
	assert.Empty(t, b.PrevHash)
}

func TestVerify_DetectsHashMismatch(t *testing.T) {
	store := newMemStore()
	chain := New(store, nil)
	_, err := chain.Append("occ1", model.AuditAction, []byte("first"))
	require.NoError(t, err)
	_, err = chain.Append("occ1", model.AuditAction, []byte("second"))
	require.NoError(t, err)

	entries, err := store.All("occ1")
	require.NoError(t, err)
	entries[1].Payload = []byte("tampered")

	assert.Error(t, Verify(entries, nil))
}

func TestVerify_AcceptsAnUntamperedChain(t *testing.T) {
	store := newMemStore()
	chain := New(store, nil)
	_, err := chain.Append("occ1", model.AuditAction, []byte("first"))
	require.NoError(t, err)
	_, err = chain.Append("occ1", model.AuditAction, []byte("second"))
	require.NoError(t, err)

	entries, err := store.All("occ1")
	require.NoError(t, err)
	assert.NoError(t, Verify(entries, nil))
}
