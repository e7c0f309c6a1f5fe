package gate

import (
	"context"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// enforceConsent implements §4.6's consent rules:
//   - unknown subject -> create a temporary record, 14-day TTL
//   - partnered -> already bilaterally agreed; handled at grant time, not here
//   - anonymous -> severed subject->data linkage; intake still proceeds,
//     the record's presence is what routes reads to statistical-only
//   - a revoked record is rejected with ConsentBlocked
//
// Revoked-but-still-decaying records: decided here (Open Question not
// named by spec.md, recorded in DESIGN.md) that new inbound interactions
// are blocked immediately on revocation, not only after the 90-day decay
// completes — the decay window governs how long *existing* data persists
// before anonymization, not whether the subject may still transact.
func (g *Gate) enforceConsent(ctx context.Context, evt InboundEvent) (model.ConsentRecord, error) {
	record, ok, err := g.Consent.Get(ctx, evt.SubjectID)
	if err != nil {
		return model.ConsentRecord{}, cerr.Wrap("Gate.enforceConsent", cerr.KindFatal, err)
	}
	if !ok {
		now := evt.ArrivedAt
		if now.IsZero() {
			now = time.Now().UTC()
		}
		fresh := model.ConsentRecord{
			SubjectID:  evt.SubjectID,
			Stream:     model.ConsentTemporary,
			Categories: []model.DataCategory{model.CategoryEssential},
			GrantedAt:  now,
			ExpiresAt:  now.Add(model.TemporaryTTL),
		}
		if err := g.Consent.Put(ctx, fresh); err != nil {
			return model.ConsentRecord{}, cerr.Wrap("Gate.enforceConsent", cerr.KindFatal, err)
		}
		return fresh, nil
	}

	if record.RevokedAt != nil {
		return model.ConsentRecord{}, cerr.New("Gate.enforceConsent", cerr.KindConsentBlocked, "consent revoked for subject "+evt.SubjectID)
	}
	return *record, nil
}

// memoryConsentStore is a process-local ConsentStore, suitable as the
// default for tests and single-occurrence deployments without a durable
// backend configured; production deployments back this with
// internal/persistence.
type memoryConsentStore struct {
	mu      sync.RWMutex
	records map[string]model.ConsentRecord
}

// NewMemoryConsentStore constructs an in-memory ConsentStore.
func NewMemoryConsentStore() ConsentStore {
	return &memoryConsentStore{records: make(map[string]model.ConsentRecord)}
}

func (s *memoryConsentStore) Get(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[subjectID]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *memoryConsentStore) Put(ctx context.Context, record model.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SubjectID] = record
	return nil
}
