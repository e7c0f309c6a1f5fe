package pipeline

import (
	"context"
	"encoding/json"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/audit"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// AuditRecorder implements Recorder by appending one audit entry per
// completed action (§4.3 step 10, §3 "audit trail: hash-chained, every
// action decision recorded"). Task and thought persistence is already the
// processor's job (it saves both after Run returns); this Recorder's sole
// concern is the immutable audit trail of what was decided and why.
type AuditRecorder struct {
	Chain        *audit.Chain
	OccurrenceID string
}

// NewAuditRecorder constructs a Recorder backed by chain.
func NewAuditRecorder(chain *audit.Chain, occurrenceID string) Recorder {
	return &AuditRecorder{Chain: chain, OccurrenceID: occurrenceID}
}

type actionAuditPayload struct {
	ThoughtID  string                    `json:"thought_id"`
	TaskID     string                    `json:"task_id"`
	Round      int                       `json:"round"`
	ActionType model.ActionType          `json:"action_type"`
	Rationale  string                    `json:"rationale"`
	Outcome    model.HandlerStatus       `json:"outcome"`
	Conscience []model.ConscienceResult `json:"conscience,omitempty"`
}

// RecordAction appends a hash-chained audit entry for the finalized
// action. Run treats a non-nil error here as a round failure and aborts
// before ROUND_COMPLETE, so a broken audit chain stops the round rather
// than silently skipping the entry.
func (r *AuditRecorder) RecordAction(ctx context.Context, thought *model.Thought, decision model.ActionDecision, outcome model.HandlerOutcome, conscienceResults []model.ConscienceResult) error {
	if r.Chain == nil {
		return nil
	}
	payload, err := json.Marshal(actionAuditPayload{
		ThoughtID:  thought.ThoughtID,
		TaskID:     thought.TaskID,
		Round:      thought.Round,
		ActionType: decision.ActionType,
		Rationale:  decision.Rationale,
		Outcome:    outcome.Status,
		Conscience: conscienceResults,
	})
	if err != nil {
		return err
	}
	_, err = r.Chain.Append(r.OccurrenceID, model.AuditAction, payload)
	return err
}
