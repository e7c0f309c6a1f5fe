// Package gate implements the Consent & Credit Gate (§4.6): the thin
// admission layer in front of task creation. It enforces consent
// lifecycle rules, debits Commons Credits, scrubs anti-spoofing markers
// from inbound payloads, and writes a gate_rejection audit entry whenever
// it refuses intake. Grounded in idiom on the teacher framework's
// pre-dispatch validation pattern (core/agent.go's capability
// authorization checks before invocation), generalized to CIRIS's
// consent/credit domain, which the teacher does not have.
package gate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/audit"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// InboundEvent is what an adapter hands the gate (§6 "Adapter intake
// interface"): `{adapter_id, channel_id, external_id, subject_id,
// payload, is_direct, arrived_at}`, plus the subject's role for bypass
// evaluation.
type InboundEvent struct {
	AdapterID  string
	ChannelID  string
	ExternalID string
	SubjectID  string
	Payload    string
	IsDirect   bool
	ArrivedAt  time.Time
	Role       string
}

// bypassRoles skips the credit debit entirely (§4.6 "Credit enforcement").
var bypassRoles = map[string]bool{
	"admin":          true,
	"authority":      true,
	"system_admin":   true,
	"service_account": true,
}

// ConsentStore persists consent records per subject (§3, §4.6).
type ConsentStore interface {
	Get(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error)
	Put(ctx context.Context, record model.ConsentRecord) error
}

// Ledger tracks Commons Credits balances (§4.6 "Credit enforcement"). Left
// unsigned in this core (Open Question, decided in DESIGN.md); an
// adjacent layer may substitute a signed implementation without changing
// the gate.
type Ledger interface {
	Balance(ctx context.Context, subjectID string) (int, error)
	Debit(ctx context.Context, subjectID string, amount int) error
}

// TaskCreator persists the new task (the processor's TaskStore, narrowed
// to the one method the gate needs).
type TaskCreator interface {
	Save(ctx context.Context, task *model.Task) error
}

// Gate is the admission layer for one occurrence.
type Gate struct {
	OccurrenceID string
	Consent      ConsentStore
	Credit       Ledger
	Tasks        TaskCreator
	Audit        *audit.Chain
	Logger       logging.Logger
}

// New constructs a Gate.
func New(occurrenceID string, consent ConsentStore, credit Ledger, tasks TaskCreator, chain *audit.Chain, logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Gate{
		OccurrenceID: occurrenceID,
		Consent:      consent,
		Credit:       credit,
		Tasks:        tasks,
		Audit:        chain,
		Logger:       logger.WithComponent("gate"),
	}
}

// Accept runs the full admission sequence: consent enforcement, credit
// enforcement, anti-spoofing scrubbing, task creation. It returns the new
// task on acceptance, or a typed cerr (KindConsentBlocked, KindCreditDenied)
// on rejection — in every rejection case no task is created and a
// gate_rejection audit entry is appended (§8 S4).
func (g *Gate) Accept(ctx context.Context, evt InboundEvent) (*model.Task, error) {
	record, err := g.enforceConsent(ctx, evt)
	if err != nil {
		g.rejectAudit(evt, "consent_blocked", err)
		return nil, err
	}

	if !bypassRoles[evt.Role] {
		if err := g.enforceCredit(ctx, evt); err != nil {
			g.rejectAudit(evt, "credit_denied", err)
			return nil, err
		}
	}

	task := &model.Task{
		TaskID: uuid.NewString(),
		Origin: model.Origin{
			AdapterID: evt.AdapterID,
			ChannelID: evt.ChannelID,
			SubjectID: evt.SubjectID,
		},
		InitialInput: Scrub(evt.Payload),
		Status:       model.TaskPending,
		OccurrenceID: g.OccurrenceID,
		CreatedAt:    evt.ArrivedAt,
		UpdatedAt:    evt.ArrivedAt,
	}

	if record.Stream == model.ConsentPartnered && record.RevokedAt == nil {
		// A partnered subject's request still creates an ordinary task; the
		// bilateral-agreement workflow (§4.6) applies only to the *consent
		// grant itself*, which is negotiated out-of-band via the consent
		// HTTP surface (§6), not on every inbound message.
	}

	if err := g.Tasks.Save(ctx, task); err != nil {
		return nil, cerr.Wrap("Gate.Accept", cerr.KindFatal, err)
	}

	g.Logger.InfoContext(ctx, "task admitted", logging.Fields{
		"task_id": task.TaskID, "subject_id": evt.SubjectID, "stream": string(record.Stream),
	})
	return task, nil
}

func (g *Gate) rejectAudit(evt InboundEvent, reason string, cause error) {
	if g.Audit == nil {
		return
	}
	payload := []byte(`{"subject_id":"` + evt.SubjectID + `","channel_id":"` + evt.ChannelID + `","reason":"` + reason + `"}`)
	// A failed audit write is ignored here: the request stays rejected
	// whether or not its gate_rejection entry was recorded.
	_, _ = g.Audit.Append(g.OccurrenceID, model.AuditGateRejection, payload)
	_ = cause
}
