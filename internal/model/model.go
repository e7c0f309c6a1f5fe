// Package model defines the CIRIS core data model (§3): tasks, thoughts,
// action decisions, DMA and conscience results, service provider entries,
// graph nodes/edges, correlations, consent records, and audit entries.
// Every entity is a tagged struct. The string-to-string maps some of them
// carry (ProviderEntry.Metadata, GraphNode.Attributes, DMAResult.Findings,
// ContextBundle.Extra, ToolParams.Params) are not checked against a schema.
package model

import "time"

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskDeferred  TaskStatus = "deferred"
	TaskCompleted TaskStatus = "completed"
	TaskRejected  TaskStatus = "rejected"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal reports whether status is a terminal, immutable status.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskRejected, TaskFailed:
		return true
	default:
		return false
	}
}

// MaxRounds is the task round budget (§4.4).
const MaxRounds = 7

// Origin identifies where a Task came from.
type Origin struct {
	AdapterID string `json:"adapter_id"`
	ChannelID string `json:"channel_id"`
	SubjectID string `json:"subject_id"`
}

// Task is the originating unit of work (§3).
type Task struct {
	TaskID       string     `json:"task_id"`
	Origin       Origin     `json:"origin"`
	InitialInput string     `json:"initial_input"`
	Status       TaskStatus `json:"status"`
	RoundCount   int        `json:"round_count"`
	OccurrenceID string     `json:"occurrence_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	// TerminationReason records why a terminal status was reached, e.g.
	// "round_budget_exhausted", "conscience_blocked(x2)".
	TerminationReason string `json:"termination_reason,omitempty"`
}

// CanAdvanceRound reports whether the task may start another round without
// violating the round budget invariant (§8 invariant 1).
func (t *Task) CanAdvanceRound() bool {
	return t.RoundCount < MaxRounds
}

// ThoughtGeneration classifies how a Thought came to exist.
type ThoughtGeneration string

const (
	GenerationSeed      ThoughtGeneration = "seed"
	GenerationFollowUp  ThoughtGeneration = "follow_up"
	GenerationRecursive ThoughtGeneration = "recursive"
)

// ThoughtState is the lifecycle state of a Thought.
type ThoughtState string

const (
	ThoughtNew       ThoughtState = "new"
	ThoughtInFlight  ThoughtState = "in_flight"
	ThoughtCompleted ThoughtState = "completed"
	ThoughtFailed    ThoughtState = "failed"
)

// ContextBundle is the assembled context produced by GATHER_CONTEXT (§4.3
// step 2): a system snapshot, identity, pertinent graph memories, recent
// conversation, and active constraints.
type ContextBundle struct {
	SystemSnapshot    string            `json:"system_snapshot"`
	Identity          string            `json:"identity"`
	GraphMemories     []GraphNode       `json:"graph_memories,omitempty"`
	RecentConversation []string         `json:"recent_conversation,omitempty"`
	ActiveConstraints []string          `json:"active_constraints,omitempty"`
	FollowUpMarker    string            `json:"follow_up_marker,omitempty"`
	ConscienceReason  string            `json:"conscience_reason,omitempty"`
	// DeclaredCapability names a Wise Bus capability the thought's task
	// claims to need (e.g. "medical_diagnosis"). Empty means no Wise
	// consult is required for this thought.
	DeclaredCapability string            `json:"declared_capability,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// HasFollowUpMarker reports whether the bundle carries an explicit
// unresolved-work marker (§4.3 "strong bias to TASK_COMPLETE").
func (c ContextBundle) HasFollowUpMarker() bool {
	return c.FollowUpMarker != ""
}

// Thought is one iteration's working item for a task (§3).
type Thought struct {
	ThoughtID  string            `json:"thought_id"`
	TaskID     string            `json:"task_id"`
	Generation ThoughtGeneration `json:"generation"`
	Content    ContextBundle     `json:"content"`
	State      ThoughtState      `json:"state"`
	Round      int               `json:"round"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ActionType enumerates the pipeline's ten possible actions (§3).
type ActionType string

const (
	ActionSpeak        ActionType = "SPEAK"
	ActionTool         ActionType = "TOOL"
	ActionObserve      ActionType = "OBSERVE"
	ActionMemorize     ActionType = "MEMORIZE"
	ActionRecall       ActionType = "RECALL"
	ActionForget       ActionType = "FORGET"
	ActionReject       ActionType = "REJECT"
	ActionPonder       ActionType = "PONDER"
	ActionDefer        ActionType = "DEFER"
	ActionTaskComplete ActionType = "TASK_COMPLETE"
)

// conscienceExempt is the set of actions that skip the CONSCIENCE step
// (§4.3 step 5).
var conscienceExempt = map[ActionType]bool{
	ActionRecall:       true,
	ActionTaskComplete: true,
	ActionObserve:      true,
	ActionDefer:        true,
	ActionReject:       true,
}

// IsConscienceExempt reports whether a the action skips ethical review.
func (a ActionType) IsConscienceExempt() bool {
	return conscienceExempt[a]
}

// IsTerminal reports whether choosing this action ends the task (§4.3
// step 11).
func (a ActionType) IsTerminal() bool {
	return a == ActionTaskComplete || a == ActionReject || a == ActionDefer
}

// ActionParams is a closed union of per-action typed parameters. Exactly
// one field is populated, matching ActionDecision.ActionType.
type ActionParams struct {
	Speak     *SpeakParams     `json:"speak,omitempty"`
	Tool      *ToolParams      `json:"tool,omitempty"`
	Observe   *ObserveParams   `json:"observe,omitempty"`
	Memorize  *MemorizeParams  `json:"memorize,omitempty"`
	Recall    *RecallParams    `json:"recall,omitempty"`
	Forget    *ForgetParams    `json:"forget,omitempty"`
	Reject    *RejectParams    `json:"reject,omitempty"`
	Ponder    *PonderParams    `json:"ponder,omitempty"`
	Defer     *DeferParams     `json:"defer,omitempty"`
}

type SpeakParams struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type ToolParams struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

type ObserveParams struct {
	ChannelID  string `json:"channel_id"`
	ExternalID string `json:"external_id"`
}

type MemorizeParams struct {
	Node GraphNode `json:"node"`
}

type RecallParams struct {
	Query NodeID `json:"query"`
}

type ForgetParams struct {
	Target NodeID `json:"target"`
	Reason string `json:"reason"`
}

type RejectParams struct {
	Reason string `json:"reason"`
}

type PonderParams struct {
	Reflection string `json:"reflection"`
}

type DeferParams struct {
	Reason    string `json:"reason"`
	ToHuman   bool   `json:"to_human"`
	RetryAt   *time.Time `json:"retry_at,omitempty"`
}

// ActionDecision is the pipeline's output per thought (§3).
type ActionDecision struct {
	ActionType ActionType   `json:"action_type"`
	Params     ActionParams `json:"params"`
	Rationale  string       `json:"rationale"`
}

// DMAKind enumerates the four Decision-Making Analysis types.
type DMAKind string

const (
	DMAEthical        DMAKind = "ethical"
	DMACommonSense    DMAKind = "common_sense"
	DMADomainSpecific DMAKind = "domain_specific"
	DMAActionSelection DMAKind = "action_selection"
)

// DMAResult is the common shape for the three PERFORM_DMAS outputs plus the
// action-selection DMA (§3).
type DMAResult struct {
	Kind      DMAKind                `json:"kind"`
	Score     float64                `json:"score"`
	Rationale string                 `json:"rationale"`
	Findings  map[string]string      `json:"findings,omitempty"`
}

// ActionSelectionResult is PERFORM_ASPDMA's output: a proposed action plus
// the DMA results it was derived from.
type ActionSelectionResult struct {
	Proposed   ActionDecision `json:"proposed"`
	EthicalDMA DMAResult      `json:"ethical_dma"`
	CommonSenseDMA DMAResult  `json:"common_sense_dma"`
	DomainDMA  DMAResult      `json:"domain_dma"`
}

// ConscienceResult is produced by the CONSCIENCE step (§3).
type ConscienceResult struct {
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
}

// SelectionStrategy is how the registry picks among eligible providers
// for a capability (§4.1).
type SelectionStrategy string

const (
	StrategyPriority       SelectionStrategy = "priority"
	StrategyRoundRobin     SelectionStrategy = "round_robin"
	StrategyWeightedRandom SelectionStrategy = "weighted_random"
)

// CircuitState is a provider's circuit breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// ProviderEntry is one registered provider for a capability (§3).
type ProviderEntry struct {
	Capability string                 `json:"capability"`
	InstanceRef string                `json:"instance_ref"`
	Priority   int                    `json:"priority"`
	Weight     float64                `json:"weight"`
	Strategy   SelectionStrategy      `json:"selection_strategy"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
}

// NodeID uniquely identifies a graph node (§3).
type NodeID struct {
	Scope    string `json:"scope"`
	NodeType string `json:"node_type"`
	NodeID   string `json:"node_id"`
}

// GraphNode is a typed, versioned graph memory node (§3). Attributes is a
// plain string map with no per-node-type schema; the only check on its keys
// is the ManagedAttributes refusal applied by MEMORIZE and /v1/memory/store.
type GraphNode struct {
	ID          NodeID            `json:"id"`
	Version     int               `json:"version"`
	Attributes  map[string]string `json:"attributes"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ManagedAttributes is the set of attributes MEMORIZE must refuse to
// write directly (§4.5).
var ManagedAttributes = map[string]bool{
	"user_id":   true,
	"agent_id":  true,
	"thread_id": true,
}

// GraphEdge is a typed relationship between two graph nodes (§3).
type GraphEdge struct {
	From         NodeID  `json:"from"`
	To           NodeID  `json:"to"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight,omitempty"`
}

// Correlation is one bus call or handler invocation's trace record (§3).
type Correlation struct {
	TaskID       string        `json:"task_id"`
	ThoughtID    string        `json:"thought_id"`
	SpanID       string        `json:"span_id"`
	ParentSpanID string        `json:"parent_span_id,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Outcome      string        `json:"outcome"`
	Kind         string        `json:"kind"`
	// PromptTokens and CompletionTokens carry LLM Bus token/cost usage
	// (§4.2 "records token/cost usage in correlations"); zero for
	// correlations that aren't LLM calls.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// ConsentStream classifies the subject's consent level (§3).
type ConsentStream string

const (
	ConsentTemporary ConsentStream = "temporary"
	ConsentPartnered ConsentStream = "partnered"
	ConsentAnonymous ConsentStream = "anonymous"
)

// TemporaryTTL is the fixed expiry window for temporary consent (§3).
const TemporaryTTL = 14 * 24 * time.Hour

// RevocationDecayPeriod is how long the post-revocation decay schedule
// runs before only anonymous statistical patterns remain (§4.6).
const RevocationDecayPeriod = 90 * 24 * time.Hour

// DataCategory classifies what a consent record permits reading.
type DataCategory string

const (
	CategoryEssential DataCategory = "essential"
	CategoryExtended  DataCategory = "extended"
)

// ConsentRecord tracks one subject's consent lifecycle (§3).
type ConsentRecord struct {
	SubjectID  string          `json:"subject_id"`
	Stream     ConsentStream   `json:"stream"`
	Categories []DataCategory  `json:"categories"`
	GrantedAt  time.Time       `json:"granted_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	RevokedAt  *time.Time      `json:"revoked_at,omitempty"`
	// AttestationSig is reserved for an adjacent layer that cryptographically
	// signs PARTNERED acceptances; this core leaves it nil (Open Question,
	// decided in DESIGN.md).
	AttestationSig []byte `json:"attestation_sig,omitempty"`
}

// IsExpired reports whether a temporary record has passed its TTL (§8
// invariant 8).
func (c ConsentRecord) IsExpired(now time.Time) bool {
	return c.Stream == ConsentTemporary && now.After(c.ExpiresAt)
}

// Permits reports whether the record currently permits reading the given
// category. An expired temporary record continues to permit ESSENTIAL
// reads but, per invariant 8, never permits non-ESSENTIAL reads.
func (c ConsentRecord) Permits(now time.Time, category DataCategory) bool {
	if c.RevokedAt != nil {
		return false
	}
	if c.Stream == ConsentTemporary || c.IsExpired(now) {
		return category == CategoryEssential
	}
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// AuditKind classifies an audit entry.
type AuditKind string

const (
	AuditAction        AuditKind = "action"
	AuditGateRejection AuditKind = "gate_rejection"
	AuditConsent       AuditKind = "consent"
	AuditSystem        AuditKind = "system"
)

// AuditEntry is one append-only, hash-chained audit record (§3).
type AuditEntry struct {
	Seq          uint64    `json:"seq"`
	OccurrenceID string    `json:"occurrence_id"`
	Kind         AuditKind `json:"kind"`
	PrevHash     []byte    `json:"prev_hash"`
	EntryHash    []byte    `json:"entry_hash"`
	Signature    []byte    `json:"signature"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}
