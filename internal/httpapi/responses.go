package httpapi

import "time"

// ErrorResponse is the standard error envelope for every route (§6).
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /v1/system/health.
type HealthResponse struct {
	Status       string `json:"status"`
	OccurrenceID string `json:"occurrence_id"`
	State        string `json:"cognitive_state"`
	Paused       bool   `json:"paused"`
}

// ServiceHealthResponse is returned by GET /v1/system/services/health: one
// entry per registered capability, each listing its providers' circuit
// state (§4.1).
type ServiceHealthResponse struct {
	Capabilities map[string][]ProviderHealth `json:"capabilities"`
}

type ProviderHealth struct {
	InstanceRef string `json:"instance_ref"`
	State       string `json:"state"`
	Priority    int    `json:"priority"`
}

// InteractResponse is returned by POST /v1/agent/interact: the task was
// admitted by the gate and is now queued for the processor's round loop.
type InteractResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// AgentStatusResponse is returned by GET /v1/agent/status.
type AgentStatusResponse struct {
	OccurrenceID      string  `json:"occurrence_id"`
	CognitiveState    string  `json:"cognitive_state"`
	Paused            bool    `json:"paused"`
	ThoughtsProcessed uint64  `json:"thoughts_processed"`
	SecondsPerThought float64 `json:"seconds_per_thought"`
}

// AgentIdentityResponse is returned by GET /v1/agent/identity.
type AgentIdentityResponse struct {
	OccurrenceID string `json:"occurrence_id"`
	Description  string `json:"description"`
}

// TaskHistoryEntry is one entry in GET /v1/agent/history.
type TaskHistoryEntry struct {
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	InitialInput string    `json:"initial_input"`
	RoundCount   int       `json:"round_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MemorizeResponse is returned by POST /v1/memory/store.
type MemorizeResponse struct {
	Status string `json:"status"`
}

// TransparencyStatsResponse is returned by GET /v1/transparency/stats (no
// auth, §6): a deliberately narrow, aggregate-only view.
type TransparencyStatsResponse struct {
	ThoughtsProcessed uint64  `json:"thoughts_processed"`
	RoundsRun         uint64  `json:"rounds_run"`
	SecondsPerThought float64 `json:"seconds_per_thought"`
}

// ConsentStatusResponse is returned by GET /v1/consent/status.
type ConsentStatusResponse struct {
	SubjectID   string   `json:"subject_id"`
	Stream      string   `json:"stream"`
	Categories  []string `json:"categories"`
	GrantedAt   string   `json:"granted_at"`
	ExpiresAt   string   `json:"expires_at"`
	Revoked     bool     `json:"revoked"`
	Partnered   bool     `json:"partnered"`
}

// ConsentAuditEntry is one entry in GET /v1/consent/audit.
type ConsentAuditEntry struct {
	Seq     uint64 `json:"seq"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// DSARAcceptedResponse is returned by POST /v1/dsar/request.
type DSARAcceptedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// DSARStatusResponse is returned by GET /v1/dsar/status/:id.
type DSARStatusResponse struct {
	RequestID string                 `json:"request_id"`
	Status    string                 `json:"status"`
	Kind      string                 `json:"kind"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ShutdownAcceptedResponse is returned by POST /v1/shutdown.
type ShutdownAcceptedResponse struct {
	Status string `json:"status"`
}

// StatusResponse is a minimal status envelope shared by the pause/resume
// system-control routes.
type StatusResponse struct {
	Status string `json:"status"`
}

// LoginResponse is returned by POST /v1/auth/login and /v1/auth/refresh.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}
