package model

// HandlerStatus is the outcome category a handler reports (§4.5, §7).
type HandlerStatus string

const (
	HandlerCompleted HandlerStatus = "completed"
	HandlerFailed    HandlerStatus = "failed"
)

// HandlerOutcome is what PERFORM_ACTION (§4.3 step 9) receives back from a
// handler: completion, a failure taxonomy code, and an optional follow-up
// thought request (§4.5: "a handler may request a follow-up thought, but
// only one follow-up per step").
type HandlerOutcome struct {
	Status            HandlerStatus
	FailureCode       string
	FailureMessage    string
	RequestsFollowUp  bool
	FollowUpReason    string
	FollowUpMarker    string
	// ToolCorrelation attaches a TOOL result to the next thought's context
	// (§4.5: "TOOL results are stored as a correlation and attached to the
	// next thought's context").
	ToolCorrelation *Correlation
}
