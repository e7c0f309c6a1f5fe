package handlers

import "github.com/CIRISAI/CIRISAgent-sub001/internal/bus"

// Dependencies are the buses handlers dispatch side effects through
// (§4.5 groups: External uses Communication/Tool, Memory uses Memory,
// Deferral and Terminal handlers have no external side effect).
type Dependencies struct {
	Communication *bus.CommunicationBus
	Memory        *bus.MemoryBus
	Tool          *bus.ToolBus
}
