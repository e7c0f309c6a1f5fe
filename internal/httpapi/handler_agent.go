package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/gate"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

type interactRequest struct {
	ChannelID  string `json:"channel_id" binding:"required"`
	Payload    string `json:"payload" binding:"required"`
	IsDirect   bool   `json:"is_direct"`
	ExternalID string `json:"external_id"`
}

// handleInteract is the one route that drives intake through the gate
// and into the processor (§6 "Agent: interact (POST; triggers
// gate+pipeline)"). Gate.Accept only ever creates the Task; this handler
// constructs and persists the task's seed thought immediately afterward,
// since nothing else in the core does (the round loop only polls
// thoughts that already exist).
func (s *Server) handleInteract(c *gin.Context) {
	var req interactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleInteract", cerr.KindValidation, err))
		return
	}
	subjectID, role := subjectAndRole(c)

	task, err := s.deps.Gate.Accept(c.Request.Context(), gate.InboundEvent{
		AdapterID:  "http",
		ChannelID:  req.ChannelID,
		ExternalID: req.ExternalID,
		SubjectID:  subjectID,
		Payload:    req.Payload,
		IsDirect:   req.IsDirect,
		ArrivedAt:  time.Now().UTC(),
		Role:       role,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	seed := &model.Thought{
		ThoughtID:  uuid.NewString(),
		TaskID:     task.TaskID,
		Generation: model.GenerationSeed,
		State:      model.ThoughtNew,
		Round:      0,
		CreatedAt:  task.CreatedAt,
	}
	if err := s.deps.Thoughts.Save(c.Request.Context(), seed); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleInteract", cerr.KindFatal, err))
		return
	}

	c.JSON(http.StatusAccepted, InteractResponse{TaskID: task.TaskID, Status: string(task.Status)})
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	metrics := s.deps.Processor.Metrics()
	c.JSON(http.StatusOK, AgentStatusResponse{
		OccurrenceID:      s.deps.OccurrenceID,
		CognitiveState:    string(s.deps.Processor.State()),
		Paused:            s.deps.Processor.Paused(),
		ThoughtsProcessed: metrics.ThoughtsProcessed(),
		SecondsPerThought: metrics.MeanSecondsPerThought(),
	})
}

func (s *Server) handleAgentIdentity(c *gin.Context) {
	c.JSON(http.StatusOK, AgentIdentityResponse{
		OccurrenceID: s.deps.OccurrenceID,
		Description:  "CIRIS ethically-gated autonomous agent runtime core",
	})
}

func (s *Server) handleAgentHistory(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, cerr.New("httpapi.handleAgentHistory", cerr.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	tasks, err := s.deps.Tasks.List(c.Request.Context(), s.deps.OccurrenceID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	entries := make([]TaskHistoryEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, TaskHistoryEntry{
			TaskID:       t.TaskID,
			Status:       string(t.Status),
			InitialInput: t.InitialInput,
			RoundCount:   t.RoundCount,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, entries)
}
