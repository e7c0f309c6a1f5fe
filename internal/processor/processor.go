// Package processor implements the L4 Processor/Scheduler (§4.4): the
// round loop, cognitive-state FSM, task/thought lifecycle, multi-
// occurrence isolation, and the pause/single-step debugging surface.
// Grounded in idiom on the teacher framework's worker-pool lifecycle
// (orchestration/task_worker.go: atomic running flag, cancel+WaitGroup
// shutdown, configurable worker count) generalized to CIRIS's
// cognitive-state round loop, which the teacher does not have.
package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/pipeline"
)

// CognitiveState is the processor's coarse-grained mode (§4.4, GLOSSARY).
type CognitiveState string

const (
	StateWakeup   CognitiveState = "WAKEUP"
	StateWork     CognitiveState = "WORK"
	StateShutdown CognitiveState = "SHUTDOWN"
	// StatePlay, StateSolitude, StateDream are declared but never enabled
	// (§4.4); the processor refuses to transition into them.
	StatePlay     CognitiveState = "PLAY"
	StateSolitude CognitiveState = "SOLITUDE"
	StateDream    CognitiveState = "DREAM"
)

var enabledStates = map[CognitiveState]bool{
	StateWakeup:   true,
	StateWork:     true,
	StateShutdown: true,
}

// TaskStore and ThoughtStore are the persistence ports the processor
// drives (§3: "Owned by the processor; created by intake, mutated by the
// pipeline, persisted to the store").
type TaskStore interface {
	Save(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, taskID string) (*model.Task, error)
}

type ThoughtStore interface {
	Save(ctx context.Context, thought *model.Thought) error
	ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error)
}

// Config configures the round loop (§4.4, §5).
type Config struct {
	OccurrenceID       string
	MaxConcurrent      int
	PollInterval       time.Duration
	RoundDeadline      time.Duration
	Logger             logging.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.RoundDeadline <= 0 {
		c.RoundDeadline = 30 * time.Second
	}
}

// Processor runs the round-based scheduler loop (§4.4 "Round loop").
type Processor struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	tasks    TaskStore
	thoughts ThoughtStore
	logger   logging.Logger

	state       atomic.Value // CognitiveState
	running     atomic.Bool
	pausedFlag  atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	metrics *Metrics

	// prevSpeak tracks, per task, whether the previous round's final
	// action was SPEAK — feeding the Finalizer's post-SPEAK bias (§4.3).
	mu        sync.Mutex
	prevSpeak map[string]bool
}

// New constructs a Processor in the WAKEUP state.
func New(cfg Config, p *pipeline.Pipeline, tasks TaskStore, thoughts ThoughtStore) *Processor {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOp()
	}
	proc := &Processor{
		cfg: cfg, pipeline: p, tasks: tasks, thoughts: thoughts,
		logger:    logger.WithComponent("processor"),
		metrics:   NewMetrics(),
		prevSpeak: make(map[string]bool),
	}
	proc.state.Store(StateWakeup)
	return proc
}

// State returns the current cognitive state.
func (p *Processor) State() CognitiveState {
	return p.state.Load().(CognitiveState)
}

// Transition moves the processor to a new cognitive state. Transitions
// into PLAY, SOLITUDE, or DREAM are structurally refused (§4.4): these
// states are declared but not enabled.
func (p *Processor) Transition(to CognitiveState) error {
	if !enabledStates[to] {
		return cerr.New("Processor.Transition", cerr.KindValidation, "cognitive state not enabled: "+string(to))
	}
	p.state.Store(to)
	p.logger.Info("cognitive state transition", logging.Fields{"to": string(to)})
	return nil
}

// Start begins the round loop in a background goroutine.
func (p *Processor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop drains in-flight rounds and transitions to SHUTDOWN (§4.4: "intake
// is closed, active tasks are drained or deferred, then state is
// preserved").
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.running.Store(false)
	p.wg.Wait()
	p.Transition(StateShutdown)
}

// Paused reports whether the processor is currently paused.
func (p *Processor) Paused() bool { return p.pausedFlag.Load() }

// Metrics exposes the round/thought counters backing the agent status,
// transparency, and Prometheus export routes (§6).
func (p *Processor) Metrics() *Metrics { return p.metrics }

func (p *Processor) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Paused() {
				continue
			}
			p.runRound(ctx)
		}
	}
}

// runRound polls up to MaxConcurrent ready thoughts and advances each
// through the pipeline concurrently (§4.4 "Round loop", §5 "parallel
// workers with cooperative boundaries").
func (p *Processor) runRound(ctx context.Context) {
	p.metrics.RecordRound()
	thoughts, err := p.thoughts.ReadyThoughts(ctx, p.cfg.OccurrenceID, p.cfg.MaxConcurrent)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to poll ready thoughts", logging.Fields{"error": err.Error()})
		return
	}

	var wg sync.WaitGroup
	for _, th := range thoughts {
		th := th
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.advance(ctx, th)
		}()
	}
	wg.Wait()
}

// advance runs one thought through the pipeline and persists the result
// (§4.3, §4.4). It is the unit the "seconds per thought" metric (§8
// invariant 5) measures: per-thread wall time, not a message rate.
func (p *Processor) advance(ctx context.Context, thought *model.Thought) {
	task, err := p.tasks.Get(ctx, thought.TaskID)
	if err != nil || task == nil {
		p.logger.ErrorContext(ctx, "task missing for thought", logging.Fields{"thought_id": thought.ThoughtID})
		return
	}
	if task.OccurrenceID != p.cfg.OccurrenceID {
		// §4.4: "No occurrence may acknowledge a task owned by another."
		return
	}

	roundCtx, cancel := context.WithTimeout(ctx, p.cfg.RoundDeadline)
	defer cancel()

	start := time.Now()

	p.mu.Lock()
	previousWasSpeak := p.prevSpeak[task.TaskID]
	p.mu.Unlock()

	rc := &pipeline.RoundContext{Task: task, Paused: p.Paused(), PreviousWasSpeak: previousWasSpeak}
	result := p.pipeline.Run(roundCtx, rc, thought)

	p.metrics.RecordThought(time.Since(start))

	if result.Err != nil {
		p.logger.ErrorContext(ctx, "pipeline run failed", logging.Fields{"error": result.Err.Error(), "thought_id": thought.ThoughtID})
		thought.State = model.ThoughtFailed
	}

	p.mu.Lock()
	p.prevSpeak[task.TaskID] = result.FinalAction.ActionType == model.ActionSpeak
	p.mu.Unlock()

	if err := p.tasks.Save(ctx, task); err != nil {
		p.logger.ErrorContext(ctx, "failed to save task", logging.Fields{"error": err.Error()})
	}
	if err := p.thoughts.Save(ctx, thought); err != nil {
		p.logger.ErrorContext(ctx, "failed to save thought", logging.Fields{"error": err.Error()})
	}
}
