// Package httpapi implements CIRIS's versioned HTTP API surface (§6):
// auth, agent, memory, system, telemetry, transparency, consent, DSAR,
// and emergency-shutdown route groups. Grounded on the teacher pack's
// codeready-toolchain-tarsy `cmd/tarsy/main.go` (gin.Default(), inline
// gin.H health handler) for the router itself, and on
// itsneelabh-gomind's `orchestration/task_api.go`/`hitl_api.go`
// (functional-options handler construction, typed request/response
// structs, a single writeError helper) for the handler shape.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/audit"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/dsar"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/gate"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/processor"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/shutdown"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/telemetry/promexport"
)

// TaskLister is the task-read surface /v1/agent routes need: fetching
// one task by id and listing an occurrence's recent history.
type TaskLister interface {
	Get(ctx context.Context, taskID string) (*model.Task, error)
	List(ctx context.Context, occurrenceID string, limit int) ([]*model.Task, error)
}

// ThoughtCreator persists the seed thought an accepted interaction needs
// (§4.4: the round loop only ever polls thoughts already in the store;
// Gate.Accept creates the task but not its first thought).
type ThoughtCreator interface {
	Save(ctx context.Context, thought *model.Thought) error
}

// AuditReader is the read surface /v1/consent's audit route needs.
type AuditReader interface {
	All(occurrenceID string) ([]model.AuditEntry, error)
}

// Dependencies wires every capability the HTTP surface calls into.
// Fields are exported, plain struct composition rather than a builder,
// matching hitl_api.go's NewHITLHandler(controller, store, opts...)
// preference for direct dependency passing over a DI container.
type Dependencies struct {
	OccurrenceID string
	Logger       logging.Logger

	Sessions *Sessions
	Gate     *gate.Gate
	Tasks    TaskLister
	Thoughts ThoughtCreator

	Processor       *processor.Processor
	RuntimeControl  *bus.RuntimeControlBus
	Memory          *bus.MemoryBus
	Registry        *registry.Registry
	Audit           *audit.Chain
	AuditLog        AuditReader
	DSAR            *dsar.Tracker
	PromExporter    *promexport.Exporter
	ShutdownVerifier *shutdown.Verifier
}

// Server wraps a gin.Engine and the net/http.Server fronting it.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	deps   Dependencies
}

// New constructs a Server and registers every route group. It does not
// start listening; call Start for that.
func New(deps Dependencies, addr string, readTimeout, writeTimeout time.Duration) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.NoOp()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(deps.Logger))

	s := &Server{
		engine: engine,
		deps:   deps,
		http: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/login", s.handleLogin)
		auth.POST("/refresh", s.handleRefresh)
		auth.GET("/oauth/callback", s.handleOAuthCallback)
	}

	agent := s.engine.Group("/v1/agent", requireAuth(s.deps.Sessions))
	{
		agent.POST("/interact", s.handleInteract)
		agent.GET("/status", s.handleAgentStatus)
		agent.GET("/identity", s.handleAgentIdentity)
		agent.GET("/history", s.handleAgentHistory)
	}

	mem := s.engine.Group("/v1/memory", requireAuth(s.deps.Sessions))
	{
		mem.POST("/store", s.handleMemoryStore)
		mem.GET("/recall", s.handleMemoryRecall)
		mem.POST("/query", s.handleMemoryQuery)
	}

	sys := s.engine.Group("/v1/system")
	{
		sys.GET("/health", s.handleSystemHealth)
		sys.GET("/services/health", requireAuth(s.deps.Sessions), s.handleServicesHealth)
		sys.POST("/pause", requireAuth(s.deps.Sessions), requireAdmin(), s.handlePause)
		sys.POST("/resume", requireAuth(s.deps.Sessions), requireAdmin(), s.handleResume)
	}

	tel := s.engine.Group("/v1/telemetry", requireAuth(s.deps.Sessions))
	{
		tel.GET("/unified", s.handleTelemetryUnified)
		tel.GET("/traces", s.handleTelemetryTraces)
	}
	// Metrics export is scraped by infrastructure, not an authenticated
	// operator, so it sits outside the auth-required group (matching
	// Prometheus's own unauthenticated-scrape convention).
	s.engine.GET("/v1/telemetry/metrics", s.handleTelemetryMetrics)

	// Transparency is explicitly no-auth (§6 "public statistics feed").
	s.engine.GET("/v1/transparency/stats", s.handleTransparencyStats)

	consent := s.engine.Group("/v1/consent", requireAuth(s.deps.Sessions))
	{
		consent.GET("/status", s.handleConsentStatus)
		consent.POST("/grant", s.handleConsentGrant)
		consent.POST("/revoke", s.handleConsentRevoke)
		consent.GET("/audit", s.handleConsentAudit)
		consent.GET("/partnership", s.handleConsentPartnership)
	}

	dsarGroup := s.engine.Group("/v1/dsar", requireAuth(s.deps.Sessions))
	{
		dsarGroup.POST("/request", s.handleDSARRequest)
		dsarGroup.GET("/status/:request_id", s.handleDSARStatus)
	}

	// Emergency shutdown bypasses normal bearer-token auth (§6): its own
	// Ed25519 signature check is the authorization.
	s.engine.POST("/v1/shutdown", s.handleShutdown)
}

// Handler returns the underlying http.Handler, for tests that drive the
// router with httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins listening and blocks until the server stops or ctx is
// canceled, mirroring the teacher's router.Run pattern but with
// graceful-shutdown support layered on via http.Server directly.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- cerr.Wrap("httpapi.Start", cerr.KindFatal, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return cerr.Wrap("httpapi.Shutdown", cerr.KindFatal, err)
	}
	return nil
}
