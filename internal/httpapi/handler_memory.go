package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// httpCorrelationThought stands in for the thought the Memory Bus's
// stampSpan expects (§4.2: "propagate a correlation_id = current
// thought's span id into every outbound call"). HTTP requests have no
// thought of their own, so a synthetic one carries only an id for
// correlation purposes and is never persisted.
func httpCorrelationThought() *model.Thought {
	return &model.Thought{ThoughtID: "http-" + uuid.NewString()}
}

type memoryStoreRequest struct {
	Node model.GraphNode `json:"node" binding:"required"`
}

func (s *Server) handleMemoryStore(c *gin.Context) {
	var req memoryStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleMemoryStore", cerr.KindValidation, err))
		return
	}
	for attr := range req.Node.Attributes {
		if model.ManagedAttributes[attr] {
			writeError(c, cerr.New("httpapi.handleMemoryStore", cerr.KindManagedAttr, "cannot write system-managed attribute: "+attr))
			return
		}
	}

	if err := s.deps.Memory.Write(c.Request.Context(), httpCorrelationThought(), req.Node); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, MemorizeResponse{Status: "stored"})
}

func (s *Server) handleMemoryRecall(c *gin.Context) {
	id := model.NodeID{
		Scope:    c.Query("scope"),
		NodeType: c.Query("node_type"),
		NodeID:   c.Query("node_id"),
	}
	if id.Scope == "" || id.NodeType == "" || id.NodeID == "" {
		writeError(c, cerr.New("httpapi.handleMemoryRecall", cerr.KindValidation, "scope, node_type, and node_id query parameters are required"))
		return
	}

	node, err := s.deps.Memory.Read(c.Request.Context(), httpCorrelationThought(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

type memoryQueryRequest struct {
	Scope    string `json:"scope" binding:"required"`
	NodeType string `json:"node_type" binding:"required"`
	NodeID   string `json:"node_id" binding:"required"`
}

// handleMemoryQuery is a narrower alias of recall accepting a JSON body
// instead of query parameters (§6 "Memory: store, recall, query"); both
// resolve to the same single-node read since the graph store exposes no
// broader pattern search in this core.
func (s *Server) handleMemoryQuery(c *gin.Context) {
	var req memoryQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cerr.Wrap("httpapi.handleMemoryQuery", cerr.KindValidation, err))
		return
	}

	id := model.NodeID{Scope: req.Scope, NodeType: req.NodeType, NodeID: req.NodeID}
	node, err := s.deps.Memory.Read(c.Request.Context(), httpCorrelationThought(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}
