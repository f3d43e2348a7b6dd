package registry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orca-network/explorer/internal/logging"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/pagination"
	"github.com/orca-network/explorer/internal/validation"
)

// MaxPageSize caps the optional limit parameter.
const MaxPageSize = 1000

// Handler provides HTTP handlers for the explorer API
type Handler struct {
	svc *Service
}

// NewHandler creates a new registry handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the read-only explorer routes
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:id", h.GetAgent)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/network-configs", h.NetworkConfigs)
}

// ListAgents handles GET /agents
func (h *Handler) ListAgents(c *gin.Context) {
	ctx := c.Request.Context()

	filter, err := ParseFilter(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, cursor, ok := parsePaging(c)
	if !ok {
		return
	}

	res := h.svc.ListAgents(ctx, network.Resolve(c.Query("network")), filter)

	body := gin.H{
		"count":  len(res.Data),
		"agents": res.Data,
	}
	if limit != nil {
		page, next := pagination.Page(res.Data, cursor, *limit, func(a AgentData) string { return a.ID })
		body["agents"] = page
		if next != "" {
			body["nextCursor"] = next
		}
	}
	addIssues(body, res.Degraded)

	c.JSON(http.StatusOK, body)
}

// GetAgent handles GET /agents/:id
func (h *Handler) GetAgent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	res, err := h.svc.GetAgent(ctx, network.Resolve(c.Query("network")), id)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		if IsUpstream(err) {
			logging.L(ctx).Warn("agent details unavailable", "agent_id", id, "error", err)
		} else {
			logging.L(ctx).Error("agent details failed", "agent_id", id, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch agent details"})
		return
	}

	body := gin.H{"details": res.Data}
	addIssues(body, res.Degraded)
	c.JSON(http.StatusOK, body)
}

// ListTransactions handles GET /transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	var limit *int
	if errs := validation.Validate(
		validation.IntRange("limit", c.Query("limit"), 1, MaxPageSize, &limit),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.Error()})
		return
	}

	res := h.svc.ListTransactions(ctx, network.Resolve(c.Query("network")))

	txs := res.Data
	if limit != nil && len(txs) > *limit {
		txs = txs[:*limit]
	}

	body := gin.H{
		"transactions": txs,
		"nextToken":    nil,
	}
	addIssues(body, res.Degraded)
	c.JSON(http.StatusOK, body)
}

// NetworkConfigs handles GET /network-configs
func (h *Handler) NetworkConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Networks())
}

// parsePaging reads limit and cursor. It writes a 400 and returns false
// when either is malformed.
func parsePaging(c *gin.Context) (*int, *pagination.Cursor, bool) {
	var limit *int
	if errs := validation.Validate(
		validation.IntRange("limit", c.Query("limit"), 1, MaxPageSize, &limit),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.Error()})
		return nil, nil, false
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cursor: " + err.Error()})
		return nil, nil, false
	}
	if cursor != nil && limit == nil {
		n := MaxPageSize
		limit = &n
	}
	return limit, cursor, true
}

// addIssues marks body as degraded. Clean responses keep their original
// shape.
func addIssues(body gin.H, ds []Degradation) {
	if len(ds) == 0 {
		return
	}
	issues := make([]Issue, 0, len(ds))
	for _, d := range ds {
		issues = append(issues, d.Issue())
	}
	body["degraded"] = true
	body["issues"] = issues
}
