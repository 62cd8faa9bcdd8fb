package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creatorpulse/backend/internal/domain"
	"github.com/creatorpulse/backend/internal/platform/logger"
	"github.com/creatorpulse/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	products  *usecase.ProductService
	matching  *usecase.MatchingService
	lifecycle *usecase.LifecycleService
	log       *logger.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	products *usecase.ProductService,
	matching *usecase.MatchingService,
	lifecycle *usecase.LifecycleService,
	log *logger.Logger,
) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		products:  products,
		matching:  matching,
		lifecycle: lifecycle,
		log:       log.With("component", "HTTPHandler"),
	}
}

// RunMatchingRequest is the body of POST /api/v1/matching/runs
type RunMatchingRequest struct {
	SourceProductIDs []uuid.UUID `json:"source_product_ids" binding:"required,min=1"`
	Marketplaces     []string    `json:"marketplaces"`
	TopN             int         `json:"top_n"`
}

// ReasonRequest carries the optional free-text reason of a status change
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ExpireRequest is the body of POST /api/v1/matches/expire. An empty ttl uses the configured default.
type ExpireRequest struct {
	TTL string `json:"ttl"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "creatorpulse-matcher",
		"version": "1.0.0",
	}
	if h.matching != nil {
		resp["marketplaces"] = h.matching.Marketplaces()
	}
	c.JSON(http.StatusOK, resp)
}

// IngestProduct stores a source product observation
func (h *Handler) IngestProduct(c *gin.Context) {
	var record domain.ProductRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	stored, err := h.products.Ingest(c.Request.Context(), &record)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	product, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.products.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunMatching matches the requested sources against the requested marketplaces.
// A canceled run still answers with the partial report.
func (h *Handler) RunMatching(c *gin.Context) {
	var req RunMatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.TopN < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_n must not be negative"})
		return
	}

	marketplaces := make([]domain.Platform, 0, len(req.Marketplaces))
	for _, name := range req.Marketplaces {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			h.writeError(c, err)
			return
		}
		marketplaces = append(marketplaces, p)
	}

	report, err := h.matching.Run(c.Request.Context(), usecase.RunRequest{
		SourceProductIDs: req.SourceProductIDs,
		Marketplaces:     marketplaces,
		TopN:             req.TopN,
	})
	if err != nil && report == nil {
		h.writeError(c, err)
		return
	}
	if err != nil {
		h.log.Warn("matching run cut short", "error", err, "persisted", report.Persisted)
		c.JSON(http.StatusOK, gin.H{"report": report, "warning": "run was interrupted; report is partial"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ListMatches returns every match recorded for a source product, any status
func (h *Handler) ListMatches(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	matches, err := h.lifecycle.ListBySource(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if matches == nil {
		matches = []*domain.Match{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// ListConfirmed returns the public confirmed-match contract for a source product
func (h *Handler) ListConfirmed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	matches, err := h.lifecycle.ListConfirmed(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if matches == nil {
		matches = []domain.ConfirmedMatch{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *Handler) ConfirmMatch(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, _ string) (*domain.Match, error) {
		return h.lifecycle.Confirm(c.Request.Context(), id)
	})
}

func (h *Handler) RejectMatch(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, reason string) (*domain.Match, error) {
		return h.lifecycle.Reject(c.Request.Context(), id, reason)
	})
}

func (h *Handler) RevokeMatch(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, reason string) (*domain.Match, error) {
		return h.lifecycle.Revoke(c.Request.Context(), id, reason)
	})
}

func (h *Handler) MarkMatchUnavailable(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, reason string) (*domain.Match, error) {
		return h.lifecycle.MarkUnavailable(c.Request.Context(), id, reason)
	})
}

// ExpireMatches expires pending matches untouched for longer than the ttl
func (h *Handler) ExpireMatches(c *gin.Context) {
	var req ExpireRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ttl must be a positive duration such as 336h"})
			return
		}
		ttl = d
	}

	n, err := h.lifecycle.ExpireStale(c.Request.Context(), ttl)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": n})
}

func (h *Handler) transition(c *gin.Context, apply func(id uuid.UUID, reason string) (*domain.Match, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	match, err := apply(id, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps domain errors to status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrMalformedCandidate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrProductReferenced):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusBadGateway, gin.H{"error": "marketplace rejected our credentials"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindOptionalJSON decodes a body that may be absent. Chunked bodies have no length up front,
// so emptiness is only known once decoding hits EOF. Writes a 400 and returns false on bad JSON.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	err := c.ShouldBindJSON(req)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
	return false
}
