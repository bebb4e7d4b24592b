package http

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pricepilot/backend/internal/domain"
)

const (
	serviceName    = "pricepilot-backend"
	serviceVersion = "1.0.0"
)

// SearchUsecase runs price searches
type SearchUsecase interface {
	Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error)
	SearchBasic(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error)
	SearchDebug(ctx context.Context, request *domain.SearchRequest) (*domain.DebugResponse, error)
	AIAvailable() bool
}

// StatsReader exposes process-wide search counters
type StatsReader interface {
	Snapshot() domain.StatsSnapshot
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	search    SearchUsecase
	catalog   domain.CountryCatalog
	stats     StatsReader
	providers []domain.ProviderName
}

// NewHandler creates a new HTTP handler. Any dependency may be nil; the
// endpoints that need it then answer 503.
func NewHandler(search SearchUsecase, catalog domain.CountryCatalog, stats StatsReader, providers []domain.ProviderName) *Handler {
	return &Handler{
		search:    search,
		catalog:   catalog,
		stats:     stats,
		providers: providers,
	}
}

// ErrorResponse is the body of every non-search error
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	aiAvailable := false
	if h.search != nil {
		aiAvailable = h.search.AIAvailable()
	}
	providers := h.providers
	if providers == nil {
		providers = []domain.ProviderName{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      serviceName,
		"version":      serviceVersion,
		"providers":    providers,
		"ai_available": aiAvailable,
	})
}

// Countries lists supported countries and their currencies
func (h *Handler) Countries(c *gin.Context) {
	if h.catalog == nil {
		h.unavailable(c, "country catalog")
		return
	}

	countries := h.catalog.Countries()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"countries":  countries,
		"currencies": h.catalog.Currencies(),
		"total":      len(countries),
	})
}

// Search handles AI-enhanced price search requests
func (h *Handler) Search(c *gin.Context) {
	h.runSearch(c, domain.SearchModeAI)
}

// SearchBasic handles price-only search requests
func (h *Handler) SearchBasic(c *gin.Context) {
	h.runSearch(c, domain.SearchModeBasic)
}

func (h *Handler) runSearch(c *gin.Context, mode domain.SearchMode) {
	if h.search == nil {
		h.unavailable(c, "search")
		return
	}

	req, ok := bindSearchRequest(c)
	if !ok {
		return
	}

	run := h.search.Search
	if mode == domain.SearchModeBasic {
		run = h.search.SearchBasic
	}

	resp, err := run(c.Request.Context(), req)
	if err != nil {
		searchFailed(c, string(mode), err)
		return
	}

	status := http.StatusOK
	if !resp.Success {
		// Every provider failed
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

// SearchDebug returns each provider's normalized candidates for a query.
// Only mounted outside production.
func (h *Handler) SearchDebug(c *gin.Context) {
	if h.search == nil {
		h.unavailable(c, "search")
		return
	}

	req, ok := bindSearchRequest(c)
	if !ok {
		return
	}

	resp, err := h.search.SearchDebug(c.Request.Context(), req)
	if err != nil {
		searchFailed(c, "debug", err)
		return
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func bindSearchRequest(c *gin.Context) (*domain.SearchRequest, bool) {
	var req domain.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "request body must be JSON with country and query",
			RequestID: requestID(c),
		})
		return nil, false
	}
	return &req, true
}

// searchFailed maps input errors to 400 and everything else to 500
func searchFailed(c *gin.Context, mode string, err error) {
	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     string(inputErr.Kind),
			Message:   inputErr.Error(),
			RequestID: requestID(c),
		})
		return
	}
	log.Printf("[HTTP] %s search failed: %v", mode, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     "internal_error",
		Message:   "search failed",
		RequestID: requestID(c),
	})
}

// Stats returns process-wide search counters
func (h *Handler) Stats(c *gin.Context) {
	if h.stats == nil {
		h.unavailable(c, "stats")
		return
	}
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

func (h *Handler) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:     "unavailable",
		Message:   what + " is not configured",
		RequestID: requestID(c),
	})
}
