package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"crosslister/internal/model"
	"crosslister/internal/repository"
	"crosslister/internal/service/orchestrator"
	"crosslister/pkg/snowflake"
	"crosslister/pkg/utils"
)

// CreateListingRequest API request for publishing a listing
type CreateListingRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Condition   string          `json:"condition" binding:"required"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	Photos      []string        `json:"photos"`
	Platforms   []string        `json:"platforms"`
}

// UpdateListingRequest API request for partial listing updates
type UpdateListingRequest struct {
	model.ListingUpdate
	Platforms []string `json:"platforms"`
}

// ListingHandler listing handler
type ListingHandler struct {
	orchestrator orchestrator.Orchestrator
	listings     repository.ListingRepository
	ids          *snowflake.IDGenerator
	currency     string
}

// NewListingHandler creates a listing handler
func NewListingHandler(orch orchestrator.Orchestrator, listings repository.ListingRepository, ids *snowflake.IDGenerator, defaultCurrency string) *ListingHandler {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &ListingHandler{
		orchestrator: orch,
		listings:     listings,
		ids:          ids,
		currency:     defaultCurrency,
	}
}

// Create publishes a new listing to the requested platforms
func (h *ListingHandler) Create(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}

	listing := &model.ListingRecord{
		ID:          h.ids.NextStringID(),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		Condition:   req.Condition,
		Category:    req.Category,
		Brand:       req.Brand,
		Size:        req.Size,
		Quantity:    req.Quantity,
		Photos:      model.JSONArray(req.Photos),
		Status:      model.ListingStatusActive,
	}

	result, err := h.orchestrator.CreateListing(c.Request.Context(), listing, req.Platforms)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Create failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"listing": listing,
		"result":  result,
	})
}

// Update applies partial fields on each platform holding the listing
func (h *ListingHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Listing ID is required")
		return
	}

	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	}

	result, err := h.orchestrator.UpdateListing(c.Request.Context(), id, &req.ListingUpdate, req.Platforms)
	if err != nil {
		if errors.Is(err, utils.ErrListingNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Listing not found")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Update failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, result)
}

// Delete retires the listing from the requested platforms
func (h *ListingHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Listing ID is required")
		return
	}

	result, err := h.orchestrator.DeleteListing(c.Request.Context(), id, platformsQuery(c))
	if err != nil {
		if errors.Is(err, utils.ErrListingNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Listing not found")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Delete failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, result)
}

// Get returns one listing including its remote-id map
func (h *ListingHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Listing ID is required")
		return
	}

	listing, err := h.listings.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrListingNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Listing not found")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, listing)
}

// List returns a page of listings
func (h *ListingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status, _ := strconv.Atoi(c.DefaultQuery("status", "0"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	listings, total, err := h.listings.List(c.Request.Context(), page, pageSize, int8(status))
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"listings":  listings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// platformsQuery parses the optional comma-separated platforms query param
func platformsQuery(c *gin.Context) []string {
	raw := c.Query("platforms")
	if raw == "" {
		return nil
	}
	var platforms []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			platforms = append(platforms, p)
		}
	}
	return platforms
}
