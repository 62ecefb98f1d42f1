package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crosslister/internal/model"
	"crosslister/internal/repository"
	"crosslister/internal/service/reconciler"
	"crosslister/pkg/lock"
	"crosslister/pkg/utils"
)

// ResolveDivergenceRequest API request for resolving a pending divergence
type ResolveDivergenceRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=applied kept"`
}

// SyncHandler reconciliation handler
type SyncHandler struct {
	reconciler  reconciler.Reconciler
	divergences repository.DivergenceRepository
	listings    repository.ListingRepository
	locker      *lock.ListingLocker
}

// NewSyncHandler creates a sync handler
func NewSyncHandler(
	rec reconciler.Reconciler,
	divergences repository.DivergenceRepository,
	listings repository.ListingRepository,
	locker *lock.ListingLocker,
) *SyncHandler {
	return &SyncHandler{
		reconciler:  rec,
		divergences: divergences,
		listings:    listings,
		locker:      locker,
	}
}

// TriggerSync runs a reconciliation pass on demand
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	report, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, utils.ErrSyncInProgress) {
			utils.ErrorResponse(c, http.StatusConflict, "Sync pass already running")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Sync failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, report)
}

// ListDivergences returns pending divergences, optionally for one listing
func (h *SyncHandler) ListDivergences(c *gin.Context) {
	listingID := c.Query("listing_id")

	divergences, err := h.divergences.ListPending(c.Request.Context(), listingID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"divergences": divergences,
		"count":       len(divergences),
	})
}

// ResolveDivergence records an operator decision for a pending divergence.
// Accepting the observed value rewrites the stored listing before the
// divergence is marked resolved, so the next pass sees converged state.
func (h *SyncHandler) ResolveDivergence(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid divergence ID")
		return
	}

	var req ResolveDivergenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parameters: "+err.Error())
		return
	}

	divergence, err := h.divergences.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrDivergenceNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Divergence not found")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}

	resolution := int8(model.ResolutionKept)
	if req.Resolution == "applied" {
		resolution = model.ResolutionApplied
		if err := h.applyObserved(c, divergence); err != nil {
			return
		}
	}

	if err := h.divergences.MarkResolved(c.Request.Context(), id, resolution); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Resolve failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"id": id, "resolution": req.Resolution})
}

// applyObserved overwrites the stored listing with the divergence's observed
// value under the listing's lock. Writes the error response itself.
func (h *SyncHandler) applyObserved(c *gin.Context, divergence *model.SyncDivergence) error {
	ctx := c.Request.Context()

	release, err := h.locker.Acquire(ctx, divergence.ListingID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Lock failed: "+err.Error())
		return err
	}
	defer release()

	listing, err := h.listings.GetByID(ctx, divergence.ListingID)
	if err != nil {
		if errors.Is(err, utils.ErrListingNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Listing not found")
			return err
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Query failed: "+err.Error())
		return err
	}

	if err := divergence.ApplyTo(listing); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Apply failed: "+err.Error())
		return err
	}
	if err := h.listings.Save(ctx, listing); err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Save failed: "+err.Error())
		return err
	}
	return nil
}
