package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crosslister/internal/service/sales"
	"crosslister/pkg/utils"
)

// SalesHandler sales report handler
type SalesHandler struct {
	aggregator sales.Aggregator
	windowDays int
}

// NewSalesHandler creates a sales handler. windowDays is the default report
// window when the request does not pin one.
func NewSalesHandler(aggregator sales.Aggregator, windowDays int) *SalesHandler {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &SalesHandler{
		aggregator: aggregator,
		windowDays: windowDays,
	}
}

// Report builds the sales report for the requested window. With refresh=true
// the platforms are polled first; otherwise the report is served from the
// local store.
func (h *SalesHandler) Report(c *gin.Context) {
	from, to, err := h.parseWindow(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var report *sales.Report
	if c.Query("refresh") == "true" {
		report, err = h.aggregator.Aggregate(c.Request.Context(), from, to)
	} else {
		report, err = h.aggregator.ReportFromStore(c.Request.Context(), from, to)
	}
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Report failed: "+err.Error())
		return
	}

	utils.SuccessResponse(c, report)
}

func (h *SalesHandler) parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -h.windowDays)
	to := now

	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = parseDate(raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseDate(raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
		// A bare date means the whole day is included.
		if len(raw) == len(utils.DateFormat) {
			to = utils.GetEndOfDay(to)
		}
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := utils.ParseDate(raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want RFC3339 or %s", raw, utils.DateFormat)
}
