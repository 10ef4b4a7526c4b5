package controllers

import (
	"net/http"
	"strconv"
	"time"

	"shipping-gateway/models"
	"shipping-gateway/services"

	"github.com/gin-gonic/gin"
)

// ShippingController handles HTTP requests for shipping operations.
type ShippingController struct {
	shippingService services.ShippingService
}

// NewShippingController creates a new ShippingController.
func NewShippingController(svc services.ShippingService) *ShippingController {
	return &ShippingController{shippingService: svc}
}

// Health handles GET /health
func (sc *ShippingController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetRates handles POST /api/rates
func (sc *ShippingController) GetRates(ctx *gin.Context) {
	var req models.RatesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request: " + err.Error()})
		return
	}

	set, svcErr := sc.shippingService.GetRates(ctx.Request.Context(), &req)
	if svcErr != nil {
		body := gin.H{"success": false, "error": svcErr.Message}
		if len(set.Errors) > 0 {
			body["errors"] = set.Errors
		}
		ctx.JSON(svcErr.StatusCode, body)
		return
	}

	data := make(map[string][]map[string]any, len(set.Results))
	for provider, rates := range set.Results {
		flat := make([]map[string]any, 0, len(rates))
		for _, r := range rates {
			flat = append(flat, r.CanonicalFields())
		}
		data[provider] = flat
	}

	body := gin.H{"success": true, "data": data}
	if len(set.Errors) > 0 {
		body["errors"] = set.Errors
	}
	ctx.JSON(http.StatusOK, body)
}

// PurchaseLabel handles POST /api/purchase
func (sc *ShippingController) PurchaseLabel(ctx *gin.Context) {
	var req models.PurchaseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request: " + err.Error()})
		return
	}

	result, svcErr := sc.shippingService.PurchaseLabel(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"success": false, "error": svcErr.Message})
		return
	}

	data := result.Label.CanonicalFields()
	data["record_id"] = result.RecordID
	if result.FileLink != "" {
		data["label_link"] = result.FileLink
	}

	body := gin.H{"success": true, "data": data}
	if result.Warning != "" {
		body["warning"] = result.Warning
	}
	ctx.JSON(http.StatusCreated, body)
}

// ValidateAddress handles POST /api/validate
func (sc *ShippingController) ValidateAddress(ctx *gin.Context) {
	var req models.ValidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request: " + err.Error()})
		return
	}

	result, svcErr := sc.shippingService.ValidateAddress(ctx.Request.Context(), &req)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"success": false, "error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": result.CanonicalFields()})
}

// TrackShipment handles GET /api/track/:provider/:tracking_number
func (sc *ShippingController) TrackShipment(ctx *gin.Context) {
	provider := ctx.Param("provider")
	trackingNumber := ctx.Param("tracking_number")
	if trackingNumber == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Tracking number is required"})
		return
	}

	status, svcErr := sc.shippingService.TrackShipment(ctx.Request.Context(), provider, trackingNumber)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"success": false, "error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": status})
}

// History handles GET /api/history
func (sc *ShippingController) History(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)

	q := services.HistoryQuery{Page: page, Limit: limit}
	if from, ok := parseDateParam(ctx, "from"); ok {
		q.From = &from
	}
	if to, ok := parseDateParam(ctx, "to"); ok {
		// inclusive end date
		end := to.Add(24 * time.Hour)
		q.To = &end
	}

	records, total, svcErr := sc.shippingService.History(ctx.Request.Context(), q)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"success": false, "error": svcErr.Message})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// parseDateParam reads a YYYY-MM-DD query param.
func parseDateParam(ctx *gin.Context, name string) (time.Time, bool) {
	raw := ctx.Query(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parsePaginationParams extracts and validates page/limit query params.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const maxLimit = 100
	pageInt, limitInt := 1, 20
	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "20")); err == nil && l > 0 {
		if l > maxLimit {
			l = maxLimit
		}
		limitInt = l
	}
	return pageInt, limitInt
}
