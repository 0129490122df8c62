package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/admission_billing/middlewares"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/models/reports"
	"github.com/mmdatafocus/admission_billing/utils"
)

// summaries are batched through one dataloader call
const maxSummaryIds = 100

func createAdmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewAdmission
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		admission, err := models.CreateAdmission(c.Request.Context(), &req, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": admission})
	}
}

func getAdmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		admission, err := models.GetAdmission(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": admission})
	}
}

type dischargeRequest struct {
	DischargedAt *time.Time `json:"discharged_at"`
}

func dischargeAdmissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req dischargeRequest
		// an empty body discharges now
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		admission, err := models.DischargeAdmission(c.Request.Context(), id, utils.DereferencePtr(req.DischargedAt, time.Now().UTC()))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": admission})
	}
}

func addServiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req models.NewAdmissionService
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		service, err := models.AddAdmissionService(c.Request.Context(), id, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": service})
	}
}

func removeServiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		serviceId, ok := pathId(c, "serviceId")
		if !ok {
			return
		}
		service, err := models.RemoveAdmissionService(c.Request.Context(), id, serviceId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": service})
	}
}

func listTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if _, err := models.GetAdmission(ctx, id); err != nil {
			respondError(c, err)
			return
		}
		txs, err := models.GetLedgerTransactions(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": txs})
	}
}

func appendTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req models.NewLedgerEntry
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		requestKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		result, err := models.AppendLedgerEntry(c.Request.Context(), id, &req, requestKey)
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"data": result})
	}
}

func removeTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		transactionId := strings.TrimSpace(c.Param("transactionId"))
		if transactionId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transactionId"})
			return
		}
		result, err := models.RemoveLedgerEntry(c.Request.Context(), id, transactionId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func admissionSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		view, err := middlewares.GetAdmissionLedgerView(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": view})
	}
}

// parseIdList reads "1,2,3"; duplicates are dropped and order is kept.
func parseIdList(raw string) ([]int, error) {
	var ids []int
	for _, part := range splitAndTrim(raw) {
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, utils.ErrorInvalidInput
		}
		ids = append(ids, id)
	}
	ids = utils.UniqueSlice(ids)
	if len(ids) == 0 || len(ids) > maxSummaryIds {
		return nil, utils.ErrorInvalidInput
	}
	return ids, nil
}

func admissionSummariesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := parseIdList(c.Query("ids"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids must be 1 to 100 comma-separated admission ids"})
			return
		}
		views, err := middlewares.GetAdmissionLedgerViews(c.Request.Context(), ids)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": views})
	}
}

func ledgerStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		data, filename, err := reports.LedgerStatement(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

func listNumberSeriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		prefixes, err := models.GetNumberPrefixes(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": prefixes})
	}
}

func setNumberSeriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewNumberSeriesPrefix
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		prefix, err := models.SetNumberPrefix(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": prefix})
	}
}

type outboxReplayRequest struct {
	HospitalId    string `json:"hospital_id"`
	ReferenceType string `json:"reference_type"`
	ReferenceId   int    `json:"reference_id"`
}

func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.HospitalId == "" || req.ReferenceType == "" || req.ReferenceId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hospital_id, reference_type and reference_id are required"})
			return
		}
		ctx := utils.SetHospitalIdInContext(c.Request.Context(), req.HospitalId)
		count, err := models.ReplayOutbox(ctx, models.OutboxReferenceType(req.ReferenceType), req.ReferenceId)
		if err != nil {
			respondError(c, err)
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"hospital_id":    req.HospitalId,
			"reference_type": req.ReferenceType,
			"reference_id":   req.ReferenceId,
			"replayed":       count,
			"publish_status": models.OutboxPublishStatusPending,
			"correlation_id": cid,
		})
	}
}
