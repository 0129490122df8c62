package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/document"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/sirupsen/logrus"
)

const defaultMaxInvoiceUploadBytes int64 = 20 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var (
	invoiceExporter   *models.InvoiceExporter
	invoiceExporterMu sync.RWMutex
)

func initInvoiceExporter() error {
	exporter, err := models.NewInvoiceExporter()
	if err != nil {
		return err
	}
	invoiceExporterMu.Lock()
	invoiceExporter = exporter
	invoiceExporterMu.Unlock()
	return nil
}

func getInvoiceExporter() *models.InvoiceExporter {
	invoiceExporterMu.RLock()
	defer invoiceExporterMu.RUnlock()
	return invoiceExporter
}

// INVOICE_MAX_UPLOAD_BYTES overrides the 20MB default.
func maxInvoiceUploadBytes() int64 {
	if v := strings.TrimSpace(os.Getenv("INVOICE_MAX_UPLOAD_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultMaxInvoiceUploadBytes
}

// exportInvoiceHandler takes the rendered invoice as multipart field "file"
// and stores it as fixed-size pages.
func exportInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		exporter := getInvoiceExporter()
		if exporter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "invoice export is not configured"})
			return
		}

		limit := maxInvoiceUploadBytes()
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1024*1024)
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > limit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds the upload limit"})
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !imageMimeTypes[mimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
			return
		}
		defer file.Close()

		rendered, err := document.DecodeImage(io.LimitReader(file, limit), config.GetInvoiceLayout().MaxSourcePixels)
		if err != nil {
			respondError(c, err)
			return
		}

		ctx := c.Request.Context()
		export, err := exporter.Export(ctx, id, rendered)
		if err != nil {
			respondError(c, err)
			return
		}

		hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"hospital_id":    hospitalId,
			"admission_id":   id,
			"invoice_number": export.InvoiceNumber,
			"pages":          export.PageCount,
		}).Info("[invoice.export]")

		c.JSON(http.StatusCreated, gin.H{"data": export})
	}
}

func listInvoiceExportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		exports, err := models.GetInvoiceExports(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": exports})
	}
}

// validObjectKey accepts only keys inside the caller's hospital prefix.
func validObjectKey(objectKey, hospitalId string) bool {
	if objectKey == "" || hospitalId == "" {
		return false
	}
	if strings.Contains(objectKey, "..") || strings.HasPrefix(objectKey, "/") {
		return false
	}
	return strings.HasPrefix(objectKey, hospitalId+"/")
}

// objectDownloadHandler serves stored pages when STORAGE_PUBLIC_BASE_URL
// points back at this service.
func objectDownloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		objectKey := strings.TrimSpace(c.Query("key"))
		hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
		if !validObjectKey(objectKey, hospitalId) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		reader, contentType, err := utils.OpenObject(ctx, objectKey)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage client error"})
			return
		}
		defer reader.Close()

		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
	}
}
