package utils

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// InvoicePageObjectKey is the bucket key of one exported page.
func InvoicePageObjectKey(hospitalId string, admissionId int, exportId string, pageNo int) string {
	return fmt.Sprintf("%s/invoices/%d/%s/page-%03d.png", hospitalId, admissionId, exportId, pageNo)
}

func BuildObjectAccessURL(objectKey string) string {
	base := strings.TrimSpace(os.Getenv("STORAGE_PUBLIC_BASE_URL"))
	if base != "" {
		if strings.Contains(base, "{objectKey}") {
			escaped := objectKey
			if strings.Contains(base, "?") {
				escaped = url.QueryEscape(objectKey)
			}
			return strings.ReplaceAll(base, "{objectKey}", escaped)
		}
		if strings.Contains(base, "?") {
			return base + url.QueryEscape(objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}

	gcsBucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if gcsBucket != "" {
		return "https://storage.googleapis.com/" + gcsBucket + "/" + objectKey
	}

	return objectKey
}
