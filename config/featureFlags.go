package config

import (
	"os"
	"strings"
)

const (
	SequenceBackendRedis  = "redis"
	SequenceBackendMySQL  = "mysql"
	SequenceBackendMemory = "memory"
)

// SequenceBackend picks the storage used for date-scoped sequence numbers.
//
// Set via env:
// - SEQUENCE_BACKEND=redis (default) | mysql | memory
//
// memory is for single-process local runs only.
func SequenceBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SEQUENCE_BACKEND")))
	switch v {
	case SequenceBackendMySQL, SequenceBackendMemory:
		return v
	}
	return SequenceBackendRedis
}

// DiscountAuditTrail copies superseded discounts into discount_histories
// before the ledger replaces them.
//
// Set via env:
// - DISCOUNT_AUDIT_TRAIL=true
func DiscountAuditTrail() bool {
	return envBool("DISCOUNT_AUDIT_TRAIL")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
