package models

// Outbox publish statuses for PubSubMessageRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type OutboxReferenceType string

const (
	OutboxReferenceAdmission     OutboxReferenceType = "ADMISSION"
	OutboxReferenceLedger        OutboxReferenceType = "ADMISSION_LEDGER"
	OutboxReferenceInvoiceExport OutboxReferenceType = "INVOICE_EXPORT"
)

type OutboxAction string

const (
	OutboxActionAdmissionCreated   OutboxAction = "AdmissionCreated"
	OutboxActionTransactionAdded   OutboxAction = "TransactionAdded"
	OutboxActionTransactionRemoved OutboxAction = "TransactionRemoved"
	OutboxActionInvoiceExported    OutboxAction = "InvoiceExported"
	OutboxActionDiscountsCleaned   OutboxAction = "DiscountsCleaned"
)
