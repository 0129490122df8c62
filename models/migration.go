package models

import (
	"log"

	"github.com/mmdatafocus/admission_billing/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Admission{}, &AdmissionService{}, &AdmissionTransaction{},
		&DiscountHistory{},
		&Document{}, &InvoiceExport{},
		&IdempotencyKey{},
		&NumberSeriesPrefix{},
		&PubSubMessageRecord{},
		&SequenceCounter{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
