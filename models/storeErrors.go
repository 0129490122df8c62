package models

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

var domainErrors = []error{
	utils.ErrorInvalidAmount,
	utils.ErrorInvalidInput,
	utils.ErrorRecordNotFound,
	utils.ErrorAllocationFailure,
	utils.ErrorStoreIO,
	utils.ErrorLedgerConflict,
}

// storeError passes domain errors through and reports anything else from the
// persistence layer as StoreIO.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	if errors.Is(err, config.ErrTenantMismatch) {
		return fmt.Errorf("%w: %v", utils.ErrorInvalidInput, err)
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", utils.ErrorStoreIO, err)
}
