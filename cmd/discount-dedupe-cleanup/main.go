package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/sirupsen/logrus"
)

// discount-dedupe-cleanup removes stale discount rows from admissions written
// before a ledger kept at most one discount. The last discount in ledger order
// stays active, which is also what the summary already charged.
//
// Dry-run (default): list affected admissions
//
//	go run ./cmd/discount-dedupe-cleanup -hospital-id=...
//
// Execute:
//
//	go run ./cmd/discount-dedupe-cleanup -hospital-id=... -dry-run=false -confirm=DELETE
//
// Single admission:
//
//	go run ./cmd/discount-dedupe-cleanup -hospital-id=... -admission-id=42 -dry-run=false -confirm=DELETE
func main() {
	hospitalID := flag.String("hospital-id", "", "Required: hospital id")
	admissionID := flag.Int("admission-id", 0, "Optional: clean up a single admission id")
	dryRun := flag.Bool("dry-run", true, "List only (no writes)")
	confirm := flag.String("confirm", "", "Type DELETE to proceed when dry-run=false")
	flag.Parse()

	hospital := strings.TrimSpace(*hospitalID)
	if hospital == "" {
		fmt.Fprintln(os.Stderr, "--hospital-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "DELETE" {
		fmt.Fprintln(os.Stderr, "set --confirm=DELETE to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := utils.SetHospitalIdInContext(context.Background(), hospital)
	ctx = utils.SetUsernameInContext(ctx, "discount-dedupe-cleanup")

	ids := []int{*admissionID}
	if *admissionID <= 0 {
		var err error
		ids, err = models.GetAdmissionIdsWithStaleDiscounts(ctx, db, hospital)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
	}
	if len(ids) == 0 {
		fmt.Println("no admissions with stale discounts found")
		return
	}
	fmt.Printf("found %d admissions to check\n", len(ids))

	var cleaned, failed int
	for _, id := range ids {
		stale, err := models.StaleDiscounts(ctx, hospital, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admission_id=%d: %v\n", id, err)
			failed++
			continue
		}
		if len(stale) == 0 {
			continue
		}
		if *dryRun {
			for _, tx := range stale {
				fmt.Printf("admission_id=%d would remove discount %s amount=%s occurred_at=%s\n",
					id, tx.ID, tx.Amount, tx.OccurredAt.Format("2006-01-02 15:04:05"))
			}
			continue
		}

		result, removed, err := models.DropStaleDiscounts(ctx, hospital, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admission_id=%d: cleanup failed: %v\n", id, err)
			failed++
			continue
		}
		cleaned++
		logger.WithFields(logrus.Fields{
			"hospital_id":     hospital,
			"admission_id":    id,
			"removed":         len(removed),
			"active_discount": result.Transaction.ID,
			"ledger_version":  result.LedgerVersion,
		}).Info("[discount-dedupe-cleanup] cleaned")
		fmt.Printf("admission_id=%d removed=%d due=%s\n", id, len(removed), result.Summary.Due)
	}

	if *dryRun {
		fmt.Println("dry-run: no changes written")
		return
	}
	fmt.Printf("done: cleaned=%d failed=%d\n", cleaned, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
