package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
)

// ledger-verify recomputes every admission summary of a hospital and reports
// stored rows that break the ledger rules (several discounts, negative or zero
// amounts, unknown kinds, reused positions). Read only.
//
//	go run ./cmd/ledger-verify -hospital-id=...
//	go run ./cmd/ledger-verify -hospital-id=... -admission-id=42 -json
func main() {
	hospitalID := flag.String("hospital-id", "", "Required: hospital id")
	admissionID := flag.Int("admission-id", 0, "Optional: verify a single admission id")
	asJSON := flag.Bool("json", false, "Print one JSON line per admission")
	all := flag.Bool("all", false, "Print healthy admissions too")
	flag.Parse()

	hospital := strings.TrimSpace(*hospitalID)
	if hospital == "" {
		fmt.Fprintln(os.Stderr, "--hospital-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetHospitalIdInContext(context.Background(), hospital)
	ids := []int{*admissionID}
	if *admissionID <= 0 {
		var err error
		ids, err = models.GetAdmissionIds(ctx, db, hospital)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
			os.Exit(1)
		}
	}

	var broken int
	encoder := json.NewEncoder(os.Stdout)
	for _, id := range ids {
		check, err := models.VerifyAdmissionLedger(ctx, hospital, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admission_id=%d: %v\n", id, err)
			broken++
			continue
		}
		if len(check.Problems) > 0 {
			broken++
		} else if !*all {
			continue
		}
		if *asJSON {
			_ = encoder.Encode(check)
			continue
		}
		fmt.Printf("admission_id=%d number=%s version=%d rows=%d due=%s\n",
			check.AdmissionId, check.AdmissionNumber, check.LedgerVersion, check.Transactions, check.Summary.Due)
		for _, p := range check.Problems {
			fmt.Printf("  - %s\n", p)
		}
	}

	fmt.Fprintf(os.Stderr, "checked=%d broken=%d\n", len(ids), broken)
	if broken > 0 {
		os.Exit(1)
	}
}
