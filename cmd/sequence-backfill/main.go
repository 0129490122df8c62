package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
)

// sequence-backfill raises the Redis date counters to the highest number
// already stored, so a flushed or restored Redis never re-issues an
// admission or invoice number. Counters already at or above the stored value
// are left alone.
//
// Dry-run (default):
//
//	go run ./cmd/sequence-backfill -hospital-id=...
//
// Execute:
//
//	go run ./cmd/sequence-backfill -hospital-id=... -days=7 -dry-run=false
func main() {
	hospitalID := flag.String("hospital-id", "", "Required: hospital id")
	module := flag.String("module", "", "Optional: Admission or Invoice (default both)")
	days := flag.Int("days", 3, "How many days back to seed, including today")
	dryRun := flag.Bool("dry-run", true, "Print the counters that would be seeded (no writes)")
	flag.Parse()

	hospital := strings.TrimSpace(*hospitalID)
	if hospital == "" {
		fmt.Fprintln(os.Stderr, "--hospital-id is required")
		os.Exit(1)
	}
	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "--days must be positive")
		os.Exit(1)
	}
	modules := []string{models.NumberSeriesModuleAdmission, models.NumberSeriesModuleInvoice}
	if m := strings.TrimSpace(*module); m != "" {
		modules = []string{m}
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if !*dryRun {
		config.ConnectRedisWithRetry()
	}

	ctx := utils.SetHospitalIdInContext(context.Background(), hospital)
	today, err := utils.ConvertToDate(time.Now(), os.Getenv("HOSPITAL_TIMEZONE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid HOSPITAL_TIMEZONE: %v\n", err)
		os.Exit(1)
	}
	since := models.SequenceDateKey(today.AddDate(0, 0, -(*days - 1)))

	for _, m := range modules {
		scope := models.SequenceScope{HospitalId: hospital, Module: m}
		highWaters, err := models.SequenceHighWaters(ctx, db, scope, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "module=%s: scan failed: %v\n", m, err)
			os.Exit(1)
		}
		dateKeys := make([]string, 0, len(highWaters))
		for k := range highWaters {
			dateKeys = append(dateKeys, k)
		}
		sort.Strings(dateKeys)

		if len(dateKeys) == 0 {
			fmt.Printf("module=%s: nothing stored since %s\n", m, since)
			continue
		}
		allocator := &models.RedisSequenceAllocator{Client: config.GetRedisDB(), DB: db, Scope: scope}
		for _, dateKey := range dateKeys {
			highWater := highWaters[dateKey]
			if *dryRun {
				fmt.Printf("module=%s date=%s would seed to %d\n", m, dateKey, highWater)
				continue
			}
			seeded, err := allocator.Seed(ctx, dateKey, highWater)
			if err != nil {
				fmt.Fprintf(os.Stderr, "module=%s date=%s: seed failed: %v\n", m, dateKey, err)
				os.Exit(1)
			}
			if seeded {
				fmt.Printf("module=%s date=%s seeded to %d\n", m, dateKey, highWater)
			} else {
				fmt.Printf("module=%s date=%s already at or above %d\n", m, dateKey, highWater)
			}
		}
	}
	if *dryRun {
		fmt.Println("dry-run: no changes written")
	}
}
