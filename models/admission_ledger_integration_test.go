package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/mmdatafocus/admission_billing/workflow"
	"github.com/shopspring/decimal"
)

var (
	integrationOnce sync.Once
	integrationErr  error
)

// setupIntegration starts MySQL and Redis once per test binary and migrates a
// fresh schema. Each test gets its own hospital id.
func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	integrationOnce.Do(func() {
		redisName, redisPort, err := startRedisContainer()
		if err != nil {
			integrationErr = err
			return
		}
		mysqlName, mysqlPort, err := startMySQLContainer()
		if err != nil {
			_ = dockerRmForce(redisName)
			integrationErr = err
			return
		}
		containers = append(containers, redisName, mysqlName)

		os.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
		os.Setenv("DB_USER", "root")
		os.Setenv("DB_PASSWORD", "testpw")
		os.Setenv("DB_HOST", "127.0.0.1")
		os.Setenv("DB_PORT", mysqlPort)
		os.Setenv("DB_NAME", "admission_billing_test")

		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry()
		models.MigrateTable()
	})
	if integrationErr != nil {
		t.Fatalf("integration setup: %v", integrationErr)
	}

	ctx := context.Background()
	ctx = utils.SetHospitalIdInContext(ctx, fmt.Sprintf("hosp-%d", time.Now().UnixNano()))
	ctx = utils.SetUsernameInContext(ctx, "cashier@test.local")
	return ctx
}

var containers []string

func TestMain(m *testing.M) {
	code := m.Run()
	for _, c := range containers {
		_ = dockerRmForce(c)
	}
	os.Exit(code)
}

func createAdmissionWithServices(t *testing.T, ctx context.Context, amounts ...int64) *models.Admission {
	t.Helper()
	admission, err := models.CreateAdmission(ctx, &models.NewAdmission{PatientName: "Asha Rao", ContactPhone: "+91 98765 43210"}, nil)
	if err != nil {
		t.Fatalf("CreateAdmission: %v", err)
	}
	for i, amount := range amounts {
		_, err := models.AddAdmissionService(ctx, admission.ID, &models.NewAdmissionService{
			Name:     fmt.Sprintf("Service %d", i+1),
			Quantity: decimal.NewFromInt(1),
			Rate:     decimal.NewFromInt(amount),
		})
		if err != nil {
			t.Fatalf("AddAdmissionService: %v", err)
		}
	}
	return admission
}

func appendEntry(t *testing.T, ctx context.Context, admissionId int, kind, amount, requestKey string) *models.LedgerMutation {
	t.Helper()
	res, err := models.AppendLedgerEntry(ctx, admissionId, &models.NewLedgerEntry{Kind: kind, Amount: amount, Channel: "cash"}, requestKey)
	if err != nil {
		t.Fatalf("AppendLedgerEntry(%s %s): %v", kind, amount, err)
	}
	return res
}

func TestAdmissionLedger_DischargeScenario(t *testing.T) {
	ctx := setupIntegration(t)
	admission := createAdmissionWithServices(t, ctx, 6000, 4000)
	if admission.ContactPhone != "+919876543210" {
		t.Fatalf("phone not normalized: %q", admission.ContactPhone)
	}

	appendEntry(t, ctx, admission.ID, "advance", "5000", "")
	first := appendEntry(t, ctx, admission.ID, "discount", "1000", "")
	if !first.Summary.Due.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected due 4000, got %s", first.Summary.Due)
	}

	second := appendEntry(t, ctx, admission.ID, "discount", "1500", "")
	if !second.Summary.ActiveDiscount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected active discount 1500, got %s", second.Summary.ActiveDiscount)
	}
	if !second.Summary.Due.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("expected due 3500, got %s", second.Summary.Due)
	}
	discounts := 0
	for _, tx := range second.Transactions {
		if tx.Kind == ledger.KindDiscount {
			discounts++
		}
	}
	if discounts != 1 {
		t.Fatalf("expected exactly one stored discount, got %d", discounts)
	}

	view, err := models.GetAdmissionLedgerView(ctx, admission.ID)
	if err != nil {
		t.Fatalf("GetAdmissionLedgerView: %v", err)
	}
	if view.DueInWords != "Three Thousand Five Hundred" {
		t.Fatalf("unexpected words %q", view.DueInWords)
	}
	if view.LedgerVersion != 3 {
		t.Fatalf("expected ledger version 3, got %d", view.LedgerVersion)
	}

	// removing the only discount brings the due back up
	if _, err := models.RemoveLedgerEntry(ctx, admission.ID, second.Transaction.ID); err != nil {
		t.Fatalf("RemoveLedgerEntry: %v", err)
	}
	view, err = models.GetAdmissionLedgerView(ctx, admission.ID)
	if err != nil {
		t.Fatalf("GetAdmissionLedgerView: %v", err)
	}
	if !view.Summary.Due.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected due 5000 after removing the discount, got %s", view.Summary.Due)
	}

	if _, err := models.RemoveLedgerEntry(ctx, admission.ID, "missing"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
	if _, err := models.AppendLedgerEntry(ctx, admission.ID, &models.NewLedgerEntry{Kind: "advance", Amount: "-5"}, ""); !errors.Is(err, utils.ErrorInvalidAmount) {
		t.Fatalf("expected ErrorInvalidAmount, got %v", err)
	}
}

func TestAdmissionLedger_IdempotentAppend(t *testing.T) {
	ctx := setupIntegration(t)
	admission := createAdmissionWithServices(t, ctx, 2000)

	first := appendEntry(t, ctx, admission.ID, "advance", "500", "req-1")
	again := appendEntry(t, ctx, admission.ID, "advance", "500", "req-1")
	if !again.Replayed {
		t.Fatalf("second append with the same key should be replayed")
	}
	if again.Transaction.ID != first.Transaction.ID {
		t.Fatalf("replay returned %s, want %s", again.Transaction.ID, first.Transaction.ID)
	}
	txs, err := models.GetLedgerTransactions(ctx, admission.ID)
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected one stored transaction, got %d", len(txs))
	}
}

func TestAdmissionLedger_ConcurrentAppends(t *testing.T) {
	ctx := setupIntegration(t)
	admission := createAdmissionWithServices(t, ctx, 10000)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = models.AppendLedgerEntry(ctx, admission.ID, &models.NewLedgerEntry{Kind: "deposit", Amount: "100"}, "")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	view, err := models.GetAdmissionLedgerView(ctx, admission.ID)
	if err != nil {
		t.Fatalf("GetAdmissionLedgerView: %v", err)
	}
	if len(view.Transactions) != writers {
		t.Fatalf("expected %d transactions, got %d", writers, len(view.Transactions))
	}
	if !view.Summary.Collected.Equal(decimal.NewFromInt(100 * writers)) {
		t.Fatalf("unexpected collected %s", view.Summary.Collected)
	}
	if view.LedgerVersion != writers {
		t.Fatalf("expected ledger version %d, got %d", writers, view.LedgerVersion)
	}
}

func TestAdmissionLedgerView_ConsistentDuringWrites(t *testing.T) {
	ctx := setupIntegration(t)
	admission := createAdmissionWithServices(t, ctx, 10000)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)

	const writes = 20
	done := make(chan error, 1)
	go func() {
		for i := 0; i < writes; i++ {
			if _, err := models.AppendLedgerEntry(ctx, admission.ID, &models.NewLedgerEntry{Kind: "deposit", Amount: "10"}, ""); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	// every write adds one row and bumps the version once
	for reading := true; reading; {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("AppendLedgerEntry: %v", err)
			}
			reading = false
		default:
		}
		view, err := models.GetAdmissionLedgerView(ctx, admission.ID)
		if err != nil {
			t.Fatalf("GetAdmissionLedgerView: %v", err)
		}
		if int64(len(view.Transactions)) != view.LedgerVersion {
			t.Fatalf("view mixes snapshots: version %d with %d rows", view.LedgerVersion, len(view.Transactions))
		}
		snapshot, err := models.ReadLedgerSnapshot(ctx, hospitalId, []int{admission.ID})
		if err != nil {
			t.Fatalf("ReadLedgerSnapshot: %v", err)
		}
		if len(snapshot.Admissions) != 1 || int64(len(snapshot.Ledgers[admission.ID])) != snapshot.Admissions[0].LedgerVersion {
			t.Fatalf("snapshot mixes reads: %+v", snapshot)
		}
	}
}

func TestMutateLedger_StaleVersionConflicts(t *testing.T) {
	ctx := setupIntegration(t)
	admission := createAdmissionWithServices(t, ctx, 1000)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)

	// a concurrent writer commits while this op is still running
	_, err := models.MutateLedger(ctx, hospitalId, admission.ID, models.OutboxActionTransactionAdded, "", func(l *ledger.Ledger) (ledger.Transaction, error) {
		if _, err := models.MutateLedger(ctx, hospitalId, admission.ID, models.OutboxActionTransactionAdded, "", func(inner *ledger.Ledger) (ledger.Transaction, error) {
			return inner.Append(ledger.Entry{Kind: ledger.KindAdvance, Amount: decimal.NewFromInt(10)})
		}); err != nil {
			return ledger.Transaction{}, err
		}
		return l.Append(ledger.Entry{Kind: ledger.KindAdvance, Amount: decimal.NewFromInt(20)})
	})
	if !errors.Is(err, utils.ErrorLedgerConflict) {
		t.Fatalf("expected ErrorLedgerConflict, got %v", err)
	}

	txs, err := models.GetLedgerTransactions(ctx, admission.ID)
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("only the winning write should be stored, got %+v", txs)
	}
}

func TestAdmissionLedger_DiscountAuditTrail(t *testing.T) {
	ctx := setupIntegration(t)
	t.Setenv("DISCOUNT_AUDIT_TRAIL", "true")
	admission := createAdmissionWithServices(t, ctx, 3000)

	first := appendEntry(t, ctx, admission.ID, "discount", "300", "")
	second := appendEntry(t, ctx, admission.ID, "discount", "0", "")
	if !second.Summary.ActiveDiscount.IsZero() {
		t.Fatalf("a zero discount should clear the active discount, got %s", second.Summary.ActiveDiscount)
	}

	var rows []models.DiscountHistory
	if err := config.GetDB().WithContext(ctx).Where("admission_id = ?", admission.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load discount history: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one superseded discount, got %d", len(rows))
	}
	if rows[0].TransactionId != first.Transaction.ID || rows[0].ReplacedBy != second.Transaction.ID {
		t.Fatalf("unexpected history row %+v", rows[0])
	}
	if rows[0].AttributedTo != "cashier@test.local" {
		t.Fatalf("discount should be attributed to the cashier, got %q", rows[0].AttributedTo)
	}
}

func TestLedgerMaintenance_StaleDiscounts(t *testing.T) {
	ctx := setupIntegration(t)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
	admission := createAdmissionWithServices(t, ctx, 1000)
	current := appendEntry(t, ctx, admission.ID, "discount", "100", "")

	legacy := models.AdmissionTransaction{
		HospitalId:    hospitalId,
		AdmissionId:   admission.ID,
		TransactionId: "legacy-discount",
		Kind:          ledger.KindDiscount,
		Amount:        decimal.NewFromInt(50),
		OccurredAt:    current.Transaction.OccurredAt.Add(-time.Hour),
		Position:      99,
	}
	if err := config.GetDB().WithContext(ctx).Create(&legacy).Error; err != nil {
		t.Fatalf("insert legacy discount: %v", err)
	}

	check, err := models.VerifyAdmissionLedger(ctx, hospitalId, admission.ID)
	if err != nil {
		t.Fatalf("VerifyAdmissionLedger: %v", err)
	}
	if len(check.Problems) != 1 {
		t.Fatalf("expected the duplicate discount to be reported, got %v", check.Problems)
	}
	ids, err := models.GetAdmissionIdsWithStaleDiscounts(ctx, config.GetDB(), hospitalId)
	if err != nil || len(ids) != 1 || ids[0] != admission.ID {
		t.Fatalf("unexpected stale admissions %v (%v)", ids, err)
	}

	result, removed, err := models.DropStaleDiscounts(ctx, hospitalId, admission.ID)
	if err != nil {
		t.Fatalf("DropStaleDiscounts: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != "legacy-discount" {
		t.Fatalf("unexpected removed discounts %+v", removed)
	}
	if result.Transaction.ID != current.Transaction.ID || !result.Summary.Due.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected the newer discount to stay active, got %+v", result)
	}

	check, err = models.VerifyAdmissionLedger(ctx, hospitalId, admission.ID)
	if err != nil || len(check.Problems) != 0 {
		t.Fatalf("expected a healthy ledger after cleanup, got %v (%v)", check, err)
	}
	if _, _, err := models.DropStaleDiscounts(ctx, hospitalId, admission.ID); !errors.Is(err, utils.ErrorInvalidInput) {
		t.Fatalf("expected InvalidInput on a clean ledger, got %v", err)
	}
}

func TestOutboxDispatcher_PublishesCommittedEvents(t *testing.T) {
	ctx := setupIntegration(t)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
	admission := createAdmissionWithServices(t, ctx, 1000)
	appendEntry(t, ctx, admission.ID, "advance", "100", "")

	var mu sync.Mutex
	var published []config.BillingEvent
	d := workflow.NewOutboxDispatcher(config.GetDB(), config.GetLogger())
	d.Publish = func(ctx context.Context, event config.BillingEvent) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, event)
		return fmt.Sprintf("msg-%d", event.ID), nil
	}
	for {
		n, err := d.DispatchOnce(context.Background())
		if err != nil {
			t.Fatalf("DispatchOnce: %v", err)
		}
		if n == 0 {
			break
		}
	}

	var actions []string
	for _, e := range published {
		if e.HospitalId == hospitalId {
			actions = append(actions, e.Action)
		}
	}
	want := []string{string(models.OutboxActionAdmissionCreated), string(models.OutboxActionTransactionAdded)}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Fatalf("published %v, want %v", actions, want)
	}

	var pending int64
	config.GetDB().Model(&models.PubSubMessageRecord{}).
		Where("hospital_id = ? AND publish_status <> ?", hospitalId, models.OutboxPublishStatusSent).
		Count(&pending)
	if pending != 0 {
		t.Fatalf("expected every row SENT, %d left", pending)
	}
}

func TestAdmissionNumbers_Sequential(t *testing.T) {
	ctx := setupIntegration(t)
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		a, err := models.CreateAdmission(ctx, &models.NewAdmission{PatientName: "Patient", AdmittedAt: &day}, nil)
		if err != nil {
			t.Fatalf("CreateAdmission: %v", err)
		}
		want := fmt.Sprintf("IP240301-%04d", i)
		if a.AdmissionNumber != want {
			t.Fatalf("admission %d: got %s want %s", i, a.AdmissionNumber, want)
		}
	}
}

func TestRedisSequenceAllocator_SeedsFromStoredNumbers(t *testing.T) {
	ctx := setupIntegration(t)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
	scope := models.SequenceScope{HospitalId: hospitalId, Module: models.NumberSeriesModuleAdmission}
	day := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

	// two admissions issued through MySQL before switching to Redis
	dbAllocator := &models.DBSequenceAllocator{DB: config.GetDB(), Scope: scope}
	for i := 0; i < 2; i++ {
		if _, err := models.CreateAdmission(ctx, &models.NewAdmission{PatientName: "Patient", AdmittedAt: &day}, dbAllocator); err != nil {
			t.Fatalf("CreateAdmission: %v", err)
		}
	}

	redisAllocator := &models.RedisSequenceAllocator{Client: config.GetRedisDB(), DB: config.GetDB(), Scope: scope}
	seq, err := redisAllocator.NextForDate(ctx, models.SequenceDateKey(day))
	if err != nil {
		t.Fatalf("NextForDate: %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected 3 after seeding from stored numbers, got %d", seq)
	}

	seeded, err := redisAllocator.Seed(ctx, models.SequenceDateKey(day), 2)
	if err != nil || seeded {
		t.Fatalf("seed below the current value must be a no-op (seeded=%v err=%v)", seeded, err)
	}
}

func TestRedisSequenceAllocator_KeyExpiresAndReseeds(t *testing.T) {
	ctx := setupIntegration(t)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
	scope := models.SequenceScope{HospitalId: hospitalId, Module: models.NumberSeriesModuleAdmission}
	day := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	dateKey := models.SequenceDateKey(day)
	client := config.GetRedisDB()

	redisAllocator := &models.RedisSequenceAllocator{Client: client, DB: config.GetDB(), Scope: scope}
	for i := 0; i < 2; i++ {
		if _, err := models.CreateAdmission(ctx, &models.NewAdmission{PatientName: "Patient", AdmittedAt: &day}, redisAllocator); err != nil {
			t.Fatalf("CreateAdmission: %v", err)
		}
	}

	key := "seq:" + hospitalId + ":" + models.NumberSeriesModuleAdmission + ":" + dateKey
	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 72*time.Hour {
		t.Fatalf("counter must expire within 72h, got %v", ttl)
	}

	// an expired counter comes back from the stored admission numbers
	if err := client.Del(ctx, key).Err(); err != nil {
		t.Fatalf("Del: %v", err)
	}
	seqs := make([]int64, 10)
	errs := make([]error, len(seqs))
	var wg sync.WaitGroup
	for i := range seqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seqs[i], errs[i] = redisAllocator.NextForDate(ctx, dateKey)
		}(i)
	}
	wg.Wait()
	seen := make(map[int64]bool, len(seqs))
	for i, seq := range seqs {
		if errs[i] != nil {
			t.Fatalf("NextForDate: %v", errs[i])
		}
		if seq <= 2 || seen[seq] {
			t.Fatalf("reseeded counter issued %d (seen=%v)", seq, seen[seq])
		}
		seen[seq] = true
	}
}

func TestSequenceAllocators_Concurrent(t *testing.T) {
	ctx := setupIntegration(t)
	hospitalId, _ := utils.GetHospitalIdFromContext(ctx)
	scope := models.SequenceScope{HospitalId: hospitalId, Module: models.NumberSeriesModuleInvoice}

	assertConcurrentAllocation(t, &models.RedisSequenceAllocator{Client: config.GetRedisDB(), DB: config.GetDB(), Scope: scope}, "2024-05-01", 50)
	assertConcurrentAllocation(t, &models.DBSequenceAllocator{DB: config.GetDB(), Scope: scope}, "2024-05-02", 50)
}

func startRedisContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("admission-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		return "", "", fmt.Errorf("start redis container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		return name, "", fmt.Errorf("redis docker port: %w", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port, nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return name, "", fmt.Errorf("redis did not become ready")
}

func startMySQLContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("admission-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=admission_billing_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		return "", "", fmt.Errorf("start mysql container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		return name, "", fmt.Errorf("mysql docker port: %w", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return name, "", fmt.Errorf("mysql did not become ready")
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
