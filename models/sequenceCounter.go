package models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const sequenceDateLayout = "2006-01-02"

// SequenceAllocator hands out date-scoped counters: 1, 2, 3... for each
// dateKey, unique across concurrent callers and never reused.
type SequenceAllocator interface {
	NextForDate(ctx context.Context, dateKey string) (int64, error)
}

// SequenceScope separates counters per hospital and per numbered module.
type SequenceScope struct {
	HospitalId string
	Module     string
}

func (s SequenceScope) redisKey(dateKey string) string {
	return fmt.Sprintf("seq:%s:%s:%s", s.HospitalId, s.Module, dateKey)
}

// SequenceDateKey is the counter key of t in the hospital's calendar.
func SequenceDateKey(t time.Time) string {
	return t.Format(sequenceDateLayout)
}

// FormatSequenceNumber renders prefix + yyMMdd + "-" + a four digit counter,
// e.g. IP240301-0007.
func FormatSequenceNumber(prefix string, date time.Time, seq int64) string {
	return fmt.Sprintf("%s%s-%04d", prefix, date.Format("060102"), seq)
}

// NewSequenceAllocator returns the allocator chosen by SEQUENCE_BACKEND.
func NewSequenceAllocator(scope SequenceScope) SequenceAllocator {
	switch config.SequenceBackend() {
	case config.SequenceBackendMySQL:
		return &DBSequenceAllocator{DB: config.GetDB(), Scope: scope}
	case config.SequenceBackendMemory:
		return sharedMemoryAllocator(scope)
	default:
		return &RedisSequenceAllocator{Client: config.GetRedisDB(), DB: config.GetDB(), Scope: scope}
	}
}

func allocationError(scope SequenceScope, dateKey string, err error) error {
	return fmt.Errorf("%w: %s/%s %s: %v", utils.ErrorAllocationFailure, scope.HospitalId, scope.Module, dateKey, err)
}

func startAllocationSpan(ctx context.Context, backend string, scope SequenceScope, dateKey string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sequence.next_for_date", trace.WithAttributes(
		attribute.String("sequence.backend", backend),
		attribute.String("hospital.id", scope.HospitalId),
		attribute.String("sequence.module", scope.Module),
		attribute.String("sequence.date_key", dateKey),
	))
}

/* Redis */

// counters outlive their day so late allocations for yesterday still continue
const redisSequenceTTL = 72 * time.Hour

// nextSequenceScript increments an existing counter. A missing counter is
// created from ARGV[1] before the increment; with no seed it returns nil so the
// caller can look one up.
var nextSequenceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('INCR', KEYS[1])
end
if ARGV[1] == '' then
	return false
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return redis.call('INCR', KEYS[1])
`)

// seedSequenceScript raises a counter to ARGV[1], never lowers it.
var seedSequenceScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]))
if current and current >= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
return 1
`)

// RedisSequenceAllocator uses INCR. A missing key is first seeded from the
// highest number already stored for that date, so a flushed Redis never
// re-issues an identifier.
type RedisSequenceAllocator struct {
	Client *redis.Client
	DB     *gorm.DB
	Scope  SequenceScope
}

func (a *RedisSequenceAllocator) NextForDate(ctx context.Context, dateKey string) (seq int64, err error) {
	ctx, span := startAllocationSpan(ctx, config.SequenceBackendRedis, a.Scope, dateKey)
	defer func() { endSpan(span, err) }()

	if a.Client == nil {
		return 0, allocationError(a.Scope, dateKey, fmt.Errorf("redis not connected"))
	}
	keys := []string{a.Scope.redisKey(dateKey)}
	ttl := int64(redisSequenceTTL / time.Second)

	seq, err = nextSequenceScript.Run(ctx, a.Client, keys, "", ttl).Int64()
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, allocationError(a.Scope, dateKey, err)
	}

	highWater, err := sequenceHighWater(ctx, a.DB, a.Scope, dateKey)
	if err != nil {
		return 0, allocationError(a.Scope, dateKey, err)
	}
	// a concurrent caller may have seeded in between; the script then just increments
	seq, err = nextSequenceScript.Run(ctx, a.Client, keys, highWater, ttl).Int64()
	if err != nil {
		return 0, allocationError(a.Scope, dateKey, err)
	}
	return seq, nil
}

// Seed raises the counter to at least highWater. Used by the backfill command.
func (a *RedisSequenceAllocator) Seed(ctx context.Context, dateKey string, highWater int64) (bool, error) {
	keys := []string{a.Scope.redisKey(dateKey)}
	seeded, err := seedSequenceScript.Run(ctx, a.Client, keys, highWater, int64(redisSequenceTTL/time.Second)).Int64()
	if err != nil {
		return false, err
	}
	return seeded == 1, nil
}

/* MySQL */

// SequenceCounter is the MySQL backing row of DBSequenceAllocator.
type SequenceCounter struct {
	HospitalId string    `gorm:"primaryKey;size:64" json:"hospital_id"`
	Module     string    `gorm:"primaryKey;size:30" json:"module"`
	DateKey    string    `gorm:"primaryKey;size:10" json:"date_key"`
	Value      int64     `gorm:"not null" json:"value"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DBSequenceAllocator increments with a single upsert; LAST_INSERT_ID(expr)
// hands the new value back on the same connection.
type DBSequenceAllocator struct {
	DB    *gorm.DB
	Scope SequenceScope
}

func (a *DBSequenceAllocator) NextForDate(ctx context.Context, dateKey string) (seq int64, err error) {
	ctx, span := startAllocationSpan(ctx, config.SequenceBackendMySQL, a.Scope, dateKey)
	defer func() { endSpan(span, err) }()

	if a.DB == nil {
		return 0, allocationError(a.Scope, dateKey, fmt.Errorf("database not connected"))
	}
	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		highWater, err := sequenceHighWater(ctx, tx, a.Scope, dateKey)
		if err != nil {
			return err
		}
		if err := tx.Exec(
			`INSERT INTO sequence_counters (hospital_id, module, date_key, value, updated_at)
			 VALUES (?, ?, ?, LAST_INSERT_ID(?), NOW())
			 ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(GREATEST(value, ?) + 1), updated_at = NOW()`,
			a.Scope.HospitalId, a.Scope.Module, dateKey, highWater+1, highWater,
		).Error; err != nil {
			return err
		}
		return tx.Raw("SELECT LAST_INSERT_ID()").Scan(&seq).Error
	})
	if err != nil {
		return 0, allocationError(a.Scope, dateKey, err)
	}
	if seq <= 0 {
		return 0, allocationError(a.Scope, dateKey, fmt.Errorf("no value returned"))
	}
	return seq, nil
}

/* Memory */

// MemorySequenceAllocator is the in-process allocator for tests and single
// instance local runs.
type MemorySequenceAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemorySequenceAllocator() *MemorySequenceAllocator {
	return &MemorySequenceAllocator{counters: make(map[string]int64)}
}

func (a *MemorySequenceAllocator) NextForDate(ctx context.Context, dateKey string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrorAllocationFailure, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters[dateKey]++
	return a.counters[dateKey], nil
}

var (
	memoryAllocatorsMu sync.Mutex
	memoryAllocators   = map[SequenceScope]*MemorySequenceAllocator{}
)

func sharedMemoryAllocator(scope SequenceScope) *MemorySequenceAllocator {
	memoryAllocatorsMu.Lock()
	defer memoryAllocatorsMu.Unlock()
	a, ok := memoryAllocators[scope]
	if !ok {
		a = NewMemorySequenceAllocator()
		memoryAllocators[scope] = a
	}
	return a
}

/* High-water marks */

// sequenceHighWater is the largest counter already persisted for scope and
// date, or 0.
func sequenceHighWater(ctx context.Context, db *gorm.DB, scope SequenceScope, dateKey string) (int64, error) {
	if db == nil {
		return 0, nil
	}
	var model any
	switch scope.Module {
	case NumberSeriesModuleAdmission:
		model = &Admission{}
	case NumberSeriesModuleInvoice:
		model = &InvoiceExport{}
	default:
		return 0, nil
	}
	var highWater *int64
	err := db.WithContext(ctx).Model(model).
		Select("MAX(sequence_no)").
		Where("hospital_id = ? AND sequence_date = ?", scope.HospitalId, dateKey).
		Scan(&highWater).Error
	if err != nil {
		return 0, err
	}
	return utils.DereferencePtr(highWater), nil
}

// SequenceHighWaters returns the largest stored counter per date key on or
// after since, for seeding counters after a Redis flush.
func SequenceHighWaters(ctx context.Context, db *gorm.DB, scope SequenceScope, since string) (map[string]int64, error) {
	var model any
	switch scope.Module {
	case NumberSeriesModuleAdmission:
		model = &Admission{}
	case NumberSeriesModuleInvoice:
		model = &InvoiceExport{}
	default:
		return nil, fmt.Errorf("unknown numbered module %q: %w", scope.Module, utils.ErrorInvalidInput)
	}
	type row struct {
		SequenceDate string
		HighWater    int64
	}
	var rows []row
	err := db.WithContext(ctx).Model(model).
		Select("sequence_date, MAX(sequence_no) AS high_water").
		Where("hospital_id = ? AND sequence_date >= ?", scope.HospitalId, since).
		Group("sequence_date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.SequenceDate] = r.HighWater
	}
	return result, nil
}
