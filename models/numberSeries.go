package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	NumberSeriesModuleAdmission = "Admission"
	NumberSeriesModuleInvoice   = "Invoice"
)

var defaultNumberPrefixes = map[string]string{
	NumberSeriesModuleAdmission: "IP",
	NumberSeriesModuleInvoice:   "INV",
}

// NumberSeriesPrefix is the per-hospital display prefix of one numbered module.
type NumberSeriesPrefix struct {
	HospitalId string    `gorm:"primaryKey;size:64" json:"hospital_id"`
	ModuleName string    `gorm:"primaryKey;size:30" json:"module_name"`
	Prefix     string    `gorm:"size:10;not null" json:"prefix"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNumberSeriesPrefix struct {
	ModuleName string `json:"module_name" validate:"required,oneof=Admission Invoice"`
	Prefix     string `json:"prefix" validate:"required,max=10,alphanum"`
}

func numberPrefixCacheKey(hospitalId string, module string) string {
	return "numberPrefix:" + hospitalId + ":" + module
}

// GetNumberPrefix falls back to the module default when none is configured.
// Resolved prefixes are cached in Redis until SetNumberPrefix changes them.
func GetNumberPrefix(ctx context.Context, db *gorm.DB, hospitalId string, module string) (string, error) {
	cacheKey := numberPrefixCacheKey(hospitalId, module)
	if cached, ok, err := config.GetRedisValue(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	prefix := defaultNumberPrefixes[module]
	var row NumberSeriesPrefix
	err := db.WithContext(ctx).
		Where("hospital_id = ? AND module_name = ?", hospitalId, module).
		First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", storeError(err)
	}
	if err == nil {
		prefix = row.Prefix
	}
	if err := config.SetRedisValue(ctx, cacheKey, prefix, utils.GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "NumberSeries", "GetNumberPrefix", "cache prefix", cacheKey, err)
	}
	return prefix, nil
}

func SetNumberPrefix(ctx context.Context, input *NewNumberSeriesPrefix) (*NumberSeriesPrefix, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, errors.Join(utils.ErrorInvalidInput, err)
	}

	row := NumberSeriesPrefix{
		HospitalId: hospitalId,
		ModuleName: input.ModuleName,
		Prefix:     strings.ToUpper(input.Prefix),
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hospital_id"}, {Name: "module_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"prefix", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, storeError(err)
	}
	if err := config.RemoveRedisKey(ctx, numberPrefixCacheKey(hospitalId, input.ModuleName)); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrorStoreIO, err)
	}
	return &row, nil
}

func GetNumberPrefixes(ctx context.Context) ([]*NumberSeriesPrefix, error) {
	hospitalId, ok := utils.GetHospitalIdFromContext(ctx)
	if !ok || hospitalId == "" {
		return nil, utils.ErrorHospitalRequired
	}
	db := config.GetDB()
	configured := map[string]*NumberSeriesPrefix{}
	var rows []*NumberSeriesPrefix
	if err := db.WithContext(ctx).Where("hospital_id = ?", hospitalId).Find(&rows).Error; err != nil {
		return nil, storeError(err)
	}
	for _, r := range rows {
		configured[r.ModuleName] = r
	}
	results := make([]*NumberSeriesPrefix, 0, len(defaultNumberPrefixes))
	for _, module := range []string{NumberSeriesModuleAdmission, NumberSeriesModuleInvoice} {
		if r, ok := configured[module]; ok {
			results = append(results, r)
			continue
		}
		results = append(results, &NumberSeriesPrefix{HospitalId: hospitalId, ModuleName: module, Prefix: defaultNumberPrefixes[module]})
	}
	return results, nil
}

// issuedNumber is one allocated display identifier.
type issuedNumber struct {
	SequenceNo   int64
	SequenceDate string
	Number       string
}

// issueNumber allocates the next identifier of module for the day of at.
// Allocator failures are returned as AllocationFailure and no number is guessed.
func issueNumber(ctx context.Context, db *gorm.DB, allocator SequenceAllocator, hospitalId string, module string, at time.Time) (issuedNumber, error) {
	day, err := utils.ConvertToDate(at, hospitalTimezone())
	if err != nil {
		return issuedNumber{}, errors.Join(utils.ErrorInvalidInput, err)
	}
	prefix, err := GetNumberPrefix(ctx, db, hospitalId, module)
	if err != nil {
		return issuedNumber{}, err
	}
	if allocator == nil {
		allocator = NewSequenceAllocator(SequenceScope{HospitalId: hospitalId, Module: module})
	}
	dateKey := SequenceDateKey(day)
	seq, err := allocator.NextForDate(ctx, dateKey)
	if err != nil {
		return issuedNumber{}, err
	}
	return issuedNumber{
		SequenceNo:   seq,
		SequenceDate: dateKey,
		Number:       FormatSequenceNumber(prefix, day, seq),
	}, nil
}
