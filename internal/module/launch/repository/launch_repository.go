package repository

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/launchlens/launch-lens/internal/database"
	"github.com/launchlens/launch-lens/internal/database/schema"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type LaunchFilter struct {
	Launchpad string
	Chain     string
	Status    string
	MinRating *int
	Limit     int
	Offset    int
}

type LaunchRepository interface {
	GetByNaturalKey(title string, launchpad string) (*schema.LaunchRecord, error)
	GetByID(id uint64) (*schema.LaunchRecord, error)
	// GetKnownExternalIDs returns the external ids already persisted for a
	// launchpad, so listeners can skip detail fetches for seen items.
	GetKnownExternalIDs(launchpad string) (map[string]struct{}, error)
	// Upsert inserts or updates by the (title, launchpad) natural key. On
	// conflict only non-nil, non-empty fields overwrite the stored row, so
	// tokenomics values absent from a later payload survive.
	Upsert(record *schema.LaunchRecord) error
	UpdateLLMFields(id uint64, summary string, analysis string, rating int) error
	UpdateTokenStats(id uint64, updates map[string]interface{}) error
	DeleteByNaturalKey(title string, launchpad string) error
	List(filter LaunchFilter) ([]schema.LaunchRecord, int64, error)
	CheckLaunchExists(launchpad string, externalID string) (bool, error)
}

type launchRepository struct {
	db     *database.Database
	logger zerolog.Logger
}

func NewLaunchRepository(db *database.Database, logger zerolog.Logger) LaunchRepository {
	return &launchRepository{
		db:     db,
		logger: logger,
	}
}

func (r *launchRepository) GetByNaturalKey(title string, launchpad string) (*schema.LaunchRecord, error) {
	var record schema.LaunchRecord
	err := r.db.DB.Where("title = ? AND launchpad = ?", title, launchpad).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *launchRepository) GetByID(id uint64) (*schema.LaunchRecord, error) {
	var record schema.LaunchRecord
	err := r.db.DB.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *launchRepository) GetKnownExternalIDs(launchpad string) (map[string]struct{}, error) {
	var ids []string
	err := r.db.DB.Model(&schema.LaunchRecord{}).
		Where("launchpad = ? AND launchpad_specific_id IS NOT NULL", launchpad).
		Pluck("launchpad_specific_id", &ids).Error
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// Upsert builds an ON CONFLICT statement through reflection over the json
// column tags. Conflict updates skip nil pointers and empty strings.
func (r *launchRepository) Upsert(record *schema.LaunchRecord) error {
	if record == nil {
		return nil
	}

	recordType := reflect.TypeOf(*record)
	recordValue := reflect.ValueOf(*record)
	var columns []string
	var insertValues []interface{}
	var updateColumns []string

	for i := 0; i < recordType.NumField(); i++ {
		field := recordType.Field(i)
		if field.Name == "Base" {
			continue
		}
		columnName := field.Tag.Get("json")
		if columnName == "" || columnName == "-" {
			columnName = field.Name
		}
		value := recordValue.Field(i)

		columns = append(columns, columnName)
		insertValues = append(insertValues, value.Interface())

		if value.Kind() == reflect.Ptr && value.IsNil() {
			continue
		}
		if value.Kind() == reflect.String && value.String() == "" {
			continue
		}
		updateColumns = append(updateColumns, fmt.Sprintf("%s = EXCLUDED.%s", columnName, columnName))
	}

	if len(columns) == 0 {
		return fmt.Errorf("no valid columns found for upsert")
	}

	now := time.Now()
	columns = append(columns, "created_at", "updated_at")
	insertValues = append(insertValues, now, now)

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO launch_records (%s) VALUES (%s) ON CONFLICT (title, launchpad) DO UPDATE SET %s, updated_at = NOW()",
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updateColumns, ", "),
	)

	return r.db.DB.Exec(insertSQL, insertValues...).Error
}

func (r *launchRepository) UpdateLLMFields(id uint64, summary string, analysis string, rating int) error {
	return r.db.DB.Model(&schema.LaunchRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"summary":                 summary,
		"analysis":                analysis,
		"rating":                  rating,
		"llm_analysis_updated_at": time.Now(),
	}).Error
}

func (r *launchRepository) UpdateTokenStats(id uint64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	updates["token_stats_updated_at"] = time.Now()
	return r.db.DB.Model(&schema.LaunchRecord{}).Where("id = ?", id).Updates(updates).Error
}

func (r *launchRepository) DeleteByNaturalKey(title string, launchpad string) error {
	return r.db.DB.Unscoped().
		Where("title = ? AND launchpad = ?", title, launchpad).
		Delete(&schema.LaunchRecord{}).Error
}

func (r *launchRepository) List(filter LaunchFilter) ([]schema.LaunchRecord, int64, error) {
	query := r.db.DB.Model(&schema.LaunchRecord{})

	if filter.Launchpad != "" {
		query = query.Where("launchpad = ?", filter.Launchpad)
	}
	if filter.Chain != "" {
		query = query.Where("chain = ?", filter.Chain)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.MinRating != nil {
		query = query.Where("rating >= ?", *filter.MinRating)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []schema.LaunchRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *launchRepository) CheckLaunchExists(launchpad string, externalID string) (bool, error) {
	var count int64
	err := r.db.DB.Model(&schema.LaunchRecord{}).
		Where("launchpad = ? AND launchpad_specific_id = ?", launchpad, externalID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
