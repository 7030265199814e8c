package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/processing/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, key domain.Key) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, file_hash, service_type, stems, input_url, output_url, output_meta,
		        status, job_id, error_detail, process_seconds, created_at, updated_at
		 FROM processing_records
		 WHERE file_hash = ? AND service_type = ? AND stems = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		key.FileHash,
		key.ServiceType,
		key.Stems,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO processing_records (id, file_hash, service_type, stems, input_url, output_url,
		                                 output_meta, status, job_id, error_detail, process_seconds,
		                                 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.FileHash,
		record.ServiceType,
		record.Stems,
		record.InputURL,
		record.OutputURL,
		record.OutputMeta,
		record.Status,
		record.JobID,
		record.ErrorDetail,
		record.ProcessSeconds,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) ResetForRetry(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE processing_records
		 SET status = ?, output_url = NULL, output_meta = NULL, job_id = NULL,
		     error_detail = NULL, process_seconds = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status <> ?`,
		domain.StatusProcessing,
		id,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetInputURL(ctx context.Context, db *gorm.DB, id snowflake.ID, inputURL string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE processing_records SET input_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		inputURL,
		id,
	).Error
}

func (r *repo) SetJobID(ctx context.Context, db *gorm.DB, id snowflake.ID, jobID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE processing_records SET job_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		jobID,
		id,
	).Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, outputURL string, outputMeta datatypes.JSON, processSeconds float64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE processing_records
		 SET status = ?, output_url = ?, output_meta = ?, process_seconds = ?,
		     error_detail = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		outputURL,
		outputMeta,
		processSeconds,
		id,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, detail string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE processing_records
		 SET status = ?, error_detail = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		detail,
		id,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, history *domain.History) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO processing_history (id, account_id, record_id, consumption_id, service_type,
		                                 filename, status, error_detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		history.ID,
		history.AccountID,
		history.RecordID,
		history.ConsumptionID,
		history.ServiceType,
		history.Filename,
		history.Status,
		history.ErrorDetail,
		history.CreatedAt,
		history.UpdatedAt,
	).Error
}

func (r *repo) CompleteHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, consumptionID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE processing_history
		 SET status = ?, consumption_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		domain.StatusCompleted,
		consumptionID,
		id,
	).Error
}

func (r *repo) FailHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, detail string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE processing_history
		 SET status = ?, error_detail = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		domain.StatusFailed,
		detail,
		id,
	).Error
}

func (r *repo) ListHistoryByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.History, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*domain.History
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, record_id, consumption_id, service_type, filename,
		        status, error_detail, created_at, updated_at
		 FROM processing_history
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
