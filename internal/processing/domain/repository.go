package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	// FindLatest selects the most recently created row for the key.
	FindLatest(ctx context.Context, db *gorm.DB, key Key) (*Record, error)

	Insert(ctx context.Context, db *gorm.DB, record *Record) error

	// ResetForRetry flips a failed or outputless row back to processing,
	// clearing prior output fields and error detail. The stored input
	// location is kept so unchanged bytes are not re-uploaded.
	ResetForRetry(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	SetInputURL(ctx context.Context, db *gorm.DB, id snowflake.ID, inputURL string) error
	SetJobID(ctx context.Context, db *gorm.DB, id snowflake.ID, jobID string) error

	// MarkCompleted succeeds only while the row is still processing.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, outputURL string, outputMeta datatypes.JSON, processSeconds float64) (bool, error)

	// MarkFailed succeeds only while the row is still processing.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, detail string) (bool, error)

	InsertHistory(ctx context.Context, db *gorm.DB, history *History) error
	CompleteHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, consumptionID snowflake.ID) error
	FailHistory(ctx context.Context, db *gorm.DB, id snowflake.ID, detail string) error
	ListHistoryByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*History, error)
}

var (
	ErrNotFound      = errors.New("record_not_found")
	ErrNotProcessing = errors.New("record_not_processing")
)
