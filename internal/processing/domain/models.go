package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Key identifies a processing record: the same bytes processed with the same
// service and variant parameter always map to the same key. Stems is zero for
// services without a variant.
type Key struct {
	FileHash    string
	ServiceType string
	Stems       int
}

type Record struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	FileHash       string         `gorm:"not null;index:idx_processing_key" json:"file_hash"`
	ServiceType    string         `gorm:"not null;index:idx_processing_key" json:"service_type"`
	Stems          int            `gorm:"not null;default:0;index:idx_processing_key" json:"stems"`
	InputURL       string         `gorm:"not null" json:"input_url"`
	OutputURL      *string        `json:"output_url,omitempty"`
	OutputMeta     datatypes.JSON `json:"output_meta,omitempty"`
	Status         string         `gorm:"not null;default:'processing'" json:"status"`
	JobID          *string        `json:"job_id,omitempty"`
	ErrorDetail    *string        `json:"error_detail,omitempty"`
	ProcessSeconds float64        `gorm:"not null;default:0" json:"process_seconds"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Record) TableName() string {
	return "processing_records"
}

// CacheHit reports whether the record can serve requesters without recompute.
func (r Record) CacheHit() bool {
	return r.Status == StatusCompleted && r.OutputURL != nil && *r.OutputURL != ""
}

// Reusable reports whether the row should be reset in place instead of
// inserting a fresh one: failed attempts and completions that never produced
// an output keep their stored input location.
func (r Record) Reusable() bool {
	if r.Status == StatusFailed {
		return true
	}
	return r.Status == StatusCompleted && !r.CacheHit()
}

// History is one row per end-user request, distinct from the shared cache.
type History struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID     snowflake.ID  `gorm:"not null;index" json:"account_id"`
	RecordID      snowflake.ID  `gorm:"not null;index" json:"record_id"`
	ConsumptionID *snowflake.ID `json:"consumption_id,omitempty"`
	ServiceType   string        `gorm:"not null" json:"service_type"`
	Filename      string        `gorm:"not null" json:"filename"`
	Status        string        `gorm:"not null;default:'processing'" json:"status"`
	ErrorDetail   *string       `json:"error_detail,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (History) TableName() string {
	return "processing_history"
}
