package domain

import (
	"context"
	"errors"

	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
)

// Request is one end-user processing submission. The uploaded content is
// already spooled to LocalPath; the pipeline hashes and stores it from there.
type Request struct {
	Account     accountdomain.Account
	ServiceType string
	Stems       int
	Filename    string
	LocalPath   string
}

// Result is the outcome of a processing request. Status is "processing" when
// an earlier request for the same content is still running; the requester is
// not billed and checks back until the record settles.
type Result struct {
	RecordID        string  `json:"record_id"`
	Status          string  `json:"status"`
	JobID           string  `json:"job_id,omitempty"`
	OutputURL       string  `json:"output_url,omitempty"`
	FromCache       bool    `json:"from_cache"`
	CreditsCharged  float64 `json:"credits_charged"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Service runs the full submit-process-bill flow.
type Service interface {
	Process(ctx context.Context, req Request) (*Result, error)
}

var (
	ErrInvalidStems    = errors.New("invalid_stems")
	ErrBillingConflict = errors.New("billing_conflict")
	ErrBusy            = errors.New("request_in_flight")
)
