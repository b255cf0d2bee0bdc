// Package store defines the AuditStore interface for llmrelay persistence.
package store

import (
	"context"
	"errors"

	"github.com/jxucoder/llmrelay/pkg/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// AuditStore persists completion audit records.
type AuditStore interface {
	AddRecord(ctx context.Context, rec *model.Record) error
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	// ListRecords returns the newest records first, at most limit of them.
	ListRecords(ctx context.Context, limit int) ([]*model.Record, error)
	Close() error
}
