// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only email ledger.
//
// Rows are never updated. Rows bound to an RFI disappear with it through the
// cascading foreign key; unmatched rows carry a NULL rfi_id and are kept
// independently of any RFI.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// EmailLogEntry carries the fields of a new ledger row.
type EmailLogEntry struct {
	RFIID     *string
	EventType domain.EmailEvent
	MessageID string
	ThreadID  string
	From      string
	To        string
	Subject   string
	Payload   any // marshaled to JSON; nil stores an empty object
}

// AppendEmailLog writes one immutable ledger row.
func AppendEmailLog(ctx context.Context, db *gorm.DB, e EmailLogEntry) (*domain.RFIEmailLog, error) {
	payload := datatypes.JSON("{}")
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		payload = datatypes.JSON(b)
	}
	row := &domain.RFIEmailLog{
		ID:        uuid.NewString(),
		RFIID:     e.RFIID,
		EventType: e.EventType,
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
		FromEmail: e.From,
		ToEmail:   e.To,
		Subject:   e.Subject,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ListEmailLog returns the ledger rows of one RFI, oldest first.
func ListEmailLog(ctx context.Context, db *gorm.DB, rfiID string) ([]domain.RFIEmailLog, error) {
	var out []domain.RFIEmailLog
	err := db.WithContext(ctx).
		Where("rfi_id = ?", rfiID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListUnmatched returns orphan rows (no RFI), newest first. limit <= 0 means
// no limit.
func ListUnmatched(ctx context.Context, db *gorm.DB, limit int) ([]domain.RFIEmailLog, error) {
	var out []domain.RFIEmailLog
	q := db.WithContext(ctx).
		Where("rfi_id IS NULL AND event_type = ?", domain.EmailEventUnmatched).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
