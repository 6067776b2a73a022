// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the RFI model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Lifecycle rules (legal transitions,
// delete guards, numbering retries) live in services.RFIService.
//
// Error semantics:
//   - When an RFI is not found, functions return ErrNotFound.
//   - A unique violation on rfi_number is reported as ErrDuplicate so the
//     caller can regenerate the number and retry.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"database/sql"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// RFIFilter narrows list and count queries. Zero values are ignored.
type RFIFilter struct {
	ProjectID string
	Status    domain.Status
	Priority  domain.Priority
	Category  domain.Category
}

func (f RFIFilter) apply(q *gorm.DB) *gorm.DB {
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	return q
}

// CreateRFI inserts a fully populated RFI. A collision on rfi_number returns
// ErrDuplicate.
func CreateRFI(ctx context.Context, db *gorm.DB, r *domain.RFI) error {
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// MaxSequence returns the highest sequence used by the project's RFIs, or 0.
func MaxSequence(ctx context.Context, db *gorm.DB, projectID string) (int, error) {
	var max sql.NullInt64
	err := db.WithContext(ctx).
		Model(&domain.RFI{}).
		Where("project_id = ?", projectID).
		Select("MAX(sequence)").
		Row().
		Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// GetRFI fetches a single RFI by id, or ErrNotFound.
func GetRFI(ctx context.Context, db *gorm.DB, id string) (*domain.RFI, error) {
	var r domain.RFI
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRFIs returns the number of RFIs matching f.
func CountRFIs(ctx context.Context, db *gorm.DB, f RFIFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.RFI{})).Count(&total).Error
	return total, err
}

// ListRFIsPage returns a page of RFIs matching f, newest first.
func ListRFIsPage(ctx context.Context, db *gorm.DB, f RFIFilter, offset, limit int) ([]domain.RFI, error) {
	var out []domain.RFI
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateRFIFields applies a partial column update to one RFI. Map keys are
// column names; updated_at is refreshed by GORM. Returns ErrNotFound when no
// row matched.
func UpdateRFIFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.RFI{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRFIFieldsIfStatus is UpdateRFIFields guarded by the current status:
// the row is only written while its status is still from. ErrNotFound means
// the RFI is gone or has moved on.
func UpdateRFIFieldsIfStatus(ctx context.Context, db *gorm.DB, id string, from domain.Status, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.RFI{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRFI hard-deletes one RFI. Responses and email log rows referencing it
// are removed by the cascading foreign keys.
func DeleteRFI(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.RFI{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRFIByThreadID returns the RFI whose outbound message started threadID.
func FindRFIByThreadID(ctx context.Context, db *gorm.DB, threadID string) (*domain.RFI, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, ErrNotFound
	}
	return firstRFI(ctx, db, "email_thread_id = ?", threadID)
}

// FindRFIByNumber returns the RFI with the given number, compared
// case-insensitively.
func FindRFIByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.RFI, error) {
	if strings.TrimSpace(number) == "" {
		return nil, ErrNotFound
	}
	return firstRFI(ctx, db, "UPPER(rfi_number) = ?", strings.ToUpper(strings.TrimSpace(number)))
}

// FindRFIByOutboundMessageID returns the RFI whose outbound message carries
// msgID, either as the transport id or as the Message-ID header value.
func FindRFIByOutboundMessageID(ctx context.Context, db *gorm.DB, msgID string) (*domain.RFI, error) {
	if strings.TrimSpace(msgID) == "" {
		return nil, ErrNotFound
	}
	return firstRFI(ctx, db, "email_message_id = ? OR outbound_header_id = ?", msgID, msgID)
}

func firstRFI(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.RFI, error) {
	var r domain.RFI
	err := db.WithContext(ctx).
		Where(query, args...).
		Order("created_at asc").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}
