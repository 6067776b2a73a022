// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for RFI responses.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// CreateResponse inserts a response row. A second response for the same
// inbound message id yields ErrDuplicate.
func CreateResponse(ctx context.Context, db *gorm.DB, r *domain.RFIResponse) error {
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetResponseByMessageID returns the response recorded for an inbound
// transport message id, or ErrNotFound.
func GetResponseByMessageID(ctx context.Context, db *gorm.DB, messageID string) (*domain.RFIResponse, error) {
	var r domain.RFIResponse
	if err := db.WithContext(ctx).Where("email_message_id = ?", messageID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResponses returns an RFI's responses ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListResponses(ctx context.Context, db *gorm.DB, rfiID string) ([]domain.RFIResponse, error) {
	var out []domain.RFIResponse
	err := db.WithContext(ctx).
		Where("rfi_id = ?", rfiID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountResponses returns how many responses an RFI has.
func CountResponses(ctx context.Context, db *gorm.DB, rfiID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.RFIResponse{}).Where("rfi_id = ?", rfiID).Count(&total).Error
	return total, err
}
