// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for projects and
// their members. Projects are owned by an external system; these helpers
// exist so the tracker can seed them (CLI, tests) and resolve participants.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateProject inserts a project. The code is upper-cased; a duplicate code
// yields ErrDuplicate.
func CreateProject(ctx context.Context, db *gorm.DB, code, name string) (*domain.Project, error) {
	now := time.Now().UTC()
	p := &domain.Project{
		ID:        uuid.NewString(),
		Code:      strings.ToUpper(strings.TrimSpace(code)),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// GetProject fetches a project by id, or ErrNotFound.
func GetProject(ctx context.Context, db *gorm.DB, id string) (*domain.Project, error) {
	var p domain.Project
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectByCode fetches a project by its (case-insensitive) code.
func GetProjectByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a project; foreign keys cascade to its members,
// RFIs, responses and RFI-bound email log rows.
func DeleteProject(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Project{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember registers a participant on a project. The email is stored
// lower-cased so sender matching is case-insensitive.
func AddMember(ctx context.Context, db *gorm.DB, projectID, userID, email, name string) (*domain.ProjectMember, error) {
	m := &domain.ProjectMember{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		UserID:    strings.TrimSpace(userID),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// FindMemberByEmail returns the project member with the given address, or
// ErrNotFound.
func FindMemberByEmail(ctx context.Context, db *gorm.DB, projectID, email string) (*domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := db.WithContext(ctx).
		Where("project_id = ? AND email = ?", projectID, strings.ToLower(strings.TrimSpace(email))).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
