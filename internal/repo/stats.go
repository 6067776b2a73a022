// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer and for the
// per-project RFI summary.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// RFIStats returns the number of RFIs matching f and the greatest UpdatedAt
// among them. When nothing matches, count is 0 and maxUpdatedAt is nil.
func RFIStats(ctx context.Context, db *gorm.DB, f RFIFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = f.apply(db.WithContext(ctx).Model(&domain.RFI{})).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q := f.apply(db.WithContext(ctx).Model(&domain.RFI{}))
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Summary aggregates a project's RFIs.
type Summary struct {
	Total      int64                     `json:"total"`
	ByStatus   map[domain.Status]int64   `json:"by_status"`
	ByPriority map[domain.Priority]int64 `json:"by_priority"`
	Overdue    int64                     `json:"overdue"`

	// AvgResponseHours is the mean time from sent_at to responded_at over
	// answered RFIs; nil when none has been answered.
	AvgResponseHours *float64 `json:"avg_response_hours"`
}

// ProjectSummary counts a project's RFIs per status and priority. An RFI is
// overdue when it has a due date before now and is still awaiting an answer
// (open or waiting_response).
func ProjectSummary(ctx context.Context, db *gorm.DB, projectID string, now time.Time) (*Summary, error) {
	s := &Summary{
		ByStatus:   make(map[domain.Status]int64, len(domain.Statuses)),
		ByPriority: make(map[domain.Priority]int64, 4),
	}
	for _, st := range domain.Statuses {
		s.ByStatus[st] = 0
	}

	var byStatus []struct {
		Status domain.Status
		N      int64
	}
	err := db.WithContext(ctx).Model(&domain.RFI{}).
		Select("status, COUNT(*) AS n").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, err
	}
	for _, r := range byStatus {
		s.ByStatus[r.Status] = r.N
		s.Total += r.N
	}

	var byPriority []struct {
		Priority domain.Priority
		N        int64
	}
	err = db.WithContext(ctx).Model(&domain.RFI{}).
		Select("priority, COUNT(*) AS n").
		Where("project_id = ?", projectID).
		Group("priority").
		Scan(&byPriority).Error
	if err != nil {
		return nil, err
	}
	for _, r := range byPriority {
		s.ByPriority[r.Priority] = r.N
	}

	err = db.WithContext(ctx).Model(&domain.RFI{}).
		Where("project_id = ? AND due_date IS NOT NULL AND due_date < ? AND status IN ?",
			projectID, now, []domain.Status{domain.StatusOpen, domain.StatusWaitingResponse}).
		Count(&s.Overdue).Error
	if err != nil {
		return nil, err
	}

	// Averaged in Go: date arithmetic differs between SQLite and Postgres.
	var spans []struct {
		SentAt      time.Time
		RespondedAt time.Time
	}
	err = db.WithContext(ctx).Model(&domain.RFI{}).
		Select("sent_at, responded_at").
		Where("project_id = ? AND sent_at IS NOT NULL AND responded_at IS NOT NULL", projectID).
		Scan(&spans).Error
	if err != nil {
		return nil, err
	}
	if len(spans) > 0 {
		var total time.Duration
		for _, sp := range spans {
			total += sp.RespondedAt.Sub(sp.SentAt)
		}
		avg := total.Hours() / float64(len(spans))
		s.AvgResponseHours = &avg
	}
	return s, nil
}
