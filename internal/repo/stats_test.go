package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfi-tracker/internal/domain"
)

// newTestDB opens a unique in-memory database per test with foreign keys on.
// Without models the full schema is migrated.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) == 0 {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	} else if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedProject(t *testing.T, db *gorm.DB, code string) *domain.Project {
	t.Helper()
	p, err := CreateProject(context.Background(), db, code, "Project "+code)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func seedRFI(t *testing.T, db *gorm.DB, p *domain.Project, seq int, mut func(*domain.RFI)) *domain.RFI {
	t.Helper()
	now := time.Now().UTC()
	r := &domain.RFI{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		Number:    fmt.Sprintf("RFI-%s-%04d", p.Code, seq),
		Sequence:  seq,
		Subject:   "Beam size",
		Question:  "Which beam?",
		Status:    domain.StatusDraft,
		Priority:  domain.PriorityMedium,
		Category:  domain.CategoryOther,
		ToEmail:   "arch@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mut != nil {
		mut(r)
	}
	if err := CreateRFI(context.Background(), db, r); err != nil {
		t.Fatalf("CreateRFI: %v", err)
	}
	return r
}

func TestRFIStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t, &domain.Project{})
	_, _, err := RFIStats(context.Background(), db, RFIFilter{ProjectID: "p"})
	if err == nil {
		t.Fatalf("expected error due to missing rfis table")
	}
}

func TestRFIStats_ZeroRows(t *testing.T) {
	db := newTestDB(t)
	count, maxAt, err := RFIStats(context.Background(), db, RFIFilter{ProjectID: "none"})
	if err != nil {
		t.Fatalf("RFIStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestRFIStats_FilterAndMax(t *testing.T) {
	db := newTestDB(t)
	p := seedProject(t, db, "ABC")
	other := seedProject(t, db, "XYZ")

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for ABC
	t3 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)   // other project

	seedRFI(t, db, p, 1, func(r *domain.RFI) { r.CreatedAt, r.UpdatedAt = t1, t1 })
	seedRFI(t, db, p, 2, func(r *domain.RFI) { r.CreatedAt, r.UpdatedAt = t2, t2 })
	seedRFI(t, db, other, 1, func(r *domain.RFI) { r.CreatedAt, r.UpdatedAt = t3, t3 })

	count, maxAt, err := RFIStats(context.Background(), db, RFIFilter{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("RFIStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count=%d want 2", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("maxUpdatedAt=%v want %v", maxAt, t2)
	}
}

func TestProjectSummary(t *testing.T) {
	db := newTestDB(t)
	p := seedProject(t, db, "SUM")
	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	seedRFI(t, db, p, 1, nil)
	seedRFI(t, db, p, 2, func(r *domain.RFI) { r.Status = domain.StatusOpen; r.DueDate = &past })
	seedRFI(t, db, p, 3, func(r *domain.RFI) {
		r.Status = domain.StatusWaitingResponse
		r.Priority = domain.PriorityUrgent
		r.DueDate = &past
	})
	seedRFI(t, db, p, 4, func(r *domain.RFI) { r.Status = domain.StatusWaitingResponse; r.DueDate = &future })
	seedRFI(t, db, p, 5, func(r *domain.RFI) {
		sent := now.Add(-10 * time.Hour)
		answered := now.Add(-4 * time.Hour)
		r.Status = domain.StatusClosed
		r.DueDate = &past
		r.SentAt, r.RespondedAt, r.ClosedAt = &sent, &answered, &now
	})

	s, err := ProjectSummary(context.Background(), db, p.ID, now)
	if err != nil {
		t.Fatalf("ProjectSummary: %v", err)
	}
	if s.Total != 5 {
		t.Fatalf("total=%d want 5", s.Total)
	}
	if s.ByStatus[domain.StatusWaitingResponse] != 2 || s.ByStatus[domain.StatusAnswered] != 0 {
		t.Fatalf("unexpected by_status: %+v", s.ByStatus)
	}
	if s.ByPriority[domain.PriorityUrgent] != 1 || s.ByPriority[domain.PriorityMedium] != 4 {
		t.Fatalf("unexpected by_priority: %+v", s.ByPriority)
	}
	if s.Overdue != 2 {
		t.Fatalf("overdue=%d want 2", s.Overdue)
	}
	if s.AvgResponseHours == nil || *s.AvgResponseHours < 5.99 || *s.AvgResponseHours > 6.01 {
		t.Fatalf("avg_response_hours=%v want 6", s.AvgResponseHours)
	}
}
