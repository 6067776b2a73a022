package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/repo"
)

func TestRFIService_Create_NumberingAndDefaults(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "tower")

	r1 := newRFI(t, svc, p)
	r2 := newRFI(t, svc, p)

	if r1.Number != "RFI-TOWER-0001" || r2.Number != "RFI-TOWER-0002" {
		t.Fatalf("numbers: %q %q", r1.Number, r2.Number)
	}
	if r1.Status != domain.StatusDraft {
		t.Fatalf("new rfi status=%s", r1.Status)
	}
	if r1.ToEmail != "architect@example.com" {
		t.Fatalf("to_email not normalized: %q", r1.ToEmail)
	}
	if r1.Priority != domain.PriorityHigh || r1.Category != domain.CategoryStructural {
		t.Fatalf("priority/category: %s %s", r1.Priority, r1.Category)
	}
	if r1.SentAt != nil || r1.RespondedAt != nil || r1.ClosedAt != nil {
		t.Fatalf("lifecycle timestamps must start empty: %+v", r1)
	}
}

func TestRFIService_Create_CoercesUnknownEnums(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "COE")

	r, err := svc.Create(context.Background(), CreateRFIInput{
		ProjectID: p.ID,
		Subject:   "Door hardware",
		Question:  "Which lockset?",
		ToEmail:   "a@example.com",
		CC:        []string{"B@example.com", "b@example.com", " "},
		Category:  "plumbing-ish",
		Priority:  "HIGH",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Category != domain.CategoryOther {
		t.Fatalf("unknown category should fall back to other, got %s", r.Category)
	}
	if r.Priority != domain.PriorityHigh {
		t.Fatalf("priority should be case-insensitive, got %s", r.Priority)
	}
	if len(r.CCEmails) != 1 || r.CCEmails[0] != "b@example.com" {
		t.Fatalf("cc not normalized: %v", r.CCEmails)
	}

	r, err = svc.Create(context.Background(), CreateRFIInput{
		ProjectID: p.ID, Subject: "s", Question: "q", ToEmail: "a@example.com", Priority: "asap",
	})
	if err != nil || r.Priority != domain.PriorityMedium {
		t.Fatalf("unknown priority should default to medium: %v %v", r, err)
	}
}

func TestRFIService_Create_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "VAL")
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateRFIInput
		want error
	}{
		{"blank subject", CreateRFIInput{ProjectID: p.ID, Subject: "  ", Question: "q", ToEmail: "a@b.co"}, ErrValidation},
		{"long subject", CreateRFIInput{ProjectID: p.ID, Subject: strings.Repeat("x", 256), Question: "q", ToEmail: "a@b.co"}, ErrValidation},
		{"blank question", CreateRFIInput{ProjectID: p.ID, Subject: "s", Question: "", ToEmail: "a@b.co"}, ErrValidation},
		{"bad address", CreateRFIInput{ProjectID: p.ID, Subject: "s", Question: "q", ToEmail: "not-an-address"}, ErrValidation},
		{"bad cc", CreateRFIInput{ProjectID: p.ID, Subject: "s", Question: "q", ToEmail: "a@b.co", CC: []string{"nope"}}, ErrValidation},
		{"unknown project", CreateRFIInput{ProjectID: "ghost", Subject: "s", Question: "q", ToEmail: "a@b.co"}, ErrProjectNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, c.in); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}

	// 255 runes of multi-byte text is within the limit.
	if _, err := svc.Create(ctx, CreateRFIInput{ProjectID: p.ID, Subject: strings.Repeat("é", 255), Question: "q", ToEmail: "a@b.co"}); err != nil {
		t.Fatalf("255-rune subject rejected: %v", err)
	}
}

func TestRFIService_Create_ConcurrentNumbersAreUnique(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "rfi.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "CON")

	const workers, perWorker = 8, 3
	var (
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				r, err := svc.Create(ctx, CreateRFIInput{
					ProjectID: p.ID, Subject: "s", Question: "q", ToEmail: "a@example.com",
				})
				if err != nil {
					return err
				}
				mu.Lock()
				numbers[r.Number] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent create: %v", err)
	}
	if len(numbers) != workers*perWorker {
		t.Fatalf("expected %d distinct numbers, got %d", workers*perWorker, len(numbers))
	}
	if max, _ := repo.MaxSequence(context.Background(), db, p.ID); max != workers*perWorker {
		t.Fatalf("sequences should be dense, max=%d", max)
	}
}

func TestRFIService_Create_GivesUpAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	cfg := testRFIConfig
	cfg.NumberMaxAttempts = 3
	svc := NewRFIService(db, cfg)
	p := seedProject(t, db, "CLS")
	other := seedProject(t, db, "OTHER")

	// Numbers RFI-CLS-0001..0003 already exist under another project, so
	// every attempt collides while CLS's own max sequence stays at zero.
	for seq := 1; seq <= 3; seq++ {
		r := &domain.RFI{
			ID: "taken-" + FormatNumber(p.Code, seq), ProjectID: other.ID, Number: FormatNumber(p.Code, seq),
			Sequence: 100 + seq, Subject: "s", Question: "q", Status: domain.StatusDraft,
			Priority: domain.PriorityMedium, Category: domain.CategoryOther, ToEmail: "a@b.co",
		}
		if err := repo.CreateRFI(context.Background(), db, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_, err := svc.Create(context.Background(), CreateRFIInput{ProjectID: p.ID, Subject: "s", Question: "q", ToEmail: "a@b.co"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRFIService_Transition_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	svc.Now = fixedClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC))
	p := seedProject(t, db, "LIF")
	r := newRFI(t, svc, p)
	ctx := context.Background()

	if _, err := svc.Transition(ctx, r.ID, "answered"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("draft->answered: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, "bogus"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: expected ErrValidation, got %v", err)
	}

	for _, st := range []string{"OPEN", "waiting_response", "answered"} {
		if _, err := svc.Transition(ctx, r.ID, st); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.SentAt == nil || got.RespondedAt == nil || got.ClosedAt != nil {
		t.Fatalf("timestamps after answered: %+v", got)
	}
	if !got.RespondedAt.After(*got.SentAt) {
		t.Fatalf("responded_at should follow sent_at")
	}

	closed, err := svc.Transition(ctx, r.ID, "closed")
	if err != nil || closed.ClosedAt == nil || closed.Status != domain.StatusClosed {
		t.Fatalf("close: %+v %v", closed, err)
	}
	if !closed.SentAt.Equal(*got.SentAt) {
		t.Fatal("closing must not touch sent_at")
	}

	cancelled, err := svc.Transition(ctx, r.ID, "cancelled")
	if err != nil || cancelled.Status != domain.StatusCancelled {
		t.Fatalf("cancel from closed: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, "cancelled"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
	if _, err := svc.Transition(ctx, "missing", "open"); !errors.Is(err, ErrRFINotFound) {
		t.Fatalf("expected ErrRFINotFound, got %v", err)
	}
}

func TestRFIService_Update_OnlyDraftOrOpen(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "EDT")
	r := newRFI(t, svc, p)
	ctx := context.Background()

	subject := "Revised subject"
	cc := []string{"PM@example.com"}
	due := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	cat := "nonsense"
	got, err := svc.Update(ctx, r.ID, UpdateRFIInput{Subject: &subject, CC: &cc, DueDate: &due, Category: &cat})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Subject != subject || len(got.CCEmails) != 1 || got.CCEmails[0] != "pm@example.com" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) || got.Category != domain.CategoryOther {
		t.Fatalf("due/category: %+v", got)
	}

	got, err = svc.Update(ctx, r.ID, UpdateRFIInput{ClearDueDate: true})
	if err != nil || got.DueDate != nil {
		t.Fatalf("clear due date: %+v %v", got, err)
	}

	blank := " "
	if _, err := svc.Update(ctx, r.ID, UpdateRFIInput{Question: &blank}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	for _, st := range []string{"open", "waiting_response"} {
		if _, err := svc.Transition(ctx, r.ID, st); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	if _, err := svc.Update(ctx, r.ID, UpdateRFIInput{Subject: &subject}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState once sent, got %v", err)
	}
}

func TestRFIService_Delete_Guards(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "RMV")
	ctx := context.Background()

	draft := newRFI(t, svc, p)
	if err := svc.Delete(ctx, draft.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := svc.Get(ctx, draft.ID); !errors.Is(err, ErrRFINotFound) {
		t.Fatalf("expected ErrRFINotFound after delete, got %v", err)
	}

	open := newRFI(t, svc, p)
	if _, err := svc.Transition(ctx, open.ID, "open"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.Delete(ctx, open.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("delete open: expected ErrInvalidState, got %v", err)
	}

	if _, err := svc.Transition(ctx, open.ID, "cancelled"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp := &domain.RFIResponse{ID: "resp", RFIID: open.ID, ResponseText: "late", EmailMessageID: "m-late"}
	if err := repo.CreateResponse(ctx, db, resp); err != nil {
		t.Fatalf("seed response: %v", err)
	}
	for _, entry := range []repo.EmailLogEntry{
		{RFIID: &open.ID, EventType: domain.EmailEventSent, MessageID: "m-out"},
		{RFIID: &open.ID, EventType: domain.EmailEventReceived, MessageID: "m-late"},
		{EventType: domain.EmailEventUnmatched, MessageID: "m-stray"},
	} {
		if _, err := repo.AppendEmailLog(ctx, db, entry); err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}
	if err := svc.Delete(ctx, open.ID); err != nil {
		t.Fatalf("delete cancelled: %v", err)
	}
	if n := countRows(t, db, &domain.RFIResponse{}); n != 0 {
		t.Fatalf("responses should cascade, %d left", n)
	}
	if rows, _ := repo.ListEmailLog(ctx, db, open.ID); len(rows) != 0 {
		t.Fatalf("log rows should cascade, %d left", len(rows))
	}
	orphans, _ := repo.ListUnmatched(ctx, db, 0)
	if len(orphans) != 1 || orphans[0].MessageID != "m-stray" || countRows(t, db, &domain.RFIEmailLog{}) != 1 {
		t.Fatalf("unmatched row must survive: %+v", orphans)
	}
	if err := svc.Delete(ctx, open.ID); !errors.Is(err, ErrRFINotFound) {
		t.Fatalf("second delete: expected ErrRFINotFound, got %v", err)
	}
}

func TestRFIService_ListPage_Filters(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	p := seedProject(t, db, "LST")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		newRFI(t, svc, p)
	}
	r := newRFI(t, svc, p)
	if _, err := svc.Transition(ctx, r.ID, "open"); err != nil {
		t.Fatalf("open: %v", err)
	}

	items, total, err := svc.ListPage(ctx, ListFilter{ProjectID: p.ID, Status: "Open"}, 1, 10)
	if err != nil || total != 1 || len(items) != 1 || items[0].ID != r.ID {
		t.Fatalf("status filter: %v %d %v", items, total, err)
	}
	items, total, err = svc.ListPage(ctx, ListFilter{ProjectID: p.ID}, 2, 3)
	if err != nil || total != 4 || len(items) != 1 {
		t.Fatalf("paging: %d items, total %d, err %v", len(items), total, err)
	}
	if _, _, err := svc.ListPage(ctx, ListFilter{ProjectID: p.ID, Priority: "asap"}, 1, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown filter value: expected ErrValidation, got %v", err)
	}
	if _, _, err := svc.ListPage(ctx, ListFilter{ProjectID: "ghost"}, 1, 10); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestRFIService_Summary(t *testing.T) {
	db := newTestDB(t)
	svc := NewRFIService(db, testRFIConfig)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.Now = fixedClock(start)
	p := seedProject(t, db, "SUM")
	ctx := context.Background()

	a := newRFI(t, svc, p)
	newRFI(t, svc, p)
	for _, st := range []string{"open", "waiting_response", "answered"} {
		if _, err := svc.Transition(ctx, a.ID, st); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}

	sum, err := svc.Summary(ctx, p.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 2 || sum.ByStatus[domain.StatusAnswered] != 1 || sum.ByStatus[domain.StatusDraft] != 1 {
		t.Fatalf("counts: %+v", sum)
	}
	if sum.ByPriority[domain.PriorityHigh] != 2 {
		t.Fatalf("priority counts: %+v", sum.ByPriority)
	}
	if sum.AvgResponseHours == nil || *sum.AvgResponseHours <= 0 {
		t.Fatalf("avg response hours: %v", sum.AvgResponseHours)
	}
	if _, err := svc.Summary(ctx, "ghost"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}
