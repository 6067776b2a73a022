// Package services – RFIService
//
// This file implements the RFI registry: creation with system-wide unique
// numbering, reads, filtered listing, partial updates, explicit status
// transitions, guarded deletion, and the per-project summary.
//
// Numbering is optimistic. The next sequence is derived from the project's
// current maximum and the insert relies on the unique index on rfi_number;
// a collision regenerates the number and retries up to NumberMaxAttempts.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/repo"
	"github.com/tbourn/rfi-tracker/internal/utils"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RFIService owns the RFI lifecycle.
type RFIService struct {
	DB *gorm.DB

	SubjectMaxLen     int
	QuestionMaxLen    int
	NumberMaxAttempts int

	// Now is overridable in tests.
	Now func() time.Time
}

// NewRFIService constructs an RFIService from the RFI rules in cfg.
func NewRFIService(db *gorm.DB, cfg config.RFIConfig) *RFIService {
	return &RFIService{
		DB:                db,
		SubjectMaxLen:     cfg.SubjectMaxLen,
		QuestionMaxLen:    cfg.QuestionMaxLen,
		NumberMaxAttempts: cfg.NumberMaxAttempts,
		Now:               func() time.Time { return time.Now().UTC() },
	}
}

// CreateRFIInput carries the fields of a new RFI. Category and Priority are
// free text; unknown values fall back to their defaults.
type CreateRFIInput struct {
	ProjectID string
	Subject   string
	Question  string
	ToEmail   string
	CC        []string
	Category  string
	Priority  string
	DueDate   *time.Time
	CreatedBy string
}

// UpdateRFIInput carries a partial update. Nil fields are left unchanged.
type UpdateRFIInput struct {
	Subject      *string
	Question     *string
	ToEmail      *string
	CC           *[]string
	Category     *string
	Priority     *string
	DueDate      *time.Time
	ClearDueDate bool
}

// ListFilter narrows List. Empty strings are ignored; non-empty values must
// be valid enum members.
type ListFilter struct {
	ProjectID string
	Status    string
	Priority  string
	Category  string
}

// FormatNumber renders an RFI number.
func FormatNumber(projectCode string, seq int) string {
	return fmt.Sprintf("RFI-%s-%04d", strings.ToUpper(projectCode), seq)
}

// Create validates input and inserts a draft RFI with a fresh number.
func (s *RFIService) Create(ctx context.Context, in CreateRFIInput) (*domain.RFI, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("project.id", in.ProjectID)),
	)
	defer span.End()

	subject, err := s.text("subject", in.Subject, s.SubjectMaxLen)
	if err != nil {
		return nil, err
	}
	question, err := s.text("question", in.Question, s.QuestionMaxLen)
	if err != nil {
		return nil, err
	}
	to, err := normalizeAddress(in.ToEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: to_email: %v", ErrValidation, err)
	}
	cc, err := normalizeCC(in.CC)
	if err != nil {
		return nil, err
	}

	project, err := repo.GetProject(ctx, s.DB, in.ProjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	now := s.now()
	r := &domain.RFI{
		ProjectID: project.ID,
		Subject:   subject,
		Question:  question,
		Status:    domain.StatusDraft,
		Priority:  domain.ParsePriority(in.Priority),
		Category:  domain.ParseCategory(in.Category),
		ToEmail:   to,
		CCEmails:  cc,
		DueDate:   in.DueDate,
		CreatedBy: strings.TrimSpace(in.CreatedBy),
		CreatedAt: now,
		UpdatedAt: now,
	}

	attempts := s.NumberMaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	last := 0
	for i := 0; i < attempts; i++ {
		max, err := repo.MaxSequence(ctx, s.DB, project.ID)
		if err != nil {
			return nil, err
		}
		seq := max + 1
		if seq <= last {
			seq = last + 1
		}
		last = seq

		r.ID = uuid.NewString()
		r.Sequence = seq
		r.Number = FormatNumber(project.Code, seq)

		err = repo.CreateRFI(ctx, s.DB, r)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("rfi.number", r.Number), attribute.Int("attempts", i+1))
			return r, nil
		case errors.Is(err, repo.ErrDuplicate):
			loggerFrom(ctx).Debug().Str("rfi_number", r.Number).Msg("rfi number collision, retrying")
			continue
		case repo.IsForeignKeyViolation(err):
			return nil, ErrProjectNotFound
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: could not allocate an rfi number after %d attempts", ErrConflict, attempts)
}

// Get returns one RFI.
func (s *RFIService) Get(ctx context.Context, id string) (*domain.RFI, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	return getRFI(ctx, s.DB, id)
}

// ListPage returns a page of a project's RFIs, newest first, and the total.
func (s *RFIService) ListPage(ctx context.Context, f ListFilter, page, pageSize int) ([]domain.RFI, int64, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("project.id", f.ProjectID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	win := utils.PageRequest{Page: page, Size: pageSize}
	rf, err := s.filter(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	total, err := repo.CountRFIs(ctx, s.DB, rf)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.RFI{}, 0, nil
	}
	items, err := repo.ListRFIsPage(ctx, s.DB, rf, win.Offset(), win.Size)
	return items, total, err
}

// Stats returns the count and latest UpdatedAt for the filtered set; used
// for ETags.
func (s *RFIService) Stats(ctx context.Context, f ListFilter) (int64, *time.Time, error) {
	rf, err := s.filter(ctx, f)
	if err != nil {
		return 0, nil, err
	}
	return repo.RFIStats(ctx, s.DB, rf)
}

// Update applies a partial update. Only draft and open RFIs can be edited.
func (s *RFIService) Update(ctx context.Context, id string, in UpdateRFIInput) (*domain.RFI, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	fields := map[string]any{}
	if in.Subject != nil {
		v, err := s.text("subject", *in.Subject, s.SubjectMaxLen)
		if err != nil {
			return nil, err
		}
		fields["subject"] = v
	}
	if in.Question != nil {
		v, err := s.text("question", *in.Question, s.QuestionMaxLen)
		if err != nil {
			return nil, err
		}
		fields["question"] = v
	}
	if in.ToEmail != nil {
		v, err := normalizeAddress(*in.ToEmail)
		if err != nil {
			return nil, fmt.Errorf("%w: to_email: %v", ErrValidation, err)
		}
		fields["to_email"] = v
	}
	if in.CC != nil {
		v, err := normalizeCC(*in.CC)
		if err != nil {
			return nil, err
		}
		fields["cc_emails"] = datatypes.JSONSlice[string](v)
	}
	if in.Priority != nil {
		fields["priority"] = domain.ParsePriority(*in.Priority)
	}
	if in.Category != nil {
		fields["category"] = domain.ParseCategory(*in.Category)
	}
	switch {
	case in.ClearDueDate:
		fields["due_date"] = nil
	case in.DueDate != nil:
		fields["due_date"] = *in.DueDate
	}

	var out *domain.RFI
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := getRFI(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Status != domain.StatusDraft && r.Status != domain.StatusOpen {
			return fmt.Errorf("%w: rfi can only be edited in draft or open status (current: %s)", ErrInvalidState, r.Status)
		}
		if len(fields) > 0 {
			fields["updated_at"] = s.now()
			if err := repo.UpdateRFIFieldsIfStatus(ctx, tx, id, r.Status, fields); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("%w: rfi changed concurrently", ErrConflict)
				}
				return err
			}
		}
		out, err = getRFI(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition moves an RFI to target, a status name matched
// case-insensitively. Unknown names are a validation error; illegal edges
// are ErrInvalidState naming the allowed targets.
func (s *RFIService) Transition(ctx context.Context, id, target string) (*domain.RFI, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Transition",
		trace.WithAttributes(attribute.String("rfi.id", id), attribute.String("rfi.target", target)),
	)
	defer span.End()

	to, ok := domain.ParseStatus(target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	var out *domain.RFI
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := getRFI(ctx, tx, id)
		if err != nil {
			return err
		}
		from := r.Status
		fields, err := applyTransition(r, to, s.now())
		if err != nil {
			return err
		}
		fields["updated_at"] = s.now()
		if err := repo.UpdateRFIFieldsIfStatus(ctx, tx, id, from, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: rfi changed concurrently", ErrConflict)
			}
			return err
		}
		out, err = getRFI(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	transitionsTotal.WithLabelValues(string(to)).Inc()
	loggerFrom(ctx).Info().Str("rfi_id", id).Str("status", string(to)).Msg("rfi transitioned")
	return out, nil
}

// Delete removes a draft or cancelled RFI together with its responses and
// email log rows.
func (s *RFIService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := getRFI(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.Status.Deletable() {
			return fmt.Errorf("%w: rfi can only be deleted in %s or %s status (current: %s)",
				ErrInvalidState, domain.StatusDraft, domain.StatusCancelled, r.Status)
		}
		if err := repo.DeleteRFI(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRFINotFound
			}
			return err
		}
		return nil
	})
}

// Summary aggregates a project's RFIs.
func (s *RFIService) Summary(ctx context.Context, projectID string) (*repo.Summary, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Summary", trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	if err := s.projectExists(ctx, projectID); err != nil {
		return nil, err
	}
	return repo.ProjectSummary(ctx, s.DB, projectID, s.now())
}

// Responses lists an RFI's recorded replies.
func (s *RFIService) Responses(ctx context.Context, id string) ([]domain.RFIResponse, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "Responses", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	if _, err := getRFI(ctx, s.DB, id); err != nil {
		return nil, err
	}
	return repo.ListResponses(ctx, s.DB, id)
}

// EmailLog lists an RFI's email ledger rows, oldest first.
func (s *RFIService) EmailLog(ctx context.Context, id string) ([]domain.RFIEmailLog, error) {
	tr := otel.Tracer("services/RFIService")
	ctx, span := tr.Start(ctx, "EmailLog", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	if _, err := getRFI(ctx, s.DB, id); err != nil {
		return nil, err
	}
	return repo.ListEmailLog(ctx, s.DB, id)
}

// --- helpers ---

func (s *RFIService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *RFIService) text(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s must not be blank", ErrValidation, field)
	}
	if max > 0 && utf8.RuneCountInString(v) > max {
		return "", fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, max)
	}
	return v, nil
}

func (s *RFIService) filter(ctx context.Context, f ListFilter) (repo.RFIFilter, error) {
	if err := s.projectExists(ctx, f.ProjectID); err != nil {
		return repo.RFIFilter{}, err
	}
	rf := repo.RFIFilter{ProjectID: f.ProjectID}
	if v := strings.TrimSpace(f.Status); v != "" {
		st, ok := domain.ParseStatus(v)
		if !ok {
			return rf, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
		}
		rf.Status = st
	}
	if v := strings.ToLower(strings.TrimSpace(f.Priority)); v != "" {
		if !domain.Priority(v).Valid() {
			return rf, fmt.Errorf("%w: unknown priority %q", ErrValidation, f.Priority)
		}
		rf.Priority = domain.Priority(v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.Category)); v != "" {
		if !domain.Category(v).Valid() {
			return rf, fmt.Errorf("%w: unknown category %q", ErrValidation, f.Category)
		}
		rf.Category = domain.Category(v)
	}
	return rf, nil
}

func (s *RFIService) projectExists(ctx context.Context, id string) error {
	if _, err := repo.GetProject(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	return nil
}

func getRFI(ctx context.Context, db *gorm.DB, id string) (*domain.RFI, error) {
	r, err := repo.GetRFI(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRFINotFound
		}
		return nil, err
	}
	return r, nil
}

// normalizeAddress validates a single bare address and lower-cases it.
func normalizeAddress(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("must not be blank")
	}
	a, err := mail.ParseAddress(v)
	if err != nil {
		return "", fmt.Errorf("invalid address %q", v)
	}
	return strings.ToLower(a.Address), nil
}

func normalizeCC(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		a, err := normalizeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cc: %v", ErrValidation, err)
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// loggerFrom returns the request-scoped logger carried by ctx, or the global one.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
