package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var projectCodeRE = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

// ProjectService seeds projects and participants. Projects belong to an
// external system; this exists for the CLI and for local setups.
type ProjectService struct {
	DB *gorm.DB
}

// NewProjectService constructs a ProjectService.
func NewProjectService(db *gorm.DB) *ProjectService { return &ProjectService{DB: db} }

// Create adds a project. The code becomes part of every RFI number.
func (s *ProjectService) Create(ctx context.Context, code, name string) (*domain.Project, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("project.code", code)))
	defer span.End()

	c := strings.ToUpper(strings.TrimSpace(code))
	if !projectCodeRE.MatchString(c) {
		return nil, fmt.Errorf("%w: project code must be 1-16 letters or digits", ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name must not be blank", ErrValidation)
	}
	p, err := repo.CreateProject(ctx, s.DB, c, name)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("%w: project code %s already exists", ErrConflict, c)
	}
	return p, err
}

// AddMember registers a participant by email on the project with the given
// code.
func (s *ProjectService) AddMember(ctx context.Context, projectCode, userID, email, name string) (*domain.ProjectMember, error) {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "AddMember", trace.WithAttributes(attribute.String("project.code", projectCode)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id must not be blank", ErrValidation)
	}
	addr, err := normalizeAddress(email)
	if err != nil {
		return nil, fmt.Errorf("%w: email: %v", ErrValidation, err)
	}
	p, err := s.byCode(ctx, projectCode)
	if err != nil {
		return nil, err
	}
	m, err := repo.AddMember(ctx, s.DB, p.ID, userID, addr, name)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, fmt.Errorf("%w: %s is already a member of %s", ErrConflict, addr, p.Code)
	}
	return m, err
}

// Delete removes the project with the given code and, by cascade, its
// members, RFIs, responses and RFI-bound log rows.
func (s *ProjectService) Delete(ctx context.Context, projectCode string) error {
	tr := otel.Tracer("services/ProjectService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(attribute.String("project.code", projectCode)))
	defer span.End()

	p, err := s.byCode(ctx, projectCode)
	if err != nil {
		return err
	}
	if err := repo.DeleteProject(ctx, s.DB, p.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	loggerFrom(ctx).Info().Str("project_code", p.Code).Msg("project deleted")
	return nil
}

func (s *ProjectService) byCode(ctx context.Context, code string) (*domain.Project, error) {
	p, err := repo.GetProjectByCode(ctx, s.DB, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return p, nil
}
