// Package handlers exposes the RFI tracker over HTTP.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the interfaces below, and translate results
// (including conditional and replayed responses) into HTTP.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/repo"
	"github.com/tbourn/rfi-tracker/internal/services"
	"github.com/tbourn/rfi-tracker/internal/utils"
)

//
// Service contracts (context-aware)
//

// RFIRegistry is the RFI lifecycle consumed by the handlers.
// *services.RFIService satisfies it.
type RFIRegistry interface {
	Create(ctx context.Context, in services.CreateRFIInput) (*domain.RFI, error)
	Get(ctx context.Context, id string) (*domain.RFI, error)
	ListPage(ctx context.Context, f services.ListFilter, page, pageSize int) ([]domain.RFI, int64, error)
	// Stats returns the count and latest update of the filtered set (ETags).
	Stats(ctx context.Context, f services.ListFilter) (int64, *time.Time, error)
	Update(ctx context.Context, id string, in services.UpdateRFIInput) (*domain.RFI, error)
	Transition(ctx context.Context, id, target string) (*domain.RFI, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context, projectID string) (*repo.Summary, error)
	Responses(ctx context.Context, id string) ([]domain.RFIResponse, error)
	EmailLog(ctx context.Context, id string) ([]domain.RFIEmailLog, error)
}

// Dispatcher emails an RFI to its recipient.
type Dispatcher interface {
	Send(ctx context.Context, id string) (*domain.RFI, error)
}

// Ingestor processes a raw push notification body.
type Ingestor interface {
	HandlePush(ctx context.Context, body []byte) (*services.IngestResult, error)
}

// IdempotencyStore records the resource produced by a request made with an
// Idempotency-Key so that a retry can be replayed. The read side lives in
// middleware.IdempotencyValidator.
type IdempotencyStore interface {
	Save(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error
}

//
// Handler wiring
//

// Options tunes optional handler behavior.
type Options struct {
	// Idempotency enables replay recording for POST /rfis/{id}/send. Nil
	// disables it.
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration

	// WebhookMaxBodyBytes caps push bodies; <= 0 means 256 KiB.
	WebhookMaxBodyBytes int64
}

// Handlers groups the HTTP endpoints for RFIs and the inbound webhook.
type Handlers struct {
	rfis     RFIRegistry
	dispatch Dispatcher
	ingest   Ingestor
	opts     Options
}

// New constructs and returns a Handlers instance bound to the given services.
func New(rfis RFIRegistry, dispatch Dispatcher, ingest Ingestor, opts Options) *Handlers {
	if opts.WebhookMaxBodyBytes <= 0 {
		opts.WebhookMaxBodyBytes = 256 << 10
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{rfis: rfis, dispatch: dispatch, ingest: ingest, opts: opts}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size from the query string.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	return p.Page, p.Size
}
