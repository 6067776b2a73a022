// RFI HTTP handlers.
//
// This file exposes REST endpoints for RFIs:
//   - POST   /projects/{projectId}/rfis          (create)
//   - GET    /projects/{projectId}/rfis          (list, filtered, paginated, ETag)
//   - GET    /projects/{projectId}/rfis/summary  (aggregate counts)
//   - GET    /rfis/{id}                          (read)
//   - PATCH  /rfis/{id}                          (partial update, draft/open only)
//   - DELETE /rfis/{id}                          (draft/cancelled only)
//   - POST   /rfis/{id}/status                   (explicit transition)
//   - POST   /rfis/{id}/send                     (email the RFI, idempotent)
//   - GET    /rfis/{id}/responses                (recorded replies)
//   - GET    /rfis/{id}/email-log                (email ledger)
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/http/middleware"
	"github.com/tbourn/rfi-tracker/internal/services"
)

//
// DTOs
//

// CreateRFIRequest is the JSON payload for raising an RFI.
type CreateRFIRequest struct {
	Subject  string   `json:"subject"   binding:"required" example:"Slab edge offset at grid C4"`
	Question string   `json:"question"  binding:"required" example:"Please confirm the slab edge offset shown on S-201."`
	ToEmail  string   `json:"to_email"  binding:"required" example:"architect@example.com"`
	CC       []string `json:"cc_emails" example:"pm@example.com"`
	// Category and Priority are coerced to "other" and "medium" when unknown.
	Category string `json:"category" example:"structural"`
	Priority string `json:"priority" example:"high"`
	// DueDate accepts YYYY-MM-DD or RFC 3339.
	DueDate   string `json:"due_date"   example:"2025-08-15"`
	CreatedBy string `json:"created_by" example:"user-42"`
}

// UpdateRFIRequest is a partial update. Omitted fields are unchanged; an
// empty due_date clears it.
type UpdateRFIRequest struct {
	Subject  *string   `json:"subject"`
	Question *string   `json:"question"`
	ToEmail  *string   `json:"to_email"`
	CC       *[]string `json:"cc_emails"`
	Category *string   `json:"category"`
	Priority *string   `json:"priority"`
	DueDate  *string   `json:"due_date"`
}

// TransitionRequest names the target status.
type TransitionRequest struct {
	Status string `json:"status" binding:"required" example:"open"`
}

// ListRFIsResponse wraps a page of RFIs and pagination information.
type ListRFIsResponse struct {
	RFIs       []domain.RFI `json:"rfis"`
	Pagination Pagination   `json:"pagination"`
}

// ListResponsesResponse wraps the replies recorded for an RFI.
type ListResponsesResponse struct {
	Responses []domain.RFIResponse `json:"responses"`
}

// EmailLogResponse wraps an RFI's email ledger.
type EmailLogResponse struct {
	Entries []domain.RFIEmailLog `json:"entries"`
}

//
// Helpers
//

// parseDueDate accepts a calendar date or an RFC 3339 timestamp.
func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: due_date must be YYYY-MM-DD or RFC 3339", services.ErrValidation)
	}
	t = t.UTC()
	return &t, nil
}

// createdBy prefers the body field and falls back to the X-User-ID header set
// by an upstream gateway.
func createdBy(c *gin.Context, body string) string {
	if v := strings.TrimSpace(body); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

func listFilter(c *gin.Context) services.ListFilter {
	return services.ListFilter{
		ProjectID: c.Param("projectId"),
		Status:    strings.TrimSpace(c.Query("status")),
		Priority:  strings.TrimSpace(c.Query("priority")),
		Category:  strings.TrimSpace(c.Query("category")),
	}
}

//
// Handlers
//

// CreateRFI godoc
// @ID          createRFI
// @Summary     Raise an RFI
// @Description Creates a draft RFI on the project with the next RFI-{CODE}-{NNNN} number.
// @Tags        RFIs
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Creator id when created_by is omitted"  example(user-42)
// @Param       projectId  path    string  true  "Project ID"
// @Param       body       body    handlers.CreateRFIRequest  true  "RFI payload"
//
// @Success     201  {object}  domain.RFI
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Project not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Number allocation conflict"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /projects/{projectId}/rfis [post]
func (h *Handlers) CreateRFI(c *gin.Context) {
	var req CreateRFIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject, question and to_email are required")
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		writeError(c, err)
		return
	}

	r, err := h.rfis.Create(c.Request.Context(), services.CreateRFIInput{
		ProjectID: c.Param("projectId"),
		Subject:   req.Subject,
		Question:  req.Question,
		ToEmail:   req.ToEmail,
		CC:        req.CC,
		Category:  req.Category,
		Priority:  req.Priority,
		DueDate:   due,
		CreatedBy: createdBy(c, req.CreatedBy),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRFIs godoc
// @ID          listRFIs
// @Summary     List a project's RFIs (paginated)
// @Description Returns a page of RFIs, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        RFIs
// @Produce     json
//
// @Param       projectId      path    string  true  "Project ID"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       status         query   string  false "Filter by status"    Enums(draft, open, waiting_response, answered, closed, cancelled)
// @Param       priority       query   string  false "Filter by priority"  Enums(low, medium, high, urgent)
// @Param       category       query   string  false "Filter by category"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListRFIsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Project not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /projects/{projectId}/rfis [get]
func (h *Handlers) ListRFIs(c *gin.Context) {
	ctx := c.Request.Context()
	f := listFilter(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.rfis.Stats(ctx, f); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"rfis:%s:%s:%s:%s:%d:%d:%d:%d"`,
			f.ProjectID, f.Status, f.Priority, f.Category, page, pageSize, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.rfis.ListPage(ctx, f, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListRFIsResponse{RFIs: items, Pagination: newPagination(page, pageSize, total)})
}

// ProjectSummary godoc
// @ID          projectSummary
// @Summary     Summarize a project's RFIs
// @Description Counts by status and priority, overdue count, and mean hours from send to answer.
// @Tags        RFIs
// @Produce     json
// @Param       projectId  path  string  true  "Project ID"
// @Success     200  {object} repo.Summary
// @Failure     404  {object} handlers.ErrorResponse "Project not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /projects/{projectId}/rfis/summary [get]
func (h *Handlers) ProjectSummary(c *gin.Context) {
	s, err := h.rfis.Summary(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// GetRFI godoc
// @ID          getRFI
// @Summary     Get an RFI
// @Tags        RFIs
// @Produce     json
// @Param       id  path  string  true  "RFI ID"
// @Success     200  {object} domain.RFI
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Router      /rfis/{id} [get]
func (h *Handlers) GetRFI(c *gin.Context) {
	r, err := h.rfis.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateRFI godoc
// @ID          updateRFI
// @Summary     Edit an RFI
// @Description Partially updates a draft or open RFI. An empty due_date clears it.
// @Tags        RFIs
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "RFI ID"
// @Param       body  body  handlers.UpdateRFIRequest  true  "Fields to change"
// @Success     200  {object} domain.RFI
// @Failure     400  {object} handlers.ErrorResponse "Bad request or RFI not editable"
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Failure     409  {object} handlers.ErrorResponse "Concurrent change"
// @Router      /rfis/{id} [patch]
func (h *Handlers) UpdateRFI(c *gin.Context) {
	var req UpdateRFIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := services.UpdateRFIInput{
		Subject:  req.Subject,
		Question: req.Question,
		ToEmail:  req.ToEmail,
		CC:       req.CC,
		Category: req.Category,
		Priority: req.Priority,
	}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			writeError(c, err)
			return
		}
		in.DueDate = due
		in.ClearDueDate = due == nil
	}

	r, err := h.rfis.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteRFI godoc
// @ID          deleteRFI
// @Summary     Delete an RFI
// @Description Deletes a draft or cancelled RFI with its responses and email log.
// @Tags        RFIs
// @Param       id  path  string  true  "RFI ID"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "RFI not deletable in its status"
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Router      /rfis/{id} [delete]
func (h *Handlers) DeleteRFI(c *gin.Context) {
	if err := h.rfis.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// TransitionRFI godoc
// @ID          transitionRFI
// @Summary     Change an RFI's status
// @Description Applies one lifecycle edge. Illegal edges return invalid_state naming the allowed targets.
// @Tags        RFIs
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "RFI ID"
// @Param       body  body  handlers.TransitionRequest  true  "Target status"
// @Success     200  {object} domain.RFI
// @Failure     400  {object} handlers.ErrorResponse "Unknown status or illegal transition"
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Failure     409  {object} handlers.ErrorResponse "Concurrent change"
// @Router      /rfis/{id}/status [post]
func (h *Handlers) TransitionRFI(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	r, err := h.rfis.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// SendRFI godoc
// @ID          sendRFI
// @Summary     Email an RFI
// @Description Sends a draft or open RFI to its recipient and moves it to waiting_response.
// @Description Supports idempotency via the Idempotency-Key header (same key returns the sent RFI).
// @Tags        RFIs
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "RFI ID"
//
// @Success     200  {object} domain.RFI
// @Header      200  {string} Idempotency-Replayed "true when served from a previous send"
// @Failure     400  {object} handlers.ErrorResponse "Not sendable in its status, or invalid recipient"
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Failure     502  {object} handlers.ErrorResponse "Mail transport failed; nothing recorded"
// @Router      /rfis/{id}/send [post]
func (h *Handlers) SendRFI(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Replay path.
	if middleware.IsReplay(c) && middleware.ReplayedResource(c) == id {
		if r, err := h.rfis.Get(ctx, id); err == nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, r)
			return
		}
	}

	r, err := h.dispatch.Send(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}

	// Store path, best effort.
	if key, has := middleware.GetIdempotencyKey(c); has && h.opts.Idempotency != nil {
		scope := middleware.GetIdempotencyScope(c)
		if err := h.opts.Idempotency.Save(ctx, scope, key, r.ID, http.StatusOK, h.opts.IdempotencyTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record not saved")
		}
	}
	ok(c, http.StatusOK, r)
}

// ListResponses godoc
// @ID          listResponses
// @Summary     List an RFI's responses
// @Tags        RFIs
// @Produce     json
// @Param       id  path  string  true  "RFI ID"
// @Success     200  {object} handlers.ListResponsesResponse
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Router      /rfis/{id}/responses [get]
func (h *Handlers) ListResponses(c *gin.Context) {
	items, err := h.rfis.Responses(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.RFIResponse{}
	}
	ok(c, http.StatusOK, ListResponsesResponse{Responses: items})
}

// ListEmailLog godoc
// @ID          listEmailLog
// @Summary     List an RFI's email ledger
// @Tags        RFIs
// @Produce     json
// @Param       id  path  string  true  "RFI ID"
// @Success     200  {object} handlers.EmailLogResponse
// @Failure     404  {object} handlers.ErrorResponse "RFI not found"
// @Router      /rfis/{id}/email-log [get]
func (h *Handlers) ListEmailLog(c *gin.Context) {
	items, err := h.rfis.EmailLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []domain.RFIEmailLog{}
	}
	ok(c, http.StatusOK, EmailLogResponse{Entries: items})
}
