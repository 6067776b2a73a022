package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/mailparse"
	"github.com/tbourn/rfi-tracker/internal/repo"
)

// RecordResult describes what RecordResponse did.
type RecordResult struct {
	Response *domain.RFIResponse
	// Duplicate is true when a response for the same inbound message id
	// already existed; nothing was written.
	Duplicate bool
	// Answered is true when the RFI moved from waiting_response to answered.
	Answered bool
}

// RecordResponse stores e as a response to the RFI rfiID. It must run inside
// the caller's transaction so the response, the status change and the log
// row commit together.
//
// An existing response for e.MessageID is returned unchanged. A missing RFI
// yields ErrRFINotFound and nothing is written.
func RecordResponse(ctx context.Context, tx *gorm.DB, rfiID string, e *mailparse.Email, now time.Time) (*RecordResult, error) {
	if existing, err := repo.GetResponseByMessageID(ctx, tx, e.MessageID); err == nil {
		return &RecordResult{Response: existing, Duplicate: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	r, err := getRFI(ctx, tx, rfiID)
	if err != nil {
		return nil, err
	}

	var responder *string
	if e.FromAddress != "" {
		m, err := repo.FindMemberByEmail(ctx, tx, r.ProjectID, e.FromAddress)
		switch {
		case err == nil:
			responder = &m.UserID
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
	}

	atts := make([]domain.AttachmentMeta, 0, len(e.Attachments))
	for _, a := range e.Attachments {
		atts = append(atts, domain.AttachmentMeta{
			Filename:     a.Filename,
			MimeType:     a.MimeType,
			Size:         a.Size,
			AttachmentID: a.AttachmentID,
		})
	}
	resp := &domain.RFIResponse{
		ID:             uuid.NewString(),
		RFIID:          r.ID,
		ResponseText:   e.Body,
		ResponderID:    responder,
		FromEmail:      e.FromAddress,
		EmailMessageID: e.MessageID,
		Attachments:    datatypes.JSONSlice[domain.AttachmentMeta](atts),
		CreatedAt:      now,
	}

	// Savepoint: a unique or foreign key violation must not poison the
	// surrounding transaction on Postgres.
	err = tx.Transaction(func(sp *gorm.DB) error {
		return repo.CreateResponse(ctx, sp, resp)
	})
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrDuplicate):
		existing, gerr := repo.GetResponseByMessageID(ctx, tx, e.MessageID)
		if gerr != nil {
			return nil, gerr
		}
		return &RecordResult{Response: existing, Duplicate: true}, nil
	case repo.IsForeignKeyViolation(err):
		return nil, ErrRFINotFound
	default:
		return nil, err
	}

	res := &RecordResult{Response: resp}
	if r.Status == domain.StatusWaitingResponse {
		fields, err := applyTransition(r, domain.StatusAnswered, now)
		if err != nil {
			return nil, err
		}
		fields["updated_at"] = now
		if err := repo.UpdateRFIFieldsIfStatus(ctx, tx, r.ID, domain.StatusWaitingResponse, fields); err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}
			// Moved on concurrently (e.g. cancelled); the response still stands.
		} else {
			res.Answered = true
			transitionsTotal.WithLabelValues(string(domain.StatusAnswered)).Inc()
		}
	}

	_, err = repo.AppendEmailLog(ctx, tx, repo.EmailLogEntry{
		RFIID:     &r.ID,
		EventType: domain.EmailEventReceived,
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
		From:      e.FromAddress,
		To:        e.To,
		Subject:   e.Subject,
		Payload: map[string]any{
			"response_id":       resp.ID,
			"responder_id":      responder,
			"in_reply_to":       e.InReplyTo,
			"header_message_id": e.HeaderMessageID,
			"attachments":       len(atts),
		},
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RecordUnmatched appends an orphan log row for an email no RFI claimed.
// Repeated deliveries each add a row.
func RecordUnmatched(ctx context.Context, tx *gorm.DB, e *mailparse.Email) (*domain.RFIEmailLog, error) {
	return repo.AppendEmailLog(ctx, tx, repo.EmailLogEntry{
		EventType: domain.EmailEventUnmatched,
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
		From:      e.FromAddress,
		To:        e.To,
		Subject:   e.Subject,
		Payload: map[string]any{
			"in_reply_to":       e.InReplyTo,
			"header_message_id": e.HeaderMessageID,
			"subject_token":     ExtractRFINumber(e.Subject),
			"attachments":       len(e.Attachments),
		},
	})
}
