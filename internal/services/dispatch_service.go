// Package services – DispatchService
//
// DispatchService sends an RFI to its recipient through the mail transport
// and records the outcome. The transport call happens outside any database
// transaction; only after it succeeds are the thread and message ids, the
// waiting_response transition and the "sent" log row committed together.
// A transport failure leaves the RFI untouched.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var bodyTmpl = template.Must(template.New("rfi").Parse(`Request for Information {{.Number}}

Subject: {{.Subject}}
Priority: {{.Priority}}
Category: {{.Category}}
{{- if .DueDate}}
Response requested by: {{.DueDate.Format "2006-01-02"}}
{{- end}}

{{.Question}}

Please reply to this email to respond. Keep {{.Number}} in the subject line.
`))

// DispatchService sends RFIs.
type DispatchService struct {
	DB        *gorm.DB
	Transport mailtransport.Transport

	From            string
	MessageIDDomain string

	Now func() time.Time
}

// NewDispatchService wires a dispatcher from the mail settings in cfg.
func NewDispatchService(db *gorm.DB, t mailtransport.Transport, cfg config.MailConfig) *DispatchService {
	return &DispatchService{
		DB:              db,
		Transport:       t,
		From:            cfg.From,
		MessageIDDomain: cfg.MessageIDDomain,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

// OutboundSubject is the subject line of the email sent for r.
func OutboundSubject(r *domain.RFI) string {
	return fmt.Sprintf("[%s] %s", r.Number, r.Subject)
}

// RenderBody renders the plain-text body sent for r.
func RenderBody(r *domain.RFI) (string, error) {
	var b strings.Builder
	if err := bodyTmpl.Execute(&b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Send emails the RFI and moves it to waiting_response. Draft RFIs are
// opened on the way. Already-sent RFIs fail with ErrInvalidState.
func (s *DispatchService) Send(ctx context.Context, id string) (*domain.RFI, error) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "Send", trace.WithAttributes(attribute.String("rfi.id", id)))
	defer span.End()

	r, err := getRFI(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.ToEmail) == "" {
		return nil, fmt.Errorf("%w: rfi has no recipient", ErrValidation)
	}
	if r.Status != domain.StatusDraft && r.Status != domain.StatusOpen {
		return nil, fmt.Errorf("%w: rfi cannot be sent in %s status", ErrInvalidState, r.Status)
	}

	body, err := RenderBody(r)
	if err != nil {
		return nil, err
	}
	msg, err := mailtransport.Compose(mailtransport.Outgoing{
		From:            s.From,
		To:              r.ToEmail,
		CC:              r.CCEmails,
		Subject:         OutboundSubject(r),
		Body:            body,
		MessageIDDomain: s.MessageIDDomain,
		Date:            s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	res, err := s.Transport.Send(ctx, msg.Raw)
	if err != nil {
		outboundSends.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport send failed")
		loggerFrom(ctx).Warn().Err(err).Str("rfi_id", r.ID).Msg("rfi send failed")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	from := r.Status
	now := s.now()
	fields := map[string]any{}
	for r.Status != domain.StatusWaitingResponse {
		f, err := applyTransition(r, transitions[r.Status], now)
		if err != nil {
			return nil, err
		}
		for k, v := range f {
			fields[k] = v
		}
	}
	fields["email_thread_id"] = res.ThreadID
	fields["email_message_id"] = res.ID
	fields["outbound_header_id"] = msg.MessageID
	fields["updated_at"] = now

	var out *domain.RFI
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateRFIFieldsIfStatus(ctx, tx, r.ID, from, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: rfi changed while sending", ErrConflict)
			}
			return err
		}
		if _, err := repo.AppendEmailLog(ctx, tx, repo.EmailLogEntry{
			RFIID:     &r.ID,
			EventType: domain.EmailEventSent,
			MessageID: res.ID,
			ThreadID:  res.ThreadID,
			From:      s.From,
			To:        r.ToEmail,
			Subject:   OutboundSubject(r),
			Payload: map[string]any{
				"header_message_id": msg.MessageID,
				"cc":                []string(r.CCEmails),
				"label_ids":         res.LabelIDs,
			},
		}); err != nil {
			return err
		}
		out, err = getRFI(ctx, tx, r.ID)
		return err
	})
	if err != nil {
		// The message left; the record of it did not.
		outboundSends.WithLabelValues("unrecorded").Inc()
		loggerFrom(ctx).Error().Err(err).Str("rfi_id", r.ID).Str("message_id", res.ID).Msg("rfi sent but not recorded")
		return nil, err
	}

	outboundSends.WithLabelValues("ok").Inc()
	transitionsTotal.WithLabelValues(string(domain.StatusWaitingResponse)).Inc()
	span.SetAttributes(attribute.String("rfi.number", out.Number), attribute.String("mail.thread_id", res.ThreadID))
	loggerFrom(ctx).Info().
		Str("rfi_id", out.ID).
		Str("rfi_number", out.Number).
		Str("thread_id", res.ThreadID).
		Msg("rfi sent")
	return out, nil
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
