// Package services – IngestService
//
// IngestService turns a push delivery into a recorded response. The
// envelope is decoded, the referenced message fetched from the transport
// and parsed, then matching and recording run in one transaction so a
// concurrent delete of the RFI either wins entirely or not at all.
//
// Deliveries are at-least-once; every path is safe to repeat.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rfi-tracker/internal/mailparse"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/pubsub"
	"github.com/tbourn/rfi-tracker/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is what happened to an acknowledged delivery.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeRejected: matched an RFI that was gone by the time the
	// response was written.
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored: the envelope named no message to fetch, or the
	// message is one this service sent.
	OutcomeIgnored Outcome = "ignored"
)

const labelSent = "SENT"

// IngestResult reports the handling of one delivery.
type IngestResult struct {
	Outcome   Outcome
	MessageID string
	RFIID     string
	Strategy  MatchStrategy
}

// IngestService handles inbound push notifications.
type IngestService struct {
	DB        *gorm.DB
	Transport mailtransport.Transport
	Matcher   *Matcher
	// Mailbox is the sending address (MAIL_FROM). Mail from it is never
	// treated as a reply.
	Mailbox string

	Now func() time.Time
}

// NewIngestService returns an IngestService with the standard matcher.
func NewIngestService(db *gorm.DB, t mailtransport.Transport) *IngestService {
	return &IngestService{
		DB:        db,
		Transport: t,
		Matcher:   NewMatcher(),
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandlePush processes a raw push body. A malformed envelope yields
// ErrMalformedWebhook and writes nothing; a fetch failure yields
// ErrTransport. Any other well-formed delivery returns an outcome.
func (s *IngestService) HandlePush(ctx context.Context, body []byte) (*IngestResult, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "HandlePush", trace.WithAttributes(attribute.Int("body.bytes", len(body))))
	defer span.End()

	env, err := pubsub.Decode(body)
	if err != nil {
		span.SetStatus(codes.Error, "malformed envelope")
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	id := env.GmailMessageID()
	if id == "" {
		inboundMessages.WithLabelValues(string(OutcomeIgnored)).Inc()
		loggerFrom(ctx).Debug().
			Str("pubsub_message_id", env.Message.MessageID).
			Str("history_id", env.Notification.HistoryID.String()).
			Msg("push without message id ignored")
		return &IngestResult{Outcome: OutcomeIgnored}, nil
	}
	span.SetAttributes(attribute.String("mail.message_id", id))

	m, err := s.Transport.Fetch(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrTransport, id, err)
	}
	e := mailparse.Parse(m)
	if e.MessageID == "" {
		e.MessageID = id
	}

	res, err := s.Ingest(ctx, e)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res, nil
}

// Ingest matches and records an already-parsed email in one transaction.
func (s *IngestService) Ingest(ctx context.Context, e *mailparse.Email) (*IngestResult, error) {
	res := &IngestResult{MessageID: e.MessageID}
	now := s.now()

	var ownReason string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := DBLookup{DB: tx}
		reason, err := s.ownMessage(ctx, lookup, e)
		if err != nil {
			return err
		}
		if reason != "" {
			res.Outcome, ownReason = OutcomeIgnored, reason
			return nil
		}

		r, strategy, err := s.Matcher.Match(ctx, lookup, e)
		if err != nil {
			return err
		}
		if r == nil {
			res.Outcome = OutcomeUnmatched
			_, err := RecordUnmatched(ctx, tx, e)
			return err
		}
		res.RFIID, res.Strategy = r.ID, strategy

		rec, err := RecordResponse(ctx, tx, r.ID, e, now)
		switch {
		case errors.Is(err, ErrRFINotFound):
			res.Outcome = OutcomeRejected
			return nil
		case err != nil:
			return err
		case rec.Duplicate:
			res.Outcome = OutcomeDuplicate
		default:
			res.Outcome = OutcomeMatched
		}
		return nil
	})
	if err != nil {
		loggerFrom(ctx).Error().Err(err).Str("message_id", e.MessageID).Msg("inbound processing failed")
		return nil, err
	}

	inboundMessages.WithLabelValues(string(res.Outcome)).Inc()
	l := loggerFrom(ctx).With().
		Str("message_id", res.MessageID).
		Str("thread_id", e.ThreadID).
		Logger()
	switch res.Outcome {
	case OutcomeMatched:
		matchStrategy.WithLabelValues(string(res.Strategy)).Inc()
		l.Info().Str("rfi_id", res.RFIID).Str("strategy", string(res.Strategy)).Msg("inbound matched")
	case OutcomeDuplicate:
		l.Info().Str("rfi_id", res.RFIID).Msg("duplicate inbound ignored")
	case OutcomeRejected:
		l.Warn().Str("rfi_id", res.RFIID).Msg("inbound matched a deleted rfi")
	case OutcomeUnmatched:
		l.Info().Str("subject", e.Subject).Msg("inbound unmatched")
	case OutcomeIgnored:
		l.Debug().Str("reason", ownReason).Msg("own outbound message ignored")
	}
	return res, nil
}

// ownMessage reports why e is mail this service sent, or "" when it is not.
// The mailbox's own sends surface in the push stream alongside replies.
func (s *IngestService) ownMessage(ctx context.Context, l RFILookup, e *mailparse.Email) (string, error) {
	if e.HasLabel(labelSent) {
		return "sent_label", nil
	}
	if mb := mailparse.Address(s.Mailbox); mb != "" && e.FromAddress == mb {
		return "own_sender", nil
	}
	for _, id := range []string{e.MessageID, e.HeaderMessageID} {
		if id == "" {
			continue
		}
		_, err := l.ByOutboundMessageID(ctx, id)
		switch {
		case err == nil:
			return "outbound_id", nil
		case !errors.Is(err, repo.ErrNotFound):
			return "", err
		}
	}
	return "", nil
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
