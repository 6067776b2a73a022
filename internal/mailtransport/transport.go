// Package mailtransport abstracts the external mail service used to send RFIs
// and to fetch inbound replies announced by push notifications.
//
// Message mirrors the JSON shape of the Gmail REST resource (payload with
// headers, body.data in base64url, nested parts) so fixtures and fakes can be
// written as plain JSON.
package mailtransport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbourn/rfi-tracker/internal/config"
)

// ErrDisabled is returned by the disabled transport for every call.
var ErrDisabled = errors.New("mail transport disabled")

// Header is a single name/value header pair.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body holds inline data (base64url) or a reference to an attachment.
type Body struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Data         string `json:"data,omitempty"`
	Size         int64  `json:"size"`
}

// Part is one node of a message's MIME tree.
type Part struct {
	PartID   string   `json:"partId,omitempty"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
	Body     Body     `json:"body"`
	Parts    []Part   `json:"parts,omitempty"`
}

// Message is a fetched mail message.
type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	Payload  *Part    `json:"payload,omitempty"`
}

// SendResult carries the identifiers assigned to a sent message.
type SendResult struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds,omitempty"`
}

// Transport sends raw RFC 5322 messages and fetches messages by id.
// Failures are returned immediately; retry policy belongs to the caller's
// caller.
type Transport interface {
	Send(ctx context.Context, raw []byte) (SendResult, error)
	Fetch(ctx context.Context, id string) (*Message, error)
}

// Disabled is a Transport that refuses every operation. It is used when no
// mail account is configured so the API can still serve reads.
type Disabled struct{}

// Send always fails with ErrDisabled.
func (Disabled) Send(context.Context, []byte) (SendResult, error) {
	return SendResult{}, ErrDisabled
}

// Fetch always fails with ErrDisabled.
func (Disabled) Fetch(context.Context, string) (*Message, error) {
	return nil, ErrDisabled
}

// New builds the transport selected by cfg.Transport.
func New(ctx context.Context, cfg config.MailConfig) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", "disabled":
		return Disabled{}, nil
	case "gmail":
		return NewGmail(ctx, cfg.CredentialsFile, cfg.TokenFile, cfg.User)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}
