package mailtransport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Outgoing describes a plain-text message to compose.
type Outgoing struct {
	From    string
	To      string
	CC      []string
	Subject string
	Body    string

	// MessageIDDomain is the right-hand side of the generated Message-ID.
	MessageIDDomain string
	// Date defaults to now.
	Date time.Time
}

// Composed is an RFC 5322 message ready for Transport.Send.
type Composed struct {
	Raw []byte
	// MessageID is the Message-ID header value without angle brackets.
	MessageID string
}

// Compose renders o as a single-part text/plain UTF-8 message with a fresh
// Message-ID. Addresses are validated; an empty From is allowed and left to
// the transport to fill in.
func Compose(o Outgoing) (*Composed, error) {
	to, err := mail.ParseAddress(strings.TrimSpace(o.To))
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", o.To, err)
	}
	cc := make([]*mail.Address, 0, len(o.CC))
	for _, raw := range o.CC {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		a, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid cc address %q: %w", raw, err)
		}
		cc = append(cc, a)
	}

	domain := strings.TrimSpace(o.MessageIDDomain)
	if domain == "" {
		return nil, errors.New("message id domain is empty")
	}
	id := uuid.NewString() + "@" + domain

	date := o.Date
	if date.IsZero() {
		date = time.Now()
	}

	var h mail.Header
	h.SetDate(date)
	if strings.TrimSpace(o.From) != "" {
		from, err := mail.ParseAddress(strings.TrimSpace(o.From))
		if err != nil {
			return nil, fmt.Errorf("invalid sender %q: %w", o.From, err)
		}
		h.SetAddressList("From", []*mail.Address{from})
	}
	h.SetAddressList("To", []*mail.Address{to})
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(o.Subject)
	h.SetMessageID(id)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, o.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &Composed{Raw: buf.Bytes(), MessageID: id}, nil
}
