// Package mailparse normalizes a fetched transport message into a flat record:
// header lookup, decoded body text, thread and message ids, and attachment
// metadata. Parsing never fails; absent data yields empty values.
package mailparse

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"

	"github.com/tbourn/rfi-tracker/internal/mailtransport"
)

// Attachment describes an attachment part. Bytes are never read.
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachment_id"`
}

// Email is the normalized form of an inbound message.
type Email struct {
	// MessageID is the transport's identifier for the message.
	MessageID string
	ThreadID  string
	// Labels are the transport's labels for the message, e.g. SENT.
	Labels []string

	Subject string
	From    string // raw From header
	To      string // raw To header

	// FromAddress is the bare, lower-cased sender address.
	FromAddress string
	// InReplyTo is the In-Reply-To header without angle brackets.
	InReplyTo string
	// HeaderMessageID is the Message-ID header without angle brackets.
	HeaderMessageID string

	Body        string
	Attachments []Attachment

	headers map[string]string
}

// Header returns the first value of the named header, case-insensitively,
// or "" if the message does not carry it.
func (e *Email) Header(name string) string {
	if e == nil || e.headers == nil {
		return ""
	}
	return e.headers[strings.ToLower(strings.TrimSpace(name))]
}

// Parse flattens m. A nil message or payload produces an Email with only the
// ids that are available.
func Parse(m *mailtransport.Message) *Email {
	e := &Email{headers: map[string]string{}}
	if m == nil {
		return e
	}
	e.MessageID = m.ID
	e.ThreadID = m.ThreadID
	e.Labels = append([]string(nil), m.LabelIDs...)
	if m.Payload == nil {
		return e
	}

	for _, h := range m.Payload.Headers {
		k := strings.ToLower(strings.TrimSpace(h.Name))
		if _, seen := e.headers[k]; !seen && k != "" {
			e.headers[k] = strings.TrimSpace(h.Value)
		}
	}
	e.Subject = e.Header("Subject")
	e.From = e.Header("From")
	e.To = e.Header("To")
	e.FromAddress = bareAddress(e.From)
	e.InReplyTo = StripAngles(e.Header("In-Reply-To"))
	e.HeaderMessageID = StripAngles(e.Header("Message-ID"))

	e.Body = bodyText(m.Payload)
	collectAttachments(*m.Payload, &e.Attachments)
	return e
}

// StripAngles trims whitespace and one pair of enclosing angle brackets.
// When the header lists several ids only the first is kept.
func StripAngles(v string) string {
	v = strings.TrimSpace(v)
	if f := strings.Fields(v); len(f) > 1 {
		v = f[0]
	}
	v = strings.TrimPrefix(v, "<")
	v = strings.TrimSuffix(v, ">")
	return strings.TrimSpace(v)
}

// HasLabel reports whether the message carries label, ignoring case.
func (e *Email) HasLabel(label string) bool {
	if e == nil {
		return false
	}
	for _, l := range e.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Address returns the bare, lower-cased address of a From-style value such
// as "Name <a@b.example>".
func Address(from string) string { return bareAddress(from) }

func bareAddress(from string) string {
	if from == "" {
		return ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(a.Address)
	}
	// Fall back to the text between the last pair of angle brackets.
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.Index(from[i:], ">"); j > 0 {
			return strings.ToLower(strings.TrimSpace(from[i+1 : i+j]))
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// bodyText picks the first inline text/plain part depth-first, then the
// payload's own body, then the first inline text/* part.
func bodyText(root *mailtransport.Part) string {
	if p := findPart(*root, func(p mailtransport.Part) bool {
		return p.Filename == "" && mediaType(p.MimeType) == "text/plain" && p.Body.Data != ""
	}); p != nil {
		return Decode(p.Body.Data)
	}
	if root.Body.Data != "" && root.Filename == "" {
		return Decode(root.Body.Data)
	}
	if p := findPart(*root, func(p mailtransport.Part) bool {
		return p.Filename == "" && strings.HasPrefix(mediaType(p.MimeType), "text/") && p.Body.Data != ""
	}); p != nil {
		return Decode(p.Body.Data)
	}
	return ""
}

func findPart(p mailtransport.Part, match func(mailtransport.Part) bool) *mailtransport.Part {
	for i := range p.Parts {
		if match(p.Parts[i]) {
			return &p.Parts[i]
		}
		if found := findPart(p.Parts[i], match); found != nil {
			return found
		}
	}
	return nil
}

func collectAttachments(p mailtransport.Part, out *[]Attachment) {
	for _, child := range p.Parts {
		if child.Filename != "" {
			*out = append(*out, Attachment{
				Filename:     child.Filename,
				MimeType:     mediaType(child.MimeType),
				Size:         child.Body.Size,
				AttachmentID: child.Body.AttachmentID,
			})
		}
		collectAttachments(child, out)
	}
}

func mediaType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// Decode decodes base64url body data, tolerating padding, embedded
// whitespace and the standard alphabet. Undecodable input yields "".
// Invalid UTF-8 sequences are replaced.
func Decode(data string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, data)
	clean = strings.TrimRight(clean, "=")
	if clean == "" {
		return ""
	}
	b, err := base64.RawURLEncoding.DecodeString(clean)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(clean)
		if err != nil {
			return ""
		}
	}
	s := string(b)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return s
}
