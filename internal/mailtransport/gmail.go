package mailtransport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Gmail sends and fetches messages through the Gmail REST API on behalf of
// one authorized account.
type Gmail struct {
	svc  *gmail.Service
	user string
}

// NewGmail loads the OAuth client credentials and a previously stored token
// and returns a transport bound to user ("me" for the token's account).
func NewGmail(ctx context.Context, credentialsFile, tokenFile, user string) (*Gmail, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read gmail token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse gmail token: %w", err)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, &tok)))
	if err != nil {
		return nil, err
	}
	if user == "" {
		user = "me"
	}
	return &Gmail{svc: svc, user: user}, nil
}

// Send submits raw as a new message.
func (g *Gmail) Send(ctx context.Context, raw []byte) (SendResult, error) {
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	out, err := g.svc.Users.Messages.Send(g.user, msg).Context(ctx).Do()
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{ID: out.Id, ThreadID: out.ThreadId, LabelIDs: out.LabelIds}, nil
}

// Fetch retrieves the full message (headers, body and part tree).
func (g *Gmail) Fetch(ctx context.Context, id string) (*Message, error) {
	m, err := g.svc.Users.Messages.Get(g.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return fromGmail(m), nil
}

func fromGmail(m *gmail.Message) *Message {
	out := &Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		LabelIDs: m.LabelIds,
		Snippet:  m.Snippet,
	}
	if m.Payload != nil {
		p := fromGmailPart(m.Payload)
		out.Payload = &p
	}
	return out
}

func fromGmailPart(p *gmail.MessagePart) Part {
	out := Part{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h != nil {
			out.Headers = append(out.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	if p.Body != nil {
		out.Body = Body{AttachmentID: p.Body.AttachmentId, Data: p.Body.Data, Size: p.Body.Size}
	}
	for _, child := range p.Parts {
		if child != nil {
			out.Parts = append(out.Parts, fromGmailPart(child))
		}
	}
	return out
}
