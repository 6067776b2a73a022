package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/repo"
)

var testRFIConfig = config.RFIConfig{SubjectMaxLen: 255, QuestionMaxLen: 10000, NumberMaxAttempts: 10}

var testMailConfig = config.MailConfig{From: "rfi@tracker.example", MessageIDDomain: "tracker.example"}

// newTestDB opens a fresh in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedProject(t *testing.T, db *gorm.DB, code string) *domain.Project {
	t.Helper()
	p, err := repo.CreateProject(context.Background(), db, code, "Project "+code)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func newRFI(t *testing.T, svc *RFIService, p *domain.Project) *domain.RFI {
	t.Helper()
	r, err := svc.Create(context.Background(), CreateRFIInput{
		ProjectID: p.ID,
		Subject:   "Beam size at grid C4",
		Question:  "Please confirm the beam depth.",
		ToEmail:   "Architect@Example.com",
		Priority:  "high",
		Category:  "structural",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

// fixedClock returns a clock that starts at t0 and advances a minute per call.
func fixedClock(t0 time.Time) func() time.Time {
	var mu sync.Mutex
	cur := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

// ----- Fake transport -----

type fakeTransport struct {
	mu sync.Mutex

	sendErr  error
	sent     [][]byte
	nextID   int
	threadID string

	messages map[string]*mailtransport.Message
	fetchErr error
	fetched  []string
}

func (f *fakeTransport) Send(_ context.Context, raw []byte) (mailtransport.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return mailtransport.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, raw)
	f.nextID++
	thread := f.threadID
	if thread == "" {
		thread = fmt.Sprintf("thread-%d", f.nextID)
	}
	return mailtransport.SendResult{ID: fmt.Sprintf("gm-%d", f.nextID), ThreadID: thread, LabelIDs: []string{"SENT"}}, nil
}

func (f *fakeTransport) Fetch(_ context.Context, id string) (*mailtransport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return m, nil
}

// inbound builds a fetched message with a single text/plain body.
func inbound(id, thread, subject, from, inReplyTo, body string) *mailtransport.Message {
	hdrs := []mailtransport.Header{
		{Name: "Subject", Value: subject},
		{Name: "From", Value: from},
		{Name: "To", Value: "rfi@tracker.example"},
		{Name: "Message-ID", Value: "<" + id + "@mail.example>"},
	}
	if inReplyTo != "" {
		hdrs = append(hdrs, mailtransport.Header{Name: "In-Reply-To", Value: "<" + inReplyTo + ">"})
	}
	return &mailtransport.Message{
		ID:       id,
		ThreadID: thread,
		Payload: &mailtransport.Part{
			MimeType: "text/plain",
			Headers:  hdrs,
			Body:     mailtransport.Body{Data: b64url(body), Size: int64(len(body))},
		},
	}
}

func b64url(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

// pushBody builds a push envelope naming gmailID; an empty id omits the
// attribute.
func pushBody(t *testing.T, gmailID string) []byte {
	t.Helper()
	inner := base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"rfi@tracker.example","historyId":12345}`))
	msg := map[string]any{"data": inner, "messageId": "ps-" + uuid.NewString()}
	if gmailID != "" {
		msg["attributes"] = map[string]string{"gmail_message_id": gmailID}
	}
	b, err := json.Marshal(map[string]any{"message": msg, "subscription": "projects/p/subscriptions/s"})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
