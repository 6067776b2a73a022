package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/domain"
	"github.com/tbourn/rfi-tracker/internal/http/middleware"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/repo"
	"github.com/tbourn/rfi-tracker/internal/services"
)

// ---------- test DB + repo shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:rfi_handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testIdemStore mirrors the router's repo-backed idempotency shim.
type testIdemStore struct{ db *gorm.DB }

func (s testIdemStore) Lookup(ctx context.Context, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, scope, key, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

func (s testIdemStore) Save(ctx context.Context, scope, key, resourceID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, scope, key, resourceID, status, ttl)
	return err
}

// ---------- fake mail transport ----------

type fakeMail struct {
	mu       sync.Mutex
	sendErr  error
	sent     int
	fetchErr error
	messages map[string]*mailtransport.Message
}

func (f *fakeMail) Send(context.Context, []byte) (mailtransport.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return mailtransport.SendResult{}, f.sendErr
	}
	f.sent++
	return mailtransport.SendResult{ID: fmt.Sprintf("gm-%d", f.sent), ThreadID: fmt.Sprintf("th-%d", f.sent)}, nil
}

func (f *fakeMail) Fetch(_ context.Context, id string) (*mailtransport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return m, nil
}

func (f *fakeMail) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func replyMessage(id, thread, subject, from, body string) *mailtransport.Message {
	return &mailtransport.Message{
		ID:       id,
		ThreadID: thread,
		Payload: &mailtransport.Part{
			MimeType: "text/plain",
			Headers: []mailtransport.Header{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
				{Name: "To", Value: "rfi@tracker.example"},
			},
			Body: mailtransport.Body{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
		},
	}
}

func pushEnvelope(t *testing.T, gmailID string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":       base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"rfi@tracker.example","historyId":1}`)),
			"messageId":  "ps-" + uuid.NewString(),
			"attributes": map[string]string{"gmail_message_id": gmailID},
		},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// ---------- router under test ----------

type testEnv struct {
	db      *gorm.DB
	mail    *fakeMail
	router  *gin.Engine
	project *domain.Project
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	mail := &fakeMail{messages: map[string]*mailtransport.Message{}}
	p, err := repo.CreateProject(context.Background(), db, "HQ", "Headquarters")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	rfis := services.NewRFIService(db, config.RFIConfig{SubjectMaxLen: 255, QuestionMaxLen: 10000, NumberMaxAttempts: 10})
	dispatch := services.NewDispatchService(db, mail, config.MailConfig{From: "rfi@tracker.example", MessageIDDomain: "tracker.example"})
	ingest := services.NewIngestService(db, mail)
	store := testIdemStore{db: db}
	h := New(rfis, dispatch, ingest, Options{Idempotency: store, WebhookMaxBodyBytes: 4 << 10})

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-test"); c.Next() })
	api := r.Group("/api/v1")
	api.POST("/projects/:projectId/rfis", h.CreateRFI)
	api.GET("/projects/:projectId/rfis", h.ListRFIs)
	api.GET("/projects/:projectId/rfis/summary", h.ProjectSummary)
	api.GET("/rfis/:id", h.GetRFI)
	api.PATCH("/rfis/:id", h.UpdateRFI)
	api.DELETE("/rfis/:id", h.DeleteRFI)
	api.POST("/rfis/:id/status", h.TransitionRFI)
	api.POST("/rfis/:id/send", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, store.Lookup), h.SendRFI)
	api.GET("/rfis/:id/responses", h.ListResponses)
	api.GET("/rfis/:id/email-log", h.ListEmailLog)
	r.POST("/webhooks/gmail/push", h.GmailPush)

	return &testEnv{db: db, mail: mail, router: r, project: p}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createRFI posts a valid RFI and returns it.
func (e *testEnv) createRFI(t *testing.T, subject string) domain.RFI {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/projects/"+e.project.ID+"/rfis", CreateRFIRequest{
		Subject:  subject,
		Question: "Please confirm.",
		ToEmail:  "architect@example.com",
		Priority: "high",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var r domain.RFI
	decode(t, w, &r)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	if er.RequestID != "rid-test" {
		t.Fatalf("request id not echoed: %+v", er)
	}
	return er.Code
}
