package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rfi-tracker/internal/config"
	"github.com/tbourn/rfi-tracker/internal/http/middleware"
	"github.com/tbourn/rfi-tracker/internal/mailtransport"
	"github.com/tbourn/rfi-tracker/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:routerdb_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:         "/api/v1",
		RateRPS:             100,
		RateBurst:           10,
		OTEL:                config.OTELConfig{ServiceName: "test-svc"},
		RFI:                 config.RFIConfig{SubjectMaxLen: 255, QuestionMaxLen: 10000, NumberMaxAttempts: 10},
		IdempotencyTTL:      time.Hour,
		WebhookMaxBodyBytes: 64 << 10,
		Mail:                config.MailConfig{From: "rfi@tracker.example", MessageIDDomain: "test.local"},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), mailtransport.Disabled{}, cfg)
	return r
}

func hit(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Surface(t *testing.T) {
	r := newRouter(t, testConfig())

	cases := []struct {
		name, method, path string
		status             int
		cache              string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, middleware.CacheRevalidate},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, middleware.CacheNoStore},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, middleware.CacheRevalidate},
		{"wrong method", http.MethodPost, "/health", http.StatusMethodNotAllowed, middleware.CacheRevalidate},
		{"unknown rfi", http.MethodGet, "/api/v1/rfis/missing", http.StatusNotFound, middleware.CacheRevalidate},
		{"swagger off", http.MethodGet, "/swagger/index.html", http.StatusNotFound, middleware.CacheRevalidate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := hit(r, tc.method, tc.path, nil)
			if w.Code != tc.status {
				t.Fatalf("%s %s = %d %s", tc.method, tc.path, w.Code, w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Fatalf("ACAO=%q", got)
			}
			if got := w.Header().Get("Cache-Control"); got != tc.cache {
				t.Fatalf("Cache-Control=%q want %q", got, tc.cache)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Fatal("missing X-Request-ID")
			}
		})
	}
}

func TestRegisterRoutes_OriginsPrefixAndSwagger(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://site.example.com"}}
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	w := hit(r, http.MethodGet, "/health", map[string]string{"Origin": "https://site.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://site.example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}
	w = hit(r, http.MethodGet, "/health", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}

	if w := hit(r, http.MethodGet, "/api/v2/rfis/missing", nil); w.Code != http.StatusNotFound || !bytes.Contains(w.Body.Bytes(), []byte(`"not_found"`)) {
		t.Fatalf("v2 prefix: %d %s", w.Code, w.Body.String())
	}
	if w := hit(r, http.MethodGet, "/swagger/doc.json", nil); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"/api/v2"`)) {
		t.Fatalf("swagger doc.json = %d", w.Code)
	}
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	for body, want := range map[string]int{"0123456789": http.StatusOK, "0123456789AB": http.StatusRequestEntityTooLarge} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(body)))
		if w.Code != want {
			t.Fatalf("%d-byte body: got %d want %d", len(body), w.Code, want)
		}
	}
}

func TestGroupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for prefix, path := range map[string]string{"": "/ping", "/": "/ping", "/api": "/api/ping"} {
		r := gin.New()
		groupWithPrefix(r, prefix).GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		if w := hit(r, http.MethodGet, path, nil); w.Code != http.StatusOK || w.Body.String() != "pong" {
			t.Fatalf("prefix %q: GET %s = %d", prefix, path, w.Code)
		}
	}
}

// A request travels the whole stack: a project-scoped create and a
// compressed list through the versioned API.
func TestPipeline_CreateAndListCompressed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, mailtransport.Disabled{}, testConfig())

	p, err := repo.CreateProject(context.Background(), db, "PIPE", "Pipeline")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	body := `{"subject":"Pipe sleeve","question":"Sleeve size?","to_email":"mep@example.com"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+p.ID+"/rfis", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects/"+p.ID+"/rfis", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("list = %d encoding=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	raw, _ := io.ReadAll(zr)
	var list struct {
		RFIs []struct {
			Number string `json:"rfi_number"`
		} `json:"rfis"`
	}
	if err := json.Unmarshal(raw, &list); err != nil || len(list.RFIs) != 1 || list.RFIs[0].Number != "RFI-PIPE-0001" {
		t.Fatalf("list body: %s (%v)", raw, err)
	}

	// With mail disabled a send is a transport failure.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/rfis/"+created.ID+"/send", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("send with disabled mail = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_WebhookBypassesRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	RegisterRoutes(r, newTestDB(t), mailtransport.Disabled{}, cfg)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, WebhookPath, bytes.NewBufferString("{}")))
		if w.Code != http.StatusBadRequest { // malformed, but never 429
			t.Fatalf("push %d = %d", i, w.Code)
		}
	}

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Fatalf("health should be limited: %v", codes)
	}
}

func Test_idempotencyShim(t *testing.T) {
	db := newTestDB(t)
	shim := idempotencyShim{db: db}
	ctx := context.Background()
	now := time.Now().UTC()

	if rid, ok, err := shim.Lookup(ctx, "scope", "k1", now); err != nil || ok || rid != "" {
		t.Fatalf("miss: %q %v %v", rid, ok, err)
	}
	if err := shim.Save(ctx, "scope", "k1", "rfi-1", http.StatusOK, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// a second writer racing on the same key is tolerated
	if err := shim.Save(ctx, "scope", "k1", "rfi-1", http.StatusOK, time.Hour); err != nil {
		t.Fatalf("duplicate Save: %v", err)
	}
	if rid, ok, err := shim.Lookup(ctx, "scope", "k1", now); err != nil || !ok || rid != "rfi-1" {
		t.Fatalf("hit: %q %v %v", rid, ok, err)
	}
	if _, ok, _ := shim.Lookup(ctx, "other-scope", "k1", now); ok {
		t.Fatal("keys are scoped")
	}
	if _, ok, _ := shim.Lookup(ctx, "scope", "k1", now.Add(2*time.Hour)); ok {
		t.Fatal("expired record must miss")
	}

	// A broken database surfaces as an error, which the middleware treats as a miss.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()
	if _, _, err := shim.Lookup(ctx, "scope", "k1", now); err == nil {
		t.Fatal("expected error from closed db")
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, shim.Lookup))
	r.POST("/x/:id", func(c *gin.Context) {
		if middleware.IsReplay(c) {
			t.Fatal("lookup error must not replay")
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x/1", nil)
	req.Header.Set(middleware.HeaderIdempotencyKey, "k1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
}

func TestRegisterRoutes_RateKeyScope(t *testing.T) {
	for _, tc := range []struct {
		key    string
		second int
	}{
		{config.RateKeyRoute, http.StatusNotFound},
		{config.RateKeyIP, http.StatusTooManyRequests},
	} {
		t.Run(tc.key, func(t *testing.T) {
			cfg := testConfig()
			cfg.RateRPS, cfg.RateBurst, cfg.RateKey = 0.001, 1, tc.key
			r := newRouter(t, cfg)

			if w := hit(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
				t.Fatalf("first = %d", w.Code)
			}
			if w := hit(r, http.MethodGet, "/api/v1/rfis/missing", nil); w.Code != tc.second {
				t.Fatalf("other route = %d want %d", w.Code, tc.second)
			}
		})
	}
}
