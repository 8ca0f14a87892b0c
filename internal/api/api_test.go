package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hirehub/internal/auth"
	"hirehub/internal/config"
	"hirehub/internal/database"
	"hirehub/internal/realtime"
	"hirehub/internal/tasks"
	"hirehub/internal/testutil"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	prefixes []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectKey] = b
	return nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append(s.prefixes, prefix)
	for key := range s.uploaded {
		if strings.HasPrefix(key, prefix) {
			delete(s.uploaded, key)
		}
	}
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

// emails 返回按模板过滤的邮件任务载荷。
func (q *fakeQueue) emails(t *testing.T, template string) []tasks.EmailPayload {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []tasks.EmailPayload
	for _, task := range q.tasks {
		if task.Type() != tasks.TypeEmailSend {
			continue
		}
		var p tasks.EmailPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &p))
		if p.Template == template {
			out = append(out, p)
		}
	}
	return out
}

type testEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	auth    *auth.AuthService
	redis   *redis.Client
	mr      *miniredis.Miniredis
	hub     *realtime.Hub
	queue   *fakeQueue
	storage *fakeStorage
}

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			FrontendBaseURL:      "http://app.test",
			RequireVerifiedLogin: true,
		},
		Limits: config.LimitsConfig{
			LoginRatePerHour:   20,
			LoginLockThreshold: 3,
			LoginLockTTL:       15 * time.Minute,
			UploadMaxBytes:     1 << 20,
			ChatEventsPerSec:   50,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:      testutil.NewTestDB(t),
		auth:    testutil.NewAuthService(t),
		redis:   rdb,
		mr:      mr,
		hub:     realtime.NewHub(rdb, logger),
		queue:   &fakeQueue{},
		storage: newFakeStorage(),
	}

	cfg := testConfig()
	env.router = NewRouter(cfg, logger)
	RegisterRoutes(env.router, Dependencies{
		Config:  cfg,
		DB:      env.db,
		Auth:    env.auth,
		Redis:   rdb,
		Queue:   env.queue,
		Storage: env.storage,
		Hub:     env.hub,
		Logger:  logger,
	})
	return env
}

func (e *testEnv) token(t *testing.T, user database.User) string {
	t.Helper()
	pair, err := e.auth.GenerateTokenPair(user.TokenSubject())
	require.NoError(t, err)
	return pair.AccessToken
}

// do 发送 JSON 请求；token 非空时带上 Bearer 头。
func (e *testEnv) do(t *testing.T, method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, path, field, filename string, content []byte, fields map[string]string, token string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if field != "" {
		part, err := writer.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func cookieFrom(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
)
