package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	repo   *MemoryRecadoRepository
	auth   *AdminAuthService
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	auth := newTestAuth(t)
	repo := NewMemoryRecadoRepository()
	router := NewRouter(cfg, RouterDeps{
		Sessions: NewSessionStore(cfg),
		Auth:     auth,
		Recados:  repo,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testServer{t: t, router: router, repo: repo, auth: auth}
}

func (s *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login() (string, *httptest.ResponseRecorder) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "admin123"}, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var res LoginResult
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.AccessToken, w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type errorBody struct {
	Error struct {
		Code    string       `json:"code"`
		Message string       `json:"message"`
		Details []FieldError `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestRouterPublicReads(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/recados", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page RecadoPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.NotNil(t, page.Data)

	w = s.do(http.MethodGet, "/api/v1/recados/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error.Code)

	w = s.do(http.MethodGet, "/api/v1/recados/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", decodeError(t, w).Error.Message)
}

func TestRouterListPagination(t *testing.T) {
	s := newTestServer(t)
	for _, text := range []string{"A", "B", "C"} {
		mustCreate(t, s.repo, text)
	}

	w := s.do(http.MethodGet, "/api/v1/recados?offset=1&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page RecadoPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, "B", page.Data[0].Text)
	assert.Equal(t, "C", page.Data[1].Text)
	assert.Equal(t, 3, page.Total)

	w = s.do(http.MethodGet, "/api/v1/recados?limit=500", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, maxLimit, page.Limit)

	w = s.do(http.MethodGet, "/api/v1/recados?offset=x&limit=1.5", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Len(t, body.Error.Details, 2)
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	mustCreate(t, s.repo, "existente")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/recados"},
		{http.MethodPatch, "/api/v1/recados/1"},
		{http.MethodPatch, "/api/v1/recados/1/read"},
		{http.MethodPut, "/api/v1/recados/1"},
		{http.MethodDelete, "/api/v1/recados/1"},
		{http.MethodGet, "/api/v1/auth/me"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := s.do(tc.method, tc.path, map[string]string{"text": "oi oi"}, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}

	w := s.do(http.MethodDelete, "/api/v1/recados/1", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", decodeError(t, w).Error.Message)

	n, _ := s.repo.Count(context.Background())
	assert.Equal(t, 1, n)
}

func TestRouterRecadoLifecycle(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login()
	auth := bearer(token)

	w := s.do(http.MethodPost, "/api/v1/recados", map[string]string{"from": "Joana", "to": "João", "text": "Este é um recado de teste"}, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec Recado
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, int64(1), rec.ID)
	assert.False(t, rec.Read)

	w = s.do(http.MethodPatch, "/api/v1/recados/1/read", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.Read)

	w = s.do(http.MethodPatch, "/api/v1/recados/1", map[string]string{"text": "texto novo"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "texto novo", rec.Text)
	assert.Equal(t, "Joana", rec.From)
	assert.False(t, rec.Read)

	w = s.do(http.MethodPut, "/api/v1/recados/1", map[string]string{"from": "Ana", "to": "Bia", "text": "trocado"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Ana", rec.From)

	w = s.do(http.MethodPut, "/api/v1/recados/1", map[string]string{"text": "sem nomes"}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/recados/1", nil, auth)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/recados/1", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPatch, "/api/v1/recados/1/read", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterCreateValidation(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login()

	w := s.do(http.MethodPost, "/api/v1/recados", map[string]any{"from": "J", "text": "ok", "id": 7}, bearer(token))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, []FieldError{
		{Field: "from", Message: `"from" length must be at least 2 characters long`},
		{Field: "to", Message: `"to" is required`},
		{Field: "id", Message: `"id" is not allowed`},
	}, body.Error.Details)

	w = s.do(http.MethodPost, "/api/v1/recados", "{not json", bearer(token))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid json", decodeError(t, w).Error.Message)

	n, _ := s.repo.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestRouterLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "wrong-one"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, w).Error.Message)

	w = s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "ad"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username must be at least 3 characters long, password is required", decodeError(t, w).Error.Message)

	token, w := s.login()
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, w.Header().Get(csrfHeader))
	assert.NotEmpty(t, w.Result().Cookies())

	w = s.do(http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	var u User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, User{ID: "1", Username: "admin"}, u)
}

func TestRouterSessionCookieAndCSRF(t *testing.T) {
	s := newTestServer(t)
	_, w := s.login()

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	cookie := cookies[0].Name + "=" + cookies[0].Value
	csrf := w.Header().Get(csrfHeader)

	w = s.do(http.MethodGet, "/api/v1/auth/me", nil, map[string]string{"Cookie": cookie})
	assert.Equal(t, http.StatusOK, w.Code)

	body := map[string]string{"from": "Joana", "to": "João", "text": "via cookie"}
	w = s.do(http.MethodPost, "/api/v1/recados", body, map[string]string{"Cookie": cookie})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/recados", body, map[string]string{"Cookie": cookie, csrfHeader: csrf})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/logout", nil, map[string]string{"Cookie": cookie})
	assert.Equal(t, http.StatusNoContent, w.Code)
	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestRouterExpiredToken(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login()

	s.auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w := s.do(http.MethodGet, "/api/v1/auth/me", nil, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", decodeError(t, w).Error.Message)
}

func TestRouterHealth(t *testing.T) {
	s := newTestServer(t)
	mustCreate(t, s.repo, "um")

	w := s.do(http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.Recados)
	assert.False(t, st.Timestamp.IsZero())
	assert.Nil(t, st.RateLimit)
}

func TestRouterUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error.Code)
}

func TestRouterRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.RateLimitMax = 2 })

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodGet, "/api/v1/recados", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(http.MethodGet, "/api/v1/recados", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", decodeError(t, w).Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRouterRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimitMax = 2
		c.RateLimitWindow = time.Hour
	})

	var codes []int
	for i := 0; i < 6; i++ {
		w := s.do(http.MethodGet, "/api/v1/recados", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429, 429}, codes)
}

func TestRouterRateLimitHonoursTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1
	s := newTestServer(t, func(c *Config) {
		c.RateLimitMax = 1
		c.RateLimitWindow = time.Hour
		c.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodGet, "/api/v1/recados", nil, map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)})
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(http.MethodGet, "/api/v1/recados", nil, map[string]string{"X-Forwarded-For": "10.0.0.0"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouterLogsRateLimitedRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.RateLimitMax = 1
	cfg.RateLimitWindow = time.Hour

	var buf bytes.Buffer
	router := NewRouter(cfg, RouterDeps{
		Sessions: NewSessionStore(cfg),
		Auth:     newTestAuth(t),
		Recados:  NewMemoryRecadoRepository(),
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	})

	for i := 0; i < 2; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/recados", nil))
	}
	assert.Contains(t, buf.String(), "GET /api/v1/recados 200")
	assert.Contains(t, buf.String(), "GET /api/v1/recados 429")
}

func TestRouterOriginAllowList(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.AllowedOrigins = []string{"http://app.test"} })

	w := s.do(http.MethodGet, "/api/v1/recados", nil, map[string]string{"Origin": "http://evil.test"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/recados", nil, map[string]string{"Origin": "http://app.test"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(http.MethodOptions, "/api/v1/recados", nil, map[string]string{"Origin": "http://app.test"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestParsePagination(t *testing.T) {
	offset, limit, err := parsePagination("", "")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, defaultLimit, limit)

	offset, limit, err = parsePagination("5", "101")
	require.NoError(t, err)
	assert.Equal(t, 5, offset)
	assert.Equal(t, maxLimit, limit)

	offset, limit, err = parsePagination("-3", "-1")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 0, limit)

	_, _, err = parsePagination("1.5", "")
	assert.Error(t, err)
}
