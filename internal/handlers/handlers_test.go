package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todolist/internal/config"
	"todolist/internal/ids"
	"todolist/internal/repository/memory"
	"todolist/internal/security"
	"todolist/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	sessions *memory.Sessions
	dbErr    error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret",
			JWTRefreshSecret: "refresh-secret",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    7 * 24 * time.Hour,
			BcryptCost:       4,
			MaxSessions:      10,
		},
		Todos: config.TodosConfig{DefaultLimit: 10, MaxLimit: 100},
	}

	users := memory.NewUsers()
	sessions := memory.NewSessions()
	tokens := security.NewTokenIssuer(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		cfg.Security.JWTAccessTTL,
		cfg.Security.JWTRefreshTTL,
	)
	auth := service.NewAuthService(users, sessions, tokens, security.NewPasswordHasher(cfg.Security.BcryptCost), cfg, zerolog.Nop())
	todos := service.NewTodoService(memory.NewTodos(users), cfg)

	ts := &testServer{sessions: sessions}
	set := newHandlerSet(zerolog.Nop(), cfg, auth, todos, tokens,
		func(context.Context) error { return ts.dbErr },
		func(context.Context) error { return nil },
	)

	router := gin.New()
	set.Register(router.Group("/"))
	ts.router = router
	return ts
}

type request struct {
	method    string
	path      string
	body      any
	token     string
	userAgent string
	cookies   []*http.Cookie
}

func (ts *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	for _, cookie := range r.cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (ts *testServer) signup(t *testing.T, name, email, role string) string {
	t.Helper()
	rec := ts.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"name":     name,
		"email":    email,
		"password": "TestPassword123!",
		"role":     role,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["user"].(map[string]any)["id"].(string)
}

type loginTokens struct {
	access  string
	refresh string
	cookies []*http.Cookie
}

func (ts *testServer) login(t *testing.T, email, userAgent string) loginTokens {
	t.Helper()
	rec := ts.do(t, request{
		method:    http.MethodPost,
		path:      "/login",
		body:      map[string]string{"email": email, "password": "TestPassword123!"},
		userAgent: userAgent,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return loginTokens{
		access:  body["accessToken"].(string),
		refresh: body["refreshToken"].(string),
		cookies: rec.Result().Cookies(),
	}
}

func TestSignupEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"name":     "Test User",
		"email":    "Test@Example.com",
		"password": "TestPassword123!",
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "test@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, rec.Body.String(), "TestPassword123!")

	rec = ts.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"name":     "Test User",
		"email":    "test@example.com",
		"password": "TestPassword123!",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{"name": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signup(t, "Test User", "test@example.com", "")

	rec := ts.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "test@example.com", "password": "wrong-password",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "nobody@example.com", "password": "TestPassword123!",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "test@example.com", "password": "TestPassword123!",
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Login successful", body["message"])
	assert.EqualValues(t, http.StatusOK, body["status"])
	assert.Equal(t, map[string]any{"name": "Test User", "id": userID, "role": "user"}, body["result"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])

	cookies := map[string]*http.Cookie{}
	for _, cookie := range rec.Result().Cookies() {
		cookies[cookie.Name] = cookie
	}
	require.Contains(t, cookies, accessTokenCookie)
	require.Contains(t, cookies, refreshTokenCookie)
	assert.True(t, cookies[refreshTokenCookie].HttpOnly)
	assert.False(t, cookies[accessTokenCookie].HttpOnly)
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Test User", "test@example.com", "")
	tokens := ts.login(t, "test@example.com", "browser")

	rec := ts.do(t, request{method: http.MethodPost, path: "/refresh"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"No refresh token provided"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": "garbage"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid refresh token"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": tokens.refresh}})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEqual(t, tokens.access, body["accessToken"])
	rotated := body["refreshToken"].(string)

	// the cookie is used when the body carries no token
	rec = ts.do(t, request{
		method:  http.MethodPost,
		path:    "/refresh",
		cookies: []*http.Cookie{{Name: refreshTokenCookie, Value: rotated}},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": tokens.refresh}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefreshEndpointStoredExpiry(t *testing.T) {
	ts := newTestServer(t)
	userID := ts.signup(t, "Test User", "test@example.com", "")
	tokens := ts.login(t, "test@example.com", "browser")

	ts.sessions.Expire(userID, time.Now().Add(-time.Minute))

	rec := ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": tokens.refresh}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"Token expired or invalid"}`, rec.Body.String())
}

func TestLogoutEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Test User", "test@example.com", "")
	laptop := ts.login(t, "test@example.com", "laptop")
	phone := ts.login(t, "test@example.com", "phone")

	rec := ts.do(t, request{method: http.MethodDelete, path: "/logout"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodDelete, path: "/logout", token: laptop.access, userAgent: "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, cookie := range rec.Result().Cookies() {
		assert.Empty(t, cookie.Value)
		assert.Negative(t, cookie.MaxAge)
	}

	rec = ts.do(t, request{method: http.MethodDelete, path: "/logout", token: laptop.access, userAgent: "laptop"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"No active session found for this device"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": phone.refresh}})
	assert.Equal(t, http.StatusCreated, rec.Code, "other devices stay signed in")

	rec = ts.do(t, request{method: http.MethodPost, path: "/refresh", body: map[string]string{"refreshToken": laptop.refresh}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Test User", "test@example.com", "")
	laptop := ts.login(t, "test@example.com", "laptop")
	ts.login(t, "test@example.com", "phone")

	rec := ts.do(t, request{method: http.MethodGet, path: "/sessions", token: laptop.access, userAgent: "laptop"})
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := decode(t, rec)["sessions"].([]any)
	require.Len(t, sessions, 2)
	current := 0
	for _, raw := range sessions {
		session := raw.(map[string]any)
		if session["current"] == true {
			current++
			assert.Equal(t, "laptop", session["userAgent"])
		}
	}
	assert.Equal(t, 1, current)
}

func TestUpdateUserEndpoint(t *testing.T) {
	ts := newTestServer(t)
	aliceID := ts.signup(t, "Alice", "alice@example.com", "")
	bobID := ts.signup(t, "Bobby", "bob@example.com", "")
	alice := ts.login(t, "alice@example.com", "browser")

	update := map[string]string{"name": "Alice Again", "email": "alice2@example.com", "password": "NewPassword123!"}

	rec := ts.do(t, request{method: http.MethodPut, path: "/login/" + bobID, token: alice.access, body: update})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, request{method: http.MethodPut, path: "/login/" + aliceID, token: alice.access, body: update})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User updated successfully", decode(t, rec)["message"])

	rec = ts.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "alice2@example.com", "password": "NewPassword123!",
	}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMultibytePasswordOverByteLimit(t *testing.T) {
	ts := newTestServer(t)
	wide := strings.Repeat("é", 40)

	rec := ts.do(t, request{method: http.MethodPost, path: "/signup", body: map[string]string{
		"name":     "Wide User",
		"email":    "wide@example.com",
		"password": wide,
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"errors":{"password":"password must be at most 72 bytes"}}`, rec.Body.String())

	aliceID := ts.signup(t, "Alice", "alice@example.com", "")
	alice := ts.login(t, "alice@example.com", "browser")
	rec = ts.do(t, request{method: http.MethodPut, path: "/login/" + aliceID, token: alice.access, body: map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": wide,
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"errors":{"password":"password must be at most 72 bytes"}}`, rec.Body.String())
}

func TestTodosPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Test User", "test@example.com", "")
	tokens := ts.login(t, "test@example.com", "browser")

	rec := ts.do(t, request{method: http.MethodGet, path: "/todos", token: tokens.access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"message": "Todos fetched successfully",
		"status": 200,
		"result": [],
		"count": 0,
		"completedCount": 0,
		"pageInfo": {"nextCursor": null, "hasNextPage": false}
	}`, rec.Body.String())

	for i, title := range []string{"one", "two", "three"} {
		rec := ts.do(t, request{method: http.MethodPost, path: "/todos", token: tokens.access, body: map[string]any{
			"title":       title,
			"description": "item " + title,
			"completed":   i == 0,
		}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.EqualValues(t, http.StatusCreated, body["status"])
		assert.Len(t, body["result"], 1)
	}

	rec = ts.do(t, request{method: http.MethodGet, path: "/todos?limit=2", token: tokens.access})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	result := body["result"].([]any)
	require.Len(t, result, 2)
	assert.EqualValues(t, 3, body["count"])
	assert.EqualValues(t, 1, body["completedCount"])

	info := body["pageInfo"].(map[string]any)
	second := result[1].(map[string]any)
	assert.Equal(t, second["id"], info["nextCursor"])
	assert.Equal(t, true, info["hasNextPage"])
	assert.Equal(t, "Test User", second["user"].(map[string]any)["name"])

	rec = ts.do(t, request{method: http.MethodGet, path: "/todos?limit=2&cursor=" + info["nextCursor"].(string), token: tokens.access})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Len(t, body["result"], 1)
	info = body["pageInfo"].(map[string]any)
	assert.Nil(t, info["nextCursor"])
	assert.Equal(t, false, info["hasNextPage"])
}

func TestTodoMutations(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Test User", "test@example.com", "")
	tokens := ts.login(t, "test@example.com", "browser")

	rec := ts.do(t, request{method: http.MethodPost, path: "/todos", token: tokens.access, body: map[string]string{"title": "no description"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["errors"], "description")

	rec = ts.do(t, request{method: http.MethodPost, path: "/todos", token: tokens.access, body: map[string]string{
		"title": "Buy milk", "description": "2 litres",
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)["result"].([]any)[0].(map[string]any)
	assert.Equal(t, false, created["completed"])
	id := created["id"].(string)

	rec = ts.do(t, request{method: http.MethodPatch, path: "/todos/" + id, token: tokens.access, body: map[string]bool{"completed": true}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["result"].(map[string]any)["completed"])

	rec = ts.do(t, request{method: http.MethodPatch, path: "/todos/" + ids.New(), token: tokens.access, body: map[string]bool{"completed": true}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Todo not found"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodPatch, path: "/todos/not-an-id", token: tokens.access, body: map[string]bool{"completed": true}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())

	rec = ts.do(t, request{method: http.MethodDelete, path: "/todos/" + id, token: tokens.access})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, request{method: http.MethodDelete, path: "/todos/" + id, token: tokens.access})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAllTodosRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "Plain User", "user@example.com", "")
	ts.signup(t, "Admin User", "admin@example.com", "admin")
	user := ts.login(t, "user@example.com", "browser")
	admin := ts.login(t, "admin@example.com", "browser")

	rec := ts.do(t, request{method: http.MethodGet, path: "/todos/all", token: user.access})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, request{method: http.MethodGet, path: "/todos/all", token: admin.access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["result"])

	rec = ts.do(t, request{method: http.MethodPost, path: "/todos", token: user.access, body: map[string]string{
		"title": "Buy milk", "description": "2 litres",
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, request{method: http.MethodGet, path: "/todos/all", token: admin.access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["result"], 1)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok","cache":"ok","environment":"test"}`, rec.Body.String())

	ts.dbErr = errors.New("connection refused")
	rec = ts.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["database"])
}
