package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/feed"
	"github.com/sakif/postboard/internal/handler"
	"github.com/sakif/postboard/internal/metrics"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository/sqlite"
	"github.com/sakif/postboard/internal/service"
)

// asUser stands in for token authentication: the X-Test-User header
// becomes the caller's identity.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(auth.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

type fixture struct {
	router http.Handler
	db     *sqlite.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	gate := auth.ContextGate{}
	posts := service.NewPostService(db, feed.NewCursorCodec("handler-test-secret"), m, logger)
	votes := service.NewVoteService(service.NewScoreAggregator(db), m, logger)
	users := service.NewUserService(db, logger)

	ph := handler.NewPostHandler(posts, votes, gate, logger)
	uh := handler.NewUserHandler(users, gate, logger)

	r := chi.NewRouter()
	r.Use(asUser)
	r.Get("/api/posts", ph.HandleList)
	r.Get("/api/posts/{id}", ph.HandleGet)
	r.Post("/api/posts", ph.HandleCreate)
	r.Put("/api/posts/{id}", ph.HandleUpdate)
	r.Delete("/api/posts/{id}", ph.HandleDelete)
	r.Post("/api/posts/{id}/vote", ph.HandleVote)
	r.Get("/api/me", uh.HandleMe)

	return &fixture{router: r, db: db}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u.ID
}

func (f *fixture) post(t *testing.T, creatorID string) string {
	t.Helper()
	p := &model.Post{Title: "t", Text: "x", CreatorID: creatorID}
	require.NoError(t, f.db.Create(context.Background(), p))
	return p.ID
}

func (f *fixture) send(method, path, userID, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHandleCreate(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	rec := f.send(http.MethodPost, "/api/posts", alice, `{"title":"hello","text":"world"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var post model.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	assert.Equal(t, "hello", post.Title)
	assert.Equal(t, alice, post.CreatorID)
}

func TestHandleCreate_BadRequests(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "title=hello"},
		{"unknown field", `{"title":"t","text":"x","score":100}`},
		{"two objects", `{"title":"t"}{"title":"u"}`},
		{"missing title", `{"text":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.send(http.MethodPost, "/api/posts", alice, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", errorType(t, rec))
		})
	}
}

func TestHandleCreate_Anonymous(t *testing.T) {
	f := newFixture(t)

	rec := f.send(http.MethodPost, "/api/posts", "", `{"title":"t","text":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorType(t, rec))
}

func TestHandleList_BadQuery(t *testing.T) {
	f := newFixture(t)

	rec := f.send(http.MethodGet, "/api/posts?limit=ten", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.send(http.MethodGet, "/api/posts?cursor=forged", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cursor", body.Field)
}

func TestHandleList_Pages(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	for i := 0; i < 3; i++ {
		f.post(t, alice)
	}

	rec := f.send(http.MethodGet, "/api/posts?limit=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page model.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Posts, 2)
	assert.True(t, page.HasMore)

	rec = f.send(http.MethodGet, "/api/posts?limit=2&cursor="+page.NextCursor, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var next model.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.Len(t, next.Posts, 1)
	assert.False(t, next.HasMore)
	assert.NotContains(t, rec.Body.String(), "nextCursor")
}

func TestHandleGet_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.send(http.MethodGet, "/api/posts/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorType(t, rec))
}

func TestHandleUpdate_Forbidden(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	id := f.post(t, alice)

	rec := f.send(http.MethodPut, "/api/posts/"+id, bob, `{"title":"mine now","text":""}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorType(t, rec))

	rec = f.send(http.MethodPut, "/api/posts/"+id, alice, `{"title":"edited","text":""}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDelete(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	id := f.post(t, alice)

	rec := f.send(http.MethodDelete, "/api/posts/"+id, bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.send(http.MethodDelete, "/api/posts/"+id, alice, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = f.send(http.MethodDelete, "/api/posts/"+id, alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleVote(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	id := f.post(t, alice)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"upvote", "/api/posts/" + id + "/vote", `{"value":1}`, http.StatusOK},
		{"missing value", "/api/posts/" + id + "/vote", `{}`, http.StatusBadRequest},
		{"zero", "/api/posts/" + id + "/vote", `{"value":0}`, http.StatusBadRequest},
		{"out of range", "/api/posts/" + id + "/vote", `{"value":3}`, http.StatusBadRequest},
		{"not a number", "/api/posts/" + id + "/vote", `{"value":"up"}`, http.StatusBadRequest},
		{"unknown post", "/api/posts/missing/vote", `{"value":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.send(http.MethodPost, tt.path, alice, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	rec := f.send(http.MethodGet, "/api/posts/"+id, alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var post model.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	assert.Equal(t, 1, post.Score)
}

func TestHandleMe(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	rec := f.send(http.MethodGet, "/api/me", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var user model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)

	rec = f.send(http.MethodGet, "/api/me", "deleted-user", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	handler.NewHealthHandler(pinger{}, logger).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.NewHealthHandler(pinger{err: errors.New("down")}, logger).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}
