package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/feed"
	"github.com/sakif/postboard/internal/service"
)

// PostHandler serves the feed, the post lifecycle and voting.
//
// Handlers only translate HTTP to service calls and back: they parse the
// path, query and body, ask the Gate who is calling, and map the returned
// apperror to a status code with writeError.
type PostHandler struct {
	posts  *service.PostService
	votes  *service.VoteService
	gate   auth.Gate
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, votes *service.VoteService, gate auth.Gate, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		posts:  posts,
		votes:  votes,
		gate:   gate,
		logger: logger,
	}
}

type postRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type voteRequest struct {
	Value *int `json:"value"`
}

type voteResponse struct {
	Voted bool `json:"voted"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

// viewer returns the caller's id, or "" for an anonymous reader.
func (h *PostHandler) viewer(r *http.Request) string {
	id, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		return ""
	}
	return id
}

// HandleList returns one page of the feed.
//
// HTTP: GET /api/posts?limit=10&cursor=<opaque>
//
// RESPONSE FORMAT:
//
//	{"posts":[...],"hasMore":true,"nextCursor":"..."}
//
// Pass nextCursor back as cursor to fetch the following page.
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", feed.DefaultLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.posts.ListPosts(r.Context(), h.viewer(r), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns a single post.
//
// HTTP: GET /api/posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPost(r.Context(), h.viewer(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleCreate creates a post owned by the caller.
//
// HTTP: POST /api/posts
// REQUEST BODY: {"title": "...", "text": "..."}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.CreatePost(r.Context(), userID, req.Title, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, post)
}

// HandleUpdate edits a post. Only its creator may do so.
//
// HTTP: PUT /api/posts/{id}
// REQUEST BODY: {"title": "...", "text": "..."}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req postRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.UpdatePost(r.Context(), userID, chi.URLParam(r, "id"), req.Title, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// HandleDelete removes a post and its votes.
//
// HTTP: DELETE /api/posts/{id}
// 200 {"deleted":true} on success, 404 when there is no such post.
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	deleted, err := h.posts.DeletePost(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, apperror.NotFound("post", id))
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: true})
}

// HandleVote casts the caller's vote.
//
// HTTP: POST /api/posts/{id}/vote
// REQUEST BODY: {"value": 1} or {"value": -1}
// 200 {"voted":true}; 404 when there is no such post.
func (h *PostHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.CurrentUserID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, apperror.ValidationFailed("value", "value is required"))
		return
	}

	id := chi.URLParam(r, "id")
	voted, err := h.votes.CastVote(r.Context(), userID, id, *req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	if !voted {
		writeError(w, apperror.NotFound("post", id))
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{Voted: true})
}
