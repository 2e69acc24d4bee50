// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept primitives (ids, strings, ints), never *http.Request, so
// the same rules apply whether a call comes from a handler, the CLI or a
// test. They return apperror values; the handler decides the status code.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  DB → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
//
// Every service takes repository interfaces, not *sqlite.DB, so tests inject
// in-memory fakes (see fakes_test.go).
//
// IDENTITY:
// The acting user is always an explicit argument (viewerID, creatorID,
// requesterID). An empty viewerID means an anonymous reader; an empty id
// where a user is required is apperror.ErrUnauthenticated.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/feed"
	"github.com/sakif/postboard/internal/metrics"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/render"
	"github.com/sakif/postboard/internal/repository"
)

const (
	MaxTitleLength = 300
	MaxTextLength  = 40000
)

// PostStore is the slice of persistence PostService needs.
type PostStore interface {
	repository.PostRepository
	repository.VoteRepository
	repository.Transactor
}

// PostService serves the feed and the post lifecycle.
type PostService struct {
	store   PostStore
	cursors *feed.CursorCodec
	metrics *metrics.Registry
	logger  *slog.Logger
}

func NewPostService(store PostStore, cursors *feed.CursorCodec, m *metrics.Registry, logger *slog.Logger) *PostService {
	return &PostService{
		store:   store,
		cursors: cursors,
		metrics: m,
		logger:  logger,
	}
}

// ListPosts returns one page of the feed, newest first.
//
// KEYSET PAGINATION:
// The repository is asked for limit+1 rows. If the extra row comes back
// there is another page; it is dropped from the result and the cursor is
// built from the last row that is returned. Because the cursor is the
// (createdAt, id) key of a real row, and the next query starts strictly
// after it, no post is skipped or repeated between pages even when posts
// share a timestamp.
//
// An empty cursor starts at the newest post. A cursor that does not decode
// or whose signature does not verify is a validation error.
func (s *PostService) ListPosts(ctx context.Context, viewerID string, limit int, cursor string) (*model.Page, error) {
	limit = feed.ClampLimit(limit)

	q := repository.FeedQuery{Limit: limit + 1}
	if cursor != "" {
		key, err := s.cursors.Decode(cursor)
		if err != nil {
			return nil, apperror.ValidationFailed("cursor", "cursor is malformed or was not issued by this server")
		}
		q.After = &key
	}

	posts, err := s.store.List(ctx, q)
	if err != nil {
		s.logger.Error("failed to list posts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	page := &model.Page{HasMore: len(posts) > limit}
	if page.HasMore {
		posts = posts[:limit]
		last := posts[len(posts)-1]
		page.NextCursor = s.cursors.Encode(last.Key())
	}

	if err := s.decorate(ctx, viewerID, posts); err != nil {
		return nil, err
	}
	page.Posts = posts

	s.metrics.FeedPageServed()
	return page, nil
}

// GetPost returns one post with its derived fields.
// Returns apperror.ErrNotFound if the post doesn't exist.
func (s *PostService) GetPost(ctx context.Context, viewerID, id string) (*model.Post, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "post ID is required")
	}

	post, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	posts := []model.Post{*post}
	if err := s.decorate(ctx, viewerID, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// CreatePost stores a new post with score 0 owned by creatorID.
func (s *PostService) CreatePost(ctx context.Context, creatorID, title, text string) (*model.Post, error) {
	if creatorID == "" {
		return nil, apperror.Unauthenticated()
	}
	title, err := validateContent(title, text)
	if err != nil {
		return nil, err
	}

	post := &model.Post{
		Title:     title,
		Text:      text,
		CreatorID: creatorID,
	}
	if err := s.store.Create(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("creatorID", creatorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	s.metrics.PostCreated()
	s.logger.Info("post created",
		slog.String("id", post.ID),
		slog.String("creatorID", creatorID),
	)

	// A fresh post has no votes, so there is nothing to look up for the
	// creator's vote status.
	render.Decorate(post)
	return post, nil
}

// UpdatePost replaces the title and text of a post. Only the creator may
// edit it; anyone else gets apperror.ErrForbidden and nothing is written.
// The score and the vote ledger are untouched.
func (s *PostService) UpdatePost(ctx context.Context, requesterID, id, title, text string) (*model.Post, error) {
	if requesterID == "" {
		return nil, apperror.Unauthenticated()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "post ID is required")
	}
	title, err := validateContent(title, text)
	if err != nil {
		return nil, err
	}

	post, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != requesterID {
		return nil, apperror.Forbidden("only the creator can edit this post")
	}

	post.Title = title
	post.Text = text
	if err := s.store.Update(ctx, post); err != nil {
		s.logger.Error("failed to update post",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating post: %w", err)
	}

	s.logger.Info("post updated", slog.String("id", id))

	posts := []model.Post{*post}
	if err := s.decorate(ctx, requesterID, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// DeletePost removes a post and every vote on it in one transaction.
//
// It returns (false, nil) when the post does not exist and
// apperror.ErrForbidden when requesterID is not the creator. In both cases
// nothing is written.
func (s *PostService) DeletePost(ctx context.Context, requesterID, id string) (bool, error) {
	if requesterID == "" {
		return false, apperror.Unauthenticated()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, apperror.ValidationFailed("id", "post ID is required")
	}

	var votesRemoved int64
	err := s.store.InTx(ctx, func(tx repository.LedgerTx) error {
		creatorID, err := tx.PostCreator(ctx, id)
		if err != nil {
			return err
		}
		if creatorID != requesterID {
			return apperror.Forbidden("only the creator can delete this post")
		}

		// Votes first, then the post: the ledger never references a
		// missing post, even without the schema's ON DELETE CASCADE.
		votesRemoved, err = tx.DeleteVotesForPost(ctx, id)
		if err != nil {
			return err
		}
		return tx.DeletePost(ctx, id)
	})
	if err != nil {
		switch {
		case isNotFound(err):
			return false, nil
		case isForbidden(err), isConflict(err):
			return false, err
		default:
			s.logger.Error("failed to delete post",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			return false, fmt.Errorf("deleting post: %w", err)
		}
	}

	s.metrics.PostDeleted()
	s.logger.Info("post deleted",
		slog.String("id", id),
		slog.Int64("votesRemoved", votesRemoved),
	)
	return true, nil
}

// decorate fills the derived fields of posts in place: the rendered text
// and, for a signed-in viewer, their vote status. Vote statuses for the
// whole slice come from one query.
func (s *PostService) decorate(ctx context.Context, viewerID string, posts []model.Post) error {
	for i := range posts {
		render.Decorate(&posts[i])
	}
	if viewerID == "" || len(posts) == 0 {
		return nil
	}

	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	votes, err := s.store.VotesByUser(ctx, viewerID, ids)
	if err != nil {
		s.logger.Error("failed to load vote status",
			slog.String("viewerID", viewerID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("loading vote status: %w", err)
	}

	for i := range posts {
		if v, ok := votes[posts[i].ID]; ok {
			posts[i].VoteStatus = model.VoteStatus(&v)
		}
	}
	return nil
}

// validateContent trims and checks a title and body, returning the trimmed
// title. The body is stored as written.
func validateContent(title, text string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("text must be %d characters or less", MaxTextLength))
	}
	return title, nil
}
