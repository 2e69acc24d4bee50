// Package repository declares the storage interfaces the services depend on.
//
// Reads and content writes that need no coordination are plain methods on
// PostRepository and UserRepository. Work that must be atomic (the vote
// ledger write plus the score increment, or the vote cascade plus the post
// delete) runs through Transactor.InTx against a LedgerTx.
package repository

import (
	"context"

	"github.com/sakif/postboard/internal/model"
)

// FeedQuery selects one keyset page of the feed.
//
// Limit is the number of rows to fetch. The paginator asks for one more row
// than it returns to detect whether another page exists.
// After, when set, restricts the result to rows strictly after that key in
// (createdAt DESC, id DESC) order.
type FeedQuery struct {
	Limit int
	After *model.FeedKey
}

type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, q FeedQuery) ([]model.Post, error)
	Update(ctx context.Context, post *model.Post) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type VoteRepository interface {
	// VotesByUser returns the user's votes on the given posts, keyed by post ID.
	// Posts the user has not voted on are absent from the map.
	VotesByUser(ctx context.Context, userID string, postIDs []string) (map[string]model.VoteRecord, error)
}

// LedgerTx is the set of operations available inside one unit of work.
// All methods observe and modify the same transaction.
type LedgerTx interface {
	// PostCreator returns the creator of the post, or apperror.ErrNotFound.
	PostCreator(ctx context.Context, postID string) (string, error)
	// GetVote returns the user's vote on the post, or (nil, nil) when absent.
	GetVote(ctx context.Context, userID, postID string) (*model.VoteRecord, error)
	InsertVote(ctx context.Context, vote *model.VoteRecord) error
	UpdateVoteValue(ctx context.Context, userID, postID string, value int) error
	// AddToScore applies score = score + delta in place.
	AddToScore(ctx context.Context, postID string, delta int) error
	DeleteVotesForPost(ctx context.Context, postID string) (int64, error)
	DeletePost(ctx context.Context, postID string) error
}

// Transactor runs fn inside a transaction. If fn returns an error the
// transaction is rolled back before InTx returns it; otherwise it commits.
// Contention on commit or on any statement is reported as apperror.ErrConflict.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// Store is everything the services need from persistence.
type Store interface {
	PostRepository
	UserRepository
	VoteRepository
	Transactor
	Ping(ctx context.Context) error
}
