package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// InTx runs fn inside one transaction.
//
// THE TRANSACTION PATTERN:
//  1. BeginTx: with _txlock=immediate this already holds the write lock
//  2. defer Rollback: a no-op after a successful Commit (returns sql.ErrTxDone),
//     and the cleanup path when fn fails or panics
//  3. Commit only if fn succeeded
//
// Either every statement fn ran becomes visible or none does.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", "transaction", "", err)
	}
	defer func() {
		// The error from fn (or Commit) is what the caller needs; a failed
		// rollback leaves nothing committed either way.
		_ = tx.Rollback()
	}()

	if err := fn(&ledgerTx{tx: tx, now: db.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", "transaction", "", err)
	}
	return nil
}

// ledgerTx implements repository.LedgerTx on a *sql.Tx.
type ledgerTx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ repository.LedgerTx = (*ledgerTx)(nil)

func voteKey(userID, postID string) string {
	return userID + ":" + postID
}

func (t *ledgerTx) PostCreator(ctx context.Context, postID string) (string, error) {
	var creatorID string
	err := t.tx.QueryRowContext(ctx,
		`SELECT creator_id FROM posts WHERE id = ?`, postID,
	).Scan(&creatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("post", postID)
		}
		return "", classify("reading post", "post", postID, err)
	}
	return creatorID, nil
}

func (t *ledgerTx) GetVote(ctx context.Context, userID, postID string) (*model.VoteRecord, error) {
	var (
		v                    model.VoteRecord
		createdAt, updatedAt int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT user_id, post_id, value, created_at, updated_at
		 FROM votes WHERE user_id = ? AND post_id = ?`,
		userID, postID,
	).Scan(&v.UserID, &v.PostID, &v.Value, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Absence is a valid ledger state ("no vote cast"), not an error.
			return nil, nil
		}
		return nil, classify("reading vote", "vote", voteKey(userID, postID), err)
	}
	v.CreatedAt = fromUnix(createdAt)
	v.UpdatedAt = fromUnix(updatedAt)
	return &v, nil
}

// InsertVote adds a first vote. If a row for the same (user, post) already
// exists, a concurrent cast got there first: that is a Conflict, and the
// caller retries from a fresh read.
func (t *ledgerTx) InsertVote(ctx context.Context, vote *model.VoteRecord) error {
	now := t.now().UTC()
	vote.CreatedAt = now
	vote.UpdatedAt = now

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO votes (user_id, post_id, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		vote.UserID, vote.PostID, vote.Value, toUnix(now), toUnix(now),
	)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return apperror.ConflictFrom("vote", voteKey(vote.UserID, vote.PostID), err)
		}
		return classify("inserting vote", "vote", voteKey(vote.UserID, vote.PostID), err)
	}
	return nil
}

func (t *ledgerTx) UpdateVoteValue(ctx context.Context, userID, postID string, value int) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE votes SET value = ?, updated_at = ?
		 WHERE user_id = ? AND post_id = ?`,
		value, toUnix(t.now()), userID, postID,
	)
	if err != nil {
		return classify("updating vote", "vote", voteKey(userID, postID), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("checking rows affected", err)
	}
	if n == 0 {
		// The record read earlier in this transaction is gone.
		return apperror.Conflict("vote", voteKey(userID, postID))
	}
	return nil
}

// AddToScore increments the score in place. The new value is computed by
// the database from the current row, never from a score read earlier, so
// two committed votes can never overwrite each other's delta.
func (t *ledgerTx) AddToScore(ctx context.Context, postID string, delta int) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE posts SET score = score + ? WHERE id = ?`,
		delta, postID,
	)
	if err != nil {
		return classify("updating score", "post", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("post", postID)
	}
	return nil
}

func (t *ledgerTx) DeleteVotesForPost(ctx context.Context, postID string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM votes WHERE post_id = ?`, postID)
	if err != nil {
		return 0, classify("deleting votes", "post", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperror.Storage("checking rows affected", err)
	}
	return n, nil
}

func (t *ledgerTx) DeletePost(ctx context.Context, postID string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID)
	if err != nil {
		return classify("deleting post", "post", postID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("post", postID)
	}
	return nil
}

// VotesByUser loads the user's votes on a page of posts in one query.
//
// The IN list is built from "?" placeholders only; the ids themselves are
// bound as arguments.
func (db *DB) VotesByUser(ctx context.Context, userID string, postIDs []string) (map[string]model.VoteRecord, error) {
	votes := make(map[string]model.VoteRecord, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return votes, nil
	}

	args := make([]any, 0, len(postIDs)+1)
	args = append(args, userID)
	for _, id := range postIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, post_id, value, created_at, updated_at
		 FROM votes
		 WHERE user_id = ? AND post_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, classify("listing votes", "vote", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v                    model.VoteRecord
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&v.UserID, &v.PostID, &v.Value, &createdAt, &updatedAt); err != nil {
			return nil, apperror.Storage("scanning vote row", err)
		}
		v.CreatedAt = fromUnix(createdAt)
		v.UpdatedAt = fromUnix(updatedAt)
		votes[v.PostID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating votes", "vote", userID, err)
	}

	return votes, nil
}
