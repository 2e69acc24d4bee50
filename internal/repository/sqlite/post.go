package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/xid"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB stops implementing repository.Store, this line fails to compile.
var _ repository.Store = (*DB)(nil)

const postColumns = `p.id, p.title, p.text, p.score, p.creator_id, COALESCE(u.username, ''), p.created_at, p.updated_at`

// KEYSET PAGINATION:
// Instead of OFFSET (which rescans skipped rows and shifts when rows are
// inserted), each page starts strictly after the (created_at, id) key of the
// previous page's last row. The id tie-break gives a total order, so posts
// sharing a timestamp are never skipped or repeated at a page boundary.
//
// Both queries are constants: the cursor values are always bound with ?,
// never formatted into the SQL text.
const (
	listFirstPageQuery = `
		SELECT ` + postColumns + `
		FROM posts p
		LEFT JOIN users u ON u.id = p.creator_id
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`

	listAfterKeyQuery = `
		SELECT ` + postColumns + `
		FROM posts p
		LEFT JOIN users u ON u.id = p.creator_id
		WHERE p.created_at < ? OR (p.created_at = ? AND p.id < ?)
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (model.Post, error) {
	var (
		p                    model.Post
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Text, &p.Score,
		&p.CreatorID, &p.CreatorName,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.Post{}, err
	}
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return p, nil
}

// Create inserts a new post with score 0. The ID and timestamps are
// generated here and written back into post.
//
// ID GENERATION WITH xid:
// xid ids start with a timestamp and end with a per-process counter, so
// they are unique and sort in creation order. That makes the id a sound
// tie-breaker for posts created within the same clock tick.
func (db *DB) Create(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	now := db.now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	post.Score = 0

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (id, title, text, score, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)`,
		post.ID,
		post.Title,
		post.Text,
		post.CreatorID,
		toUnix(post.CreatedAt),
		toUnix(post.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return apperror.NotFound("user", post.CreatorID)
		}
		return classify("creating post", "post", post.ID, err)
	}

	return nil
}

// GetByID retrieves a single post by its ID, including the creator's username.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Post, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts p
		 LEFT JOIN users u ON u.id = p.creator_id
		 WHERE p.id = ?`,
		id,
	)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("post", id)
		}
		return nil, classify("getting post", "post", id, err)
	}

	return &post, nil
}

// List returns up to q.Limit posts in feed order, starting after q.After.
func (db *DB) List(ctx context.Context, q repository.FeedQuery) ([]model.Post, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.After == nil {
		rows, err = db.conn.QueryContext(ctx, listFirstPageQuery, q.Limit)
	} else {
		at := toUnix(q.After.CreatedAt)
		rows, err = db.conn.QueryContext(ctx, listAfterKeyQuery, at, at, q.After.ID, q.Limit)
	}
	if err != nil {
		return nil, classify("listing posts", "post", "", err)
	}
	// CRITICAL: always close rows when done! An unclosed *sql.Rows keeps its
	// pooled connection checked out.
	defer rows.Close()

	posts := make([]model.Post, 0, q.Limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, apperror.Storage("scanning post row", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating posts", "post", "", err)
	}

	return posts, nil
}

// Update writes a new title and text. CreatedAt, score and creator are
// never touched here.
func (db *DB) Update(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = db.now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE posts
		 SET title = ?, text = ?, updated_at = ?
		 WHERE id = ?`,
		post.Title,
		post.Text,
		toUnix(post.UpdatedAt),
		post.ID,
	)
	if err != nil {
		return classify("updating post", "post", post.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperror.Storage("checking rows affected", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("post", post.ID)
	}

	return nil
}
