package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sakif/postboard/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only during the test.
// newTestDB is a "test helper"; t.Helper() makes failures point at the caller.
func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := New(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestDB uses a real file so several pooled connections (and so
// several concurrent transactions) can share it.
func newFileTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("failed to create file test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stepClock returns start, start+step, start+2*step, ... on successive calls.
// A zero step gives every row the same timestamp.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{next: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Email: username + "@example.com", PasswordHash: "opaque"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestPost(t *testing.T, db *DB, creatorID, title string) *model.Post {
	t.Helper()
	post := &model.Post{Title: title, Text: "body of " + title, CreatorID: creatorID}
	if err := db.Create(context.Background(), post); err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}
	return post
}

func createTestPosts(t *testing.T, db *DB, creatorID string, n int) []*model.Post {
	t.Helper()
	posts := make([]*model.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, createTestPost(t, db, creatorID, fmt.Sprintf("post %d", i)))
	}
	return posts
}

// voteSum recomputes the score from the ledger, for invariant checks only.
func voteSum(t *testing.T, db *DB, postID string) int {
	t.Helper()
	var sum int
	err := db.conn.QueryRow(`SELECT COALESCE(SUM(value), 0) FROM votes WHERE post_id = ?`, postID).Scan(&sum)
	if err != nil {
		t.Fatalf("summing votes: %v", err)
	}
	return sum
}

func voteCount(t *testing.T, db *DB, postID string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM votes WHERE post_id = ?`, postID).Scan(&n); err != nil {
		t.Fatalf("counting votes: %v", err)
	}
	return n
}
