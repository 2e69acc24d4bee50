package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/feed"
	"github.com/sakif/postboard/internal/metrics"
	"github.com/sakif/postboard/internal/model"
	"github.com/sakif/postboard/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory repository.Store. InTx holds a single lock for
// the whole unit of work and restores a snapshot when fn fails, so it has
// the same all-or-nothing behaviour as the SQLite store.
//
// conflicts makes the next N InTx calls fail with apperror.ErrConflict
// before running fn, which is how the retry path is exercised.

type voteKey struct{ user, post string }

type fakeStore struct {
	mu     sync.Mutex
	posts  map[string]model.Post
	users  map[string]model.User
	votes  map[voteKey]model.VoteRecord
	nextID int
	clock  time.Time

	conflicts int
	inTxCalls int
	listErr   error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts: make(map[string]model.Post),
		users: make(map[string]model.User),
		votes: make(map[voteKey]model.VoteRecord),
		clock: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Create(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[post.CreatorID]; !ok {
		return apperror.NotFound("user", post.CreatorID)
	}
	f.nextID++
	post.ID = fmt.Sprintf("post-%03d", f.nextID)
	post.CreatedAt = f.tick()
	post.UpdatedAt = post.CreatedAt
	post.Score = 0
	f.posts[post.ID] = *post
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", id)
	}
	p.CreatorName = f.users[p.CreatorID].Username
	return &p, nil
}

func (f *fakeStore) List(_ context.Context, q repository.FeedQuery) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}

	all := make([]model.Post, 0, len(f.posts))
	for _, p := range f.posts {
		if q.After != nil && !p.Key().Before(*q.After) {
			continue
		}
		p.CreatorName = f.users[p.CreatorID].Username
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[j].Key().Before(all[i].Key()) })
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (f *fakeStore) Update(_ context.Context, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.posts[post.ID]
	if !ok {
		return apperror.NotFound("post", post.ID)
	}
	stored.Title = post.Title
	stored.Text = post.Text
	stored.UpdatedAt = f.tick()
	post.UpdatedAt = stored.UpdatedAt
	f.posts[post.ID] = stored
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return apperror.Conflict("user", user.Username)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%03d", f.nextID)
	user.CreatedAt = f.tick()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (f *fakeStore) VotesByUser(_ context.Context, userID string, postIDs []string) (map[string]model.VoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.VoteRecord)
	for _, id := range postIDs {
		if v, ok := f.votes[voteKey{userID, id}]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx repository.LedgerTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTxCalls++

	if f.conflicts > 0 {
		f.conflicts--
		return apperror.Conflict("transaction", "")
	}

	posts := make(map[string]model.Post, len(f.posts))
	for k, v := range f.posts {
		posts[k] = v
	}
	votes := make(map[voteKey]model.VoteRecord, len(f.votes))
	for k, v := range f.votes {
		votes[k] = v
	}

	if err := fn(&fakeTx{f: f}); err != nil {
		f.posts, f.votes = posts, votes
		return err
	}
	return nil
}

// fakeTx runs with fakeStore.mu already held.
type fakeTx struct{ f *fakeStore }

func (t *fakeTx) PostCreator(_ context.Context, postID string) (string, error) {
	p, ok := t.f.posts[postID]
	if !ok {
		return "", apperror.NotFound("post", postID)
	}
	return p.CreatorID, nil
}

func (t *fakeTx) GetVote(_ context.Context, userID, postID string) (*model.VoteRecord, error) {
	v, ok := t.f.votes[voteKey{userID, postID}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *fakeTx) InsertVote(_ context.Context, vote *model.VoteRecord) error {
	k := voteKey{vote.UserID, vote.PostID}
	if _, ok := t.f.votes[k]; ok {
		return apperror.Conflict("vote", k.user+":"+k.post)
	}
	vote.CreatedAt = t.f.tick()
	vote.UpdatedAt = vote.CreatedAt
	t.f.votes[k] = *vote
	return nil
}

func (t *fakeTx) UpdateVoteValue(_ context.Context, userID, postID string, value int) error {
	k := voteKey{userID, postID}
	v, ok := t.f.votes[k]
	if !ok {
		return apperror.Conflict("vote", userID+":"+postID)
	}
	v.Value = value
	v.UpdatedAt = t.f.tick()
	t.f.votes[k] = v
	return nil
}

func (t *fakeTx) AddToScore(_ context.Context, postID string, delta int) error {
	p, ok := t.f.posts[postID]
	if !ok {
		return apperror.NotFound("post", postID)
	}
	p.Score += delta
	t.f.posts[postID] = p
	return nil
}

func (t *fakeTx) DeleteVotesForPost(_ context.Context, postID string) (int64, error) {
	var n int64
	for k := range t.f.votes {
		if k.post == postID {
			delete(t.f.votes, k)
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) DeletePost(_ context.Context, postID string) error {
	if _, ok := t.f.posts[postID]; !ok {
		return apperror.NotFound("post", postID)
	}
	delete(t.f.posts, postID)
	return nil
}

// voteSum recomputes a post's score from the fake ledger.
func (f *fakeStore) voteSum(postID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for k, v := range f.votes {
		if k.post == postID {
			sum += v.Value
		}
	}
	return sum
}

func (f *fakeStore) voteCount(postID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.votes {
		if k.post == postID {
			n++
		}
	}
	return n
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServices struct {
	store   *fakeStore
	metrics *metrics.Registry
	votes   *VoteService
	posts   *PostService
	users   *UserService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := newFakeStore()
	return wireServices(t, store)
}

// wireServices builds all services over any Store, so the same helpers
// serve the fake-backed and SQLite-backed tests.
func wireServices(t *testing.T, store repository.Store) *testServices {
	t.Helper()
	m := metrics.New()
	logger := discardLogger()
	ts := &testServices{
		metrics: m,
		votes:   NewVoteService(NewScoreAggregator(store), m, logger),
		posts:   NewPostService(store, feed.NewCursorCodec("test-cursor-secret"), m, logger),
		users:   NewUserService(store, logger),
	}
	if fs, ok := store.(*fakeStore); ok {
		ts.store = fs
	}
	return ts
}

func (ts *testServices) mustUser(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := ts.users.Create(context.Background(), username, username+"@example.com")
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

func (ts *testServices) mustPost(t *testing.T, creatorID, title string) *model.Post {
	t.Helper()
	p, err := ts.posts.CreatePost(context.Background(), creatorID, title, "text of "+title)
	if err != nil {
		t.Fatalf("creating post %s: %v", title, err)
	}
	return p
}

func (ts *testServices) score(t *testing.T, postID string) int {
	t.Helper()
	p, err := ts.posts.GetPost(context.Background(), "", postID)
	if err != nil {
		t.Fatalf("reading post %s: %v", postID, err)
	}
	return p.Score
}
