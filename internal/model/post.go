// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. They play the part of classes
// in other languages, but without inheritance.
package model

import "time"

// Post is a feed item with its aggregate vote score.
//
// Score always equals the sum of the VoteRecord values stored for the post.
// It is only ever changed by adding a delta inside the transaction that
// writes the vote (see service.ScoreAggregator), never assigned directly.
//
// CreatorName, TextSnippet, TextHTML and VoteStatus are not columns of the
// posts table:
//   - CreatorName is joined from users when the post is read
//   - TextSnippet and TextHTML are rendered from Text on the way out
//   - VoteStatus is the viewer's own vote (nil when anonymous or no vote)
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	TextSnippet string    `json:"textSnippet"`
	TextHTML    string    `json:"textHtml"`
	Score       int       `json:"score"`
	CreatorID   string    `json:"creatorId"`
	CreatorName string    `json:"creatorName,omitempty"`
	VoteStatus  *int      `json:"voteStatus"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FeedKey is the composite ordering key of the feed: newest first, ties
// broken by the higher id. Two distinct posts never share a FeedKey.
type FeedKey struct {
	CreatedAt time.Time
	ID        string
}

// Key returns the post's position in the feed ordering.
func (p *Post) Key() FeedKey {
	return FeedKey{CreatedAt: p.CreatedAt, ID: p.ID}
}

// Before reports whether k sorts strictly after other in the feed,
// i.e. k is older (or equally old with a lower id).
func (k FeedKey) Before(other FeedKey) bool {
	if k.CreatedAt.Equal(other.CreatedAt) {
		return k.ID < other.ID
	}
	return k.CreatedAt.Before(other.CreatedAt)
}

// Page is one slice of the feed.
//
// NextCursor is empty when HasMore is false; otherwise it encodes the key of
// the last post in Posts and is passed back to fetch the following page.
type Page struct {
	Posts      []Post `json:"posts"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}
