package model

import "time"

// Vote values. A VoteRecord never holds 0: "no vote" is the absence of a row.
const (
	Upvote   = 1
	Downvote = -1
)

// VoteRecord is one user's vote on one post. (UserID, PostID) is unique.
type VoteRecord struct {
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidVoteValue reports whether v may be stored in a VoteRecord.
func ValidVoteValue(v int) bool {
	return v == Upvote || v == Downvote
}

// VoteStatus derives the viewer-facing vote status of a post from the
// viewer's record: nil when the viewer has not voted.
func VoteStatus(rec *VoteRecord) *int {
	if rec == nil {
		return nil
	}
	v := rec.Value
	return &v
}
