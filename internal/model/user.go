package model

import "time"

// User is an account that can create posts and cast votes.
//
// Authentication lives outside this service; the core only uses the ID as an
// identity reference (Post.CreatorID, VoteRecord.UserID). PasswordHash is
// stored as given and never read back by this code: it is an opaque value
// owned by whatever issues credentials.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
