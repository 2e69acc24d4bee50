// Package feed holds the pieces of keyset pagination that do not touch the
// store: page-size clamping and the opaque cursor codec.
//
// A cursor encodes the FeedKey (createdAt, id) of the last post on a page.
// It is signed with HMAC-SHA256 so clients cannot forge positions, then
// base64url-encoded so it can travel in a query string:
//
//	base64url("<createdAt unix nanos>::<id>::<hex hmac>")
package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/postboard/internal/model"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	delimiter = "::"
)

// ErrInvalidCursor is returned for cursors that are malformed or whose
// signature does not verify.
var ErrInvalidCursor = errors.New("feed: invalid cursor")

// ClampLimit bounds a requested page size to [1, MaxLimit].
// Non-positive requests get DefaultLimit.
func ClampLimit(limit int) int {
	if limit < 1 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// CursorCodec signs and verifies cursors with a shared secret.
type CursorCodec struct {
	secret []byte
}

func NewCursorCodec(secret string) *CursorCodec {
	return &CursorCodec{secret: []byte(secret)}
}

// Encode returns the opaque cursor for key.
func (c *CursorCodec) Encode(key model.FeedKey) string {
	payload := strconv.FormatInt(key.CreatedAt.UnixNano(), 10) + delimiter + key.ID
	signed := payload + delimiter + c.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(signed))
}

// Decode verifies cursor and returns the key it encodes.
func (c *CursorCodec) Decode(cursor string) (model.FeedKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return model.FeedKey{}, ErrInvalidCursor
	}

	// ids never contain "::", so the split is unambiguous
	parts := strings.Split(string(raw), delimiter)
	if len(parts) != 3 {
		return model.FeedKey{}, ErrInvalidCursor
	}

	payload := parts[0] + delimiter + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(c.sign(payload))) {
		return model.FeedKey{}, ErrInvalidCursor
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || parts[1] == "" {
		return model.FeedKey{}, ErrInvalidCursor
	}

	return model.FeedKey{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        parts[1],
	}, nil
}

func (c *CursorCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
