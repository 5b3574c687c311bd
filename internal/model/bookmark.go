package model

import "time"

// Bookmark is a private, per-user saved reference to a Post or a Retweet.
// A user holds at most one bookmark per target.
type Bookmark struct {
	ID        int64
	UserID    int64
	Ref       Ref
	CreatedAt time.Time
}
