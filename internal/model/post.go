package model

import "time"

// StampLayout renders creation times the way the timeline shows them:
// day, full month name, two-digit year and a 12-hour clock, e.g. "07 March '24 09:15 PM".
const StampLayout = "02 January '06 03:04 PM"

// JoinedLayout renders the month an account was created, e.g. "March 2024".
const JoinedLayout = "January 2006"

// Post is an original tweet. Posts are immutable once created; the only
// state change is deletion.
type Post struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Body      string    `json:"body"`
	ImageRef  *string   `json:"imageRef,omitempty"` // nil when the tweet has no picture
	Stamp     string    `json:"stamp"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

// Retweet is a user-authored reference to an existing Post.
//
// PostID is deliberately not a foreign key: a retweet may outlive the post it
// points at. Readers resolve the original separately and treat a missing one
// as "no longer available" rather than an error.
type Retweet struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"postId"`
	UserID    int64     `json:"userId"`
	Body      string    `json:"body"`
	Stamp     string    `json:"stamp"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}
