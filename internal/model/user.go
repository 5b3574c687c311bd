// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Default image files assigned to a freshly registered account.
// They live in the media directory like any uploaded image but are never removed.
const (
	DefaultProfileImage    = "default.png"
	DefaultBackgroundImage = "default_bg.png"
)

// User represents a registered user account.
//
// WHY int64 IDs?
// Timeline ordering is "higher ID = more recent", so every table uses
// SQLite's INTEGER PRIMARY KEY AUTOINCREMENT. Users follow the same scheme so
// that IDs in URLs (/api/users/42) look the same everywhere.
//
// PasswordHash is never serialised (json:"-"). GitHub-only accounts have an
// empty hash and can't log in with a password.
type User struct {
	ID           int64     `json:"id"           db:"id"`
	Username     string    `json:"username"     db:"username"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	GitHubID     *int64    `json:"githubId,omitempty" db:"github_id"` // nil for password accounts
	Bio          string    `json:"bio"          db:"bio"`
	Birthday     string    `json:"birthday"     db:"birthday"`   // free-form date, e.g. "1999-04-12"
	ImageFile    string    `json:"imageFile"    db:"image_file"` // media ref of the profile picture
	BgFile       string    `json:"bgFile"       db:"bg_file"`    // media ref of the profile banner
	Joined       string    `json:"joined"       db:"joined"`     // "January 2006"
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}

// Summary returns the public author card embedded in posts and retweets.
func (u *User) Summary() Author {
	return Author{ID: u.ID, Username: u.Username, ImageFile: u.ImageFile}
}

// Author is the slice of a User that is rendered next to a post or retweet.
type Author struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	ImageFile string `json:"imageFile"`
}
