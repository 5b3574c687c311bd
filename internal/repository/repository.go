// Package repository declares the storage contracts the services depend on.
//
// Services never see SQL. They receive a Store, run reads through Repos()
// and group every multi-table write inside InTx, so a post, its timeline
// entry and its bookmarks always change together or not at all.
package repository

import (
	"context"

	"github.com/sakif/chirp/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// TimelineFilter narrows a timeline page. AuthorID == 0 means every author.
type TimelineFilter struct {
	AuthorID int64
}

// UserRepository is the identity store.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Upsert(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id int64) error
}

// PostRepository holds original tweets.
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	Delete(ctx context.Context, id int64) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
	ImageRefsByUser(ctx context.Context, userID int64) ([]string, error)
}

// RetweetRepository holds retweets.
type RetweetRepository interface {
	Create(ctx context.Context, retweet *model.Retweet) error
	GetByID(ctx context.Context, id int64) (*model.Retweet, error)
	Delete(ctx context.Context, id int64) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// TimelineRepository is the append-only timeline index.
type TimelineRepository interface {
	Append(ctx context.Context, ref model.Ref) (*model.TimelineEntry, error)
	List(ctx context.Context, filter TimelineFilter, opts ListOptions) ([]model.TimelineEntry, error)
	Count(ctx context.Context, filter TimelineFilter) (int, error)
	// DeleteByRef removes the entry pointing at ref and reports how many rows went.
	DeleteByRef(ctx context.Context, ref model.Ref) (int64, error)
	// DeleteByAuthor removes entries for every post and retweet written by userID.
	DeleteByAuthor(ctx context.Context, userID int64) (int64, error)
}

// BookmarkRepository is the per-user bookmark index.
type BookmarkRepository interface {
	// Save inserts a bookmark unless the user already holds one for ref.
	// created is false when the existing bookmark was returned instead.
	Save(ctx context.Context, userID int64, ref model.Ref) (bookmark *model.Bookmark, created bool, err error)
	// Remove deletes the user's bookmark on ref, if any.
	Remove(ctx context.Context, userID int64, ref model.Ref) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Bookmark, error)
	// DeleteByRef removes every user's bookmark on ref.
	DeleteByRef(ctx context.Context, ref model.Ref) (int64, error)
	// DeleteByOwner removes the bookmarks userID made.
	DeleteByOwner(ctx context.Context, userID int64) (int64, error)
	// DeleteByAuthor removes every bookmark on a post or retweet written by userID.
	DeleteByAuthor(ctx context.Context, userID int64) (int64, error)
}

// Repos bundles one handle per table. Inside InTx every field is bound to the
// same transaction.
type Repos struct {
	Users     UserRepository
	Posts     PostRepository
	Retweets  RetweetRepository
	Timeline  TimelineRepository
	Bookmarks BookmarkRepository
}

// Store is what services depend on.
type Store interface {
	// Repos returns handles that run each call on its own connection.
	Repos() Repos
	// InTx runs fn inside one transaction. fn's error (or panic) rolls
	// everything back; a nil return commits.
	InTx(ctx context.Context, fn func(Repos) error) error
}
