package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

// BookmarkService manages a user's saved tweets and retweets.
type BookmarkService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewBookmarkService(store repository.Store, logger *slog.Logger) *BookmarkService {
	return &BookmarkService{store: store, logger: logger}
}

// BookmarkList is a user's resolved bookmarks, newest first. Empty lets the
// client show a placeholder without counting.
type BookmarkList struct {
	Items []model.FeedItem `json:"items"`
	Empty bool             `json:"empty"`
}

// Save bookmarks a tweet. Saving the same tweet again returns the existing
// bookmark with created=false.
func (s *BookmarkService) Save(ctx context.Context, req model.Requester, postID int64) (*model.Bookmark, bool, error) {
	return s.save(ctx, req, model.NewPostRef(postID))
}

// SaveRetweet bookmarks a retweet.
func (s *BookmarkService) SaveRetweet(ctx context.Context, req model.Requester, retweetID int64) (*model.Bookmark, bool, error) {
	return s.save(ctx, req, model.NewRetweetRef(retweetID))
}

func (s *BookmarkService) save(ctx context.Context, req model.Requester, ref model.Ref) (*model.Bookmark, bool, error) {
	if err := requireUser(req); err != nil {
		return nil, false, err
	}

	var (
		bookmark *model.Bookmark
		created  bool
	)
	// The target lookup and the insert share a transaction, so a concurrent
	// delete can't slip in between them.
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		var err error
		if ref.PostID != nil {
			_, err = r.Posts.GetByID(ctx, *ref.PostID)
		} else {
			_, err = r.Retweets.GetByID(ctx, *ref.RetweetID)
		}
		if err != nil {
			return err
		}

		bookmark, created, err = r.Bookmarks.Save(ctx, req.UserID, ref)
		return err
	})
	if err != nil {
		return nil, false, logFailure(s.logger, "saving bookmark", err, slog.Int64("userID", req.UserID))
	}

	if created {
		s.logger.Info("bookmark saved",
			slog.Int64("bookmarkID", bookmark.ID),
			slog.String("kind", string(ref.Kind())),
			slog.Int64("userID", req.UserID),
		)
	}
	return bookmark, created, nil
}

// Unsave removes the user's bookmark on a tweet. Removing a bookmark that
// doesn't exist is not an error.
func (s *BookmarkService) Unsave(ctx context.Context, req model.Requester, postID int64) error {
	return s.unsave(ctx, req, model.NewPostRef(postID))
}

// UnsaveRetweet removes the user's bookmark on a retweet.
func (s *BookmarkService) UnsaveRetweet(ctx context.Context, req model.Requester, retweetID int64) error {
	return s.unsave(ctx, req, model.NewRetweetRef(retweetID))
}

func (s *BookmarkService) unsave(ctx context.Context, req model.Requester, ref model.Ref) error {
	if err := requireUser(req); err != nil {
		return err
	}
	n, err := s.store.Repos().Bookmarks.Remove(ctx, req.UserID, ref)
	if err != nil {
		return logFailure(s.logger, "removing bookmark", err, slog.Int64("userID", req.UserID))
	}
	if n > 0 {
		s.logger.Info("bookmark removed", slog.String("kind", string(ref.Kind())), slog.Int64("userID", req.UserID))
	}
	return nil
}

// List returns the user's bookmarks resolved to their tweets and retweets.
func (s *BookmarkService) List(ctx context.Context, req model.Requester) (*BookmarkList, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	bookmarks, err := repos.Bookmarks.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, logFailure(s.logger, "listing bookmarks", err, slog.Int64("userID", req.UserID))
	}

	items := make([]model.FeedItem, 0, len(bookmarks))
	for _, bm := range bookmarks {
		item, err := resolveRef(ctx, repos, bm.ID, bm.Ref)
		if err != nil {
			if errors.Is(err, apperror.ErrOrphaned) {
				s.logger.Warn("skipping orphaned bookmark", slog.Int64("bookmarkID", bm.ID))
				continue
			}
			return nil, logFailure(s.logger, "resolving bookmarks", err)
		}
		items = append(items, *item)
	}

	return &BookmarkList{Items: items, Empty: len(items) == 0}, nil
}
