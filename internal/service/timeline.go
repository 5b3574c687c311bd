// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, coordinates writes
//	Repository (Data layer)  → reads/writes to the database
//
// THE CONSISTENCY RULE:
// A tweet is stored in three places: the posts table, one timeline entry and
// any number of bookmarks. If one of those changes without the others, the
// timeline ends up pointing at nothing. So every write in this package that
// touches more than one table runs inside repository.Store.InTx, and uses
// ONLY the Repos handed to the callback. If anything fails, the whole group
// rolls back.
//
// Reads are different: they run outside a transaction and tolerate an entry
// whose target was deleted a moment ago. Such an entry is an "orphan"; it is
// skipped and logged, never shown and never turned into a 500.
//
// DEPENDENCY INJECTION:
// Every service takes a repository.Store (interface), NOT a *sqlite.DB.
// Tests pass an in-memory SQLite store, or wrap it to inject failures.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/media"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

// Validation constants.
const (
	MaxTweetLength  = 280
	DefaultPageSize = 5
)

// ImageStore is the part of media.Store the services use.
type ImageStore interface {
	Save(kind media.Kind, filename string, r io.Reader) (string, error)
	RemoveAll(refs ...string)
}

// Upload is an image file sent along with a form.
type Upload struct {
	Filename string
	Body     io.Reader
}

// TimelineService coordinates tweets and retweets with the timeline index,
// and pages the timeline for reading.
type TimelineService struct {
	store    repository.Store
	images   ImageStore
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// NewTimelineService creates a TimelineService. pageSize <= 0 falls back to
// DefaultPageSize.
func NewTimelineService(store repository.Store, images ImageStore, pageSize int, logger *slog.Logger) *TimelineService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TimelineService{
		store:    store,
		images:   images,
		logger:   logger,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// PageSize is the number of entries on one timeline page.
func (s *TimelineService) PageSize() int { return s.pageSize }

// PostTweet stores a new tweet and lists it on the timeline.
//
// The image (if any) is written to disk first, because files can't take part
// in a database transaction. If the transaction then fails, the file is
// removed again so no stray upload is left behind.
func (s *TimelineService) PostTweet(ctx context.Context, req model.Requester, text string, image *Upload) (*model.Post, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}
	text, err := validateTweet(text, true)
	if err != nil {
		return nil, err
	}

	var imageRef *string
	if image != nil {
		ref, err := s.images.Save(media.KindTweet, image.Filename, image.Body)
		if err != nil {
			return nil, err
		}
		imageRef = &ref
	}

	now := s.now()
	post := &model.Post{
		UserID:    req.UserID,
		Body:      text,
		ImageRef:  imageRef,
		Stamp:     now.Format(model.StampLayout),
		CreatedAt: now,
	}

	err = s.store.InTx(ctx, func(r repository.Repos) error {
		author, err := r.Users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if err := r.Posts.Create(ctx, post); err != nil {
			return err
		}
		if _, err := r.Timeline.Append(ctx, model.NewPostRef(post.ID)); err != nil {
			return err
		}
		post.Author = author.Summary()
		return nil
	})
	if err != nil {
		if imageRef != nil {
			s.images.RemoveAll(*imageRef)
		}
		return nil, s.failed("posting tweet", err, slog.Int64("userID", req.UserID))
	}

	s.logger.Info("tweet posted",
		slog.Int64("postID", post.ID),
		slog.Int64("userID", req.UserID),
	)
	return post, nil
}

// PostRetweet stores a retweet of postID and lists it on the timeline.
// The retweet's own text is optional.
func (s *TimelineService) PostRetweet(ctx context.Context, req model.Requester, postID int64, text string) (*model.Retweet, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}
	text, err := validateTweet(text, false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	retweet := &model.Retweet{
		PostID:    postID,
		UserID:    req.UserID,
		Body:      text,
		Stamp:     now.Format(model.StampLayout),
		CreatedAt: now,
	}

	err = s.store.InTx(ctx, func(r repository.Repos) error {
		if _, err := r.Posts.GetByID(ctx, postID); err != nil {
			return err
		}
		author, err := r.Users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if err := r.Retweets.Create(ctx, retweet); err != nil {
			return err
		}
		if _, err := r.Timeline.Append(ctx, model.NewRetweetRef(retweet.ID)); err != nil {
			return err
		}
		retweet.Author = author.Summary()
		return nil
	})
	if err != nil {
		return nil, s.failed("posting retweet", err, slog.Int64("postID", postID))
	}

	s.logger.Info("retweet posted",
		slog.Int64("retweetID", retweet.ID),
		slog.Int64("postID", postID),
		slog.Int64("userID", req.UserID),
	)
	return retweet, nil
}

// RemoveTweet deletes a tweet together with its bookmarks and timeline entry.
//
// ORDER MATTERS: bookmarks and the timeline entry reference the post through
// foreign keys, so they go first. The ownership check runs before anything is
// deleted. Retweets of the post are left alone; they show without an original.
func (s *TimelineService) RemoveTweet(ctx context.Context, req model.Requester, postID int64) error {
	if err := requireUser(req); err != nil {
		return err
	}

	var imageRef *string
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		post, err := r.Posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post.UserID != req.UserID {
			return apperror.Forbidden("you can only delete your own tweets")
		}

		ref := model.NewPostRef(postID)
		if _, err := r.Bookmarks.DeleteByRef(ctx, ref); err != nil {
			return err
		}
		if _, err := r.Timeline.DeleteByRef(ctx, ref); err != nil {
			return err
		}
		if err := r.Posts.Delete(ctx, postID); err != nil {
			return err
		}
		imageRef = post.ImageRef
		return nil
	})
	if err != nil {
		return s.failed("removing tweet", err, slog.Int64("postID", postID))
	}

	if imageRef != nil {
		s.images.RemoveAll(*imageRef)
	}
	s.logger.Info("tweet removed", slog.Int64("postID", postID), slog.Int64("userID", req.UserID))
	return nil
}

// RemoveRetweet is RemoveTweet for retweets: bookmarks on the retweet, its
// timeline entry, then the retweet itself.
func (s *TimelineService) RemoveRetweet(ctx context.Context, req model.Requester, retweetID int64) error {
	if err := requireUser(req); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(r repository.Repos) error {
		retweet, err := r.Retweets.GetByID(ctx, retweetID)
		if err != nil {
			return err
		}
		if retweet.UserID != req.UserID {
			return apperror.Forbidden("you can only delete your own retweets")
		}

		ref := model.NewRetweetRef(retweetID)
		if _, err := r.Bookmarks.DeleteByRef(ctx, ref); err != nil {
			return err
		}
		if _, err := r.Timeline.DeleteByRef(ctx, ref); err != nil {
			return err
		}
		return r.Retweets.Delete(ctx, retweetID)
	})
	if err != nil {
		return s.failed("removing retweet", err, slog.Int64("retweetID", retweetID))
	}

	s.logger.Info("retweet removed", slog.Int64("retweetID", retweetID), slog.Int64("userID", req.UserID))
	return nil
}

// GetPost returns a single tweet.
func (s *TimelineService) GetPost(ctx context.Context, postID int64) (*model.Post, error) {
	return s.store.Repos().Posts.GetByID(ctx, postID)
}

// GetRetweet returns a retweet with its original, if the original still exists.
func (s *TimelineService) GetRetweet(ctx context.Context, retweetID int64) (*model.FeedItem, error) {
	item, err := resolveRef(ctx, s.store.Repos(), 0, model.NewRetweetRef(retweetID))
	if errors.Is(err, apperror.ErrOrphaned) {
		return nil, apperror.NotFound("retweet", retweetID)
	}
	return item, err
}

// GlobalTimeline returns one page of every tweet and retweet, newest first.
func (s *TimelineService) GlobalTimeline(ctx context.Context, page int) (model.Page, error) {
	return s.page(ctx, repository.TimelineFilter{}, page)
}

// UserTimeline returns one page of the tweets and retweets authorID wrote.
// It reads the same index as GlobalTimeline, so ordering and counts agree.
func (s *TimelineService) UserTimeline(ctx context.Context, authorID int64, page int) (model.Page, error) {
	return s.page(ctx, repository.TimelineFilter{AuthorID: authorID}, page)
}

func (s *TimelineService) page(ctx context.Context, filter repository.TimelineFilter, page int) (model.Page, error) {
	if page < 1 {
		return model.Page{}, apperror.ValidationFailed("page", "page must be 1 or greater")
	}

	repos := s.store.Repos()
	total, err := repos.Timeline.Count(ctx, filter)
	if err != nil {
		return model.Page{}, s.failed("counting timeline", err)
	}

	// Past the last page there is nothing to fetch. Checking this before
	// computing the offset also keeps a huge page number from overflowing it.
	if lastPage := (total + s.pageSize - 1) / s.pageSize; page > lastPage {
		return model.NewPage(nil, page, s.pageSize, total), nil
	}

	entries, err := repos.Timeline.List(ctx, filter, repository.ListOptions{
		Limit:  s.pageSize,
		Offset: (page - 1) * s.pageSize,
	})
	if err != nil {
		return model.Page{}, s.failed("listing timeline", err)
	}

	items := make([]model.FeedItem, 0, len(entries))
	for _, entry := range entries {
		item, err := resolveRef(ctx, repos, entry.ID, entry.Ref)
		if err != nil {
			if errors.Is(err, apperror.ErrOrphaned) {
				s.logger.Warn("skipping orphaned timeline entry", slog.Int64("entryID", entry.ID))
				continue
			}
			return model.Page{}, s.failed("resolving timeline", err)
		}
		items = append(items, *item)
	}

	return model.NewPage(items, page, s.pageSize, total), nil
}

// failed logs infrastructure failures and wraps them. apperror values are
// expected outcomes (not found, forbidden, ...) and pass through unchanged.
func (s *TimelineService) failed(op string, err error, attrs ...any) error {
	return logFailure(s.logger, op, err, attrs...)
}

// resolveRef loads what ref points at. A missing post or retweet comes back
// as apperror.ErrOrphaned; a retweet whose original is gone resolves with a
// nil Original.
func resolveRef(ctx context.Context, r repository.Repos, entryID int64, ref model.Ref) (*model.FeedItem, error) {
	item := &model.FeedItem{EntryID: entryID, Kind: ref.Kind()}

	switch {
	case ref.PostID != nil:
		post, err := r.Posts.GetByID(ctx, *ref.PostID)
		if err != nil {
			return nil, orphanIfMissing(err, ref, entryID)
		}
		item.Post = post

	case ref.RetweetID != nil:
		retweet, err := r.Retweets.GetByID(ctx, *ref.RetweetID)
		if err != nil {
			return nil, orphanIfMissing(err, ref, entryID)
		}
		item.Retweet = retweet

		original, err := r.Posts.GetByID(ctx, retweet.PostID)
		switch {
		case err == nil:
			item.Original = original
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, err
		}

	default:
		return nil, fmt.Errorf("resolving entry %d: empty reference", entryID)
	}

	return item, nil
}

func orphanIfMissing(err error, ref model.Ref, entryID int64) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.Orphaned(string(ref.Kind()), entryID)
	}
	return err
}

func requireUser(req model.Requester) error {
	if req.UserID <= 0 {
		return apperror.Unauthorized("sign in to continue")
	}
	return nil
}

// validateTweet trims text and checks its length. required=false allows an
// empty body (a retweet without a comment).
func validateTweet(text string, required bool) (string, error) {
	text = strings.TrimSpace(text)
	if required && text == "" {
		return "", apperror.ValidationFailed("tweet", "tweet cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxTweetLength {
		return "", apperror.ValidationFailed("tweet",
			fmt.Sprintf("tweet must be %d characters or less", MaxTweetLength))
	}
	return text, nil
}

func logFailure(logger *slog.Logger, op string, err error, attrs ...any) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	logger.Error("failed "+op, append(attrs, slog.String("error", err.Error()))...)
	return fmt.Errorf("%s: %w", op, err)
}
