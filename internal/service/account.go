package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/media"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

const (
	MaxBioLength   = 160
	BirthdayLayout = "2006-01-02"
)

// AccountService covers the profile pages and account-wide changes.
type AccountService struct {
	store    repository.Store
	images   ImageStore
	timeline *TimelineService
	logger   *slog.Logger
}

func NewAccountService(store repository.Store, images ImageStore, timeline *TimelineService, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:    store,
		images:   images,
		timeline: timeline,
		logger:   logger,
	}
}

// Profile is a user's profile card plus one page of what they wrote.
// Own is true when the requester is looking at their own profile.
type Profile struct {
	User     *model.User `json:"user"`
	Own      bool        `json:"own"`
	Timeline model.Page  `json:"timeline"`
}

// ViewProfile returns accountID's profile with one page of their timeline.
// Anonymous requesters may view profiles too.
func (s *AccountService) ViewProfile(ctx context.Context, req model.Requester, accountID int64, page int) (*Profile, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, accountID)
	if err != nil {
		return nil, logFailure(s.logger, "loading profile", err, slog.Int64("accountID", accountID))
	}

	timeline, err := s.timeline.UserTimeline(ctx, accountID, page)
	if err != nil {
		return nil, err
	}

	return &Profile{
		User:     user,
		Own:      req.UserID == accountID,
		Timeline: timeline,
	}, nil
}

// ProfileUpdate holds the editable profile fields. A nil image leaves the
// current picture in place.
type ProfileUpdate struct {
	Username     string
	Email        string
	Bio          string
	Birthday     string
	ProfileImage *Upload
	Background   *Upload
}

// UpdateProfile validates and saves the requester's profile.
//
// New pictures are written before the transaction and removed again if it
// fails. The pictures they replace are removed only after the commit.
func (s *AccountService) UpdateProfile(ctx context.Context, req model.Requester, in ProfileUpdate) (*model.User, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}

	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	bio := strings.TrimSpace(in.Bio)
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio", fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	birthday := strings.TrimSpace(in.Birthday)
	if birthday != "" {
		if _, err := time.Parse(BirthdayLayout, birthday); err != nil {
			return nil, apperror.ValidationFailed("birthday", "birthday must look like 2006-01-02")
		}
	}

	var saved []string
	store := func(kind media.Kind, up *Upload) (string, error) {
		if up == nil {
			return "", nil
		}
		ref, err := s.images.Save(kind, up.Filename, up.Body)
		if err != nil {
			return "", err
		}
		saved = append(saved, ref)
		return ref, nil
	}
	profileRef, err := store(media.KindProfile, in.ProfileImage)
	if err != nil {
		return nil, err
	}
	bgRef, err := store(media.KindBackground, in.Background)
	if err != nil {
		s.images.RemoveAll(saved...)
		return nil, err
	}

	var (
		user     *model.User
		replaced []string
	)
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		var err error
		user, err = r.Users.GetByID(ctx, req.UserID)
		if err != nil {
			return err
		}

		user.Username = username
		user.Email = email
		user.Bio = bio
		user.Birthday = birthday
		if profileRef != "" {
			replaced = append(replaced, user.ImageFile)
			user.ImageFile = profileRef
		}
		if bgRef != "" {
			replaced = append(replaced, user.BgFile)
			user.BgFile = bgRef
		}
		return r.Users.Update(ctx, user)
	})
	if err != nil {
		s.images.RemoveAll(saved...)
		return nil, logFailure(s.logger, "updating profile", err, slog.Int64("userID", req.UserID))
	}

	s.images.RemoveAll(replaced...)
	s.logger.Info("profile updated", slog.Int64("userID", user.ID))
	return user, nil
}

// DeleteAccount removes an account and everything that points at it.
//
// Only the account owner may do this. In one transaction it deletes, in
// foreign-key order: the bookmarks the user made, every bookmark on the
// user's tweets and retweets, their timeline entries, the retweets, the
// tweets and finally the user. Other people's retweets of the user's tweets
// stay and show without an original.
func (s *AccountService) DeleteAccount(ctx context.Context, req model.Requester, accountID int64) error {
	if err := requireUser(req); err != nil {
		return err
	}
	if req.UserID != accountID {
		return apperror.Forbidden("you can only delete your own account")
	}

	var files []string
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		user, err := r.Users.GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		refs, err := r.Posts.ImageRefsByUser(ctx, accountID)
		if err != nil {
			return err
		}

		if _, err := r.Bookmarks.DeleteByOwner(ctx, accountID); err != nil {
			return err
		}
		if _, err := r.Bookmarks.DeleteByAuthor(ctx, accountID); err != nil {
			return err
		}
		if _, err := r.Timeline.DeleteByAuthor(ctx, accountID); err != nil {
			return err
		}
		if _, err := r.Retweets.DeleteByUser(ctx, accountID); err != nil {
			return err
		}
		if _, err := r.Posts.DeleteByUser(ctx, accountID); err != nil {
			return err
		}
		if err := r.Users.Delete(ctx, accountID); err != nil {
			return err
		}

		files = append(refs, user.ImageFile, user.BgFile)
		return nil
	})
	if err != nil {
		return logFailure(s.logger, "deleting account", err, slog.Int64("accountID", accountID))
	}

	s.images.RemoveAll(files...)
	s.logger.Info("account deleted", slog.Int64("accountID", accountID))
	return nil
}
