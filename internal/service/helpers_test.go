package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/chirp/internal/media"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
	"github.com/sakif/chirp/internal/repository/sqlite"
)

// =========================================================================
// SHARED TEST FIXTURES
// =========================================================================
//
// The services are tested against a real in-memory SQLite database: the
// transaction and foreign-key behaviour is the thing under test, and a
// hand-written fake would only test itself. Fakes are used where a failure
// has to be injected (faultyStore) or a side effect observed (fakeImages).

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sqlite.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func as(u *model.User) model.Requester {
	return model.Requester{UserID: u.ID}
}

// fakeImages records what the services stored and removed.
type fakeImages struct {
	mu      sync.Mutex
	n       int
	saved   []string
	removed []string
	saveErr error
}

func (f *fakeImages) Save(kind media.Kind, _ string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.n++
	ref := fmt.Sprintf("%s/img-%d.png", kind, f.n)
	f.saved = append(f.saved, ref)
	return ref, nil
}

func (f *fakeImages) RemoveAll(refs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, refs...)
}

var errInjected = errors.New("injected failure")

// faultyStore wraps a real store and makes the timeline repository fail
// inside transactions, to prove that earlier writes in the group roll back.
type faultyStore struct {
	repository.Store
	failAppend      bool
	failDeleteByRef bool
}

func (f *faultyStore) InTx(ctx context.Context, fn func(repository.Repos) error) error {
	return f.Store.InTx(ctx, func(r repository.Repos) error {
		r.Timeline = &faultyTimeline{
			TimelineRepository: r.Timeline,
			failAppend:         f.failAppend,
			failDeleteByRef:    f.failDeleteByRef,
		}
		return fn(r)
	})
}

type faultyTimeline struct {
	repository.TimelineRepository
	failAppend      bool
	failDeleteByRef bool
}

func (f *faultyTimeline) Append(ctx context.Context, ref model.Ref) (*model.TimelineEntry, error) {
	if f.failAppend {
		return nil, errInjected
	}
	return f.TimelineRepository.Append(ctx, ref)
}

func (f *faultyTimeline) DeleteByRef(ctx context.Context, ref model.Ref) (int64, error) {
	if f.failDeleteByRef {
		return 0, errInjected
	}
	return f.TimelineRepository.DeleteByRef(ctx, ref)
}

type services struct {
	db        *sqlite.DB
	images    *fakeImages
	timeline  *TimelineService
	bookmarks *BookmarkService
	accounts  *AccountService
}

func newServices(t *testing.T) *services {
	t.Helper()
	db := newTestStore(t)
	images := &fakeImages{}
	logger := testLogger()
	timeline := NewTimelineService(db, images, DefaultPageSize, logger)
	return &services{
		db:        db,
		images:    images,
		timeline:  timeline,
		bookmarks: NewBookmarkService(db, logger),
		accounts:  NewAccountService(db, images, timeline, logger),
	}
}
