package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chirp/internal/auth"
	"github.com/sakif/chirp/internal/media"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository/sqlite"
	"github.com/sakif/chirp/internal/service"
)

// pngHeader is enough for content sniffing to call it image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testEnv struct {
	db        *sqlite.DB
	mediaDir  string
	auth      *AuthHandler
	timeline  *TimelineHandler
	bookmarks *BookmarkHandler
	accounts  *AccountHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	images, err := media.New(dir, logger)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	authSvc := service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), logger)
	timeline := service.NewTimelineService(db, images, service.DefaultPageSize, logger)
	bookmarks := service.NewBookmarkService(db, logger)
	accounts := service.NewAccountService(db, images, timeline, logger)

	return &testEnv{
		db:        db,
		mediaDir:  dir,
		auth:      NewAuthHandler(authSvc, nil, false, logger),
		timeline:  NewTimelineHandler(timeline, 1<<20, logger),
		bookmarks: NewBookmarkHandler(bookmarks, logger),
		accounts:  NewAccountHandler(accounts, 1<<20, false, logger),
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) post(t *testing.T, author *model.User, body string) *model.Post {
	t.Helper()
	p := &model.Post{UserID: author.ID, Body: body, Stamp: "01 January '24 10:00 AM"}
	require.NoError(t, e.db.Posts().Create(context.Background(), p))
	_, err := e.db.Timeline().Append(context.Background(), model.NewPostRef(p.ID))
	require.NoError(t, err)
	return p
}

func asUser(r *http.Request, u *model.User) *http.Request {
	return r.WithContext(auth.WithUserID(r.Context(), u.ID))
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// =========================================================================
// AUTH
// =========================================================================

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"alice","email":"alice@example.com","password":"password1"}`))
	rec := httptest.NewRecorder()
	env.auth.HandleRegister(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"alice","password":"password1","remember":true}`))
	rec = httptest.NewRecorder()
	env.auth.HandleLogin(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(auth.RememberTTL.Seconds()), cookies[0].MaxAge)
}

func TestLogin_BadPassword(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"ghost","password":"whatever"}`))
	rec := httptest.NewRecorder()
	env.auth.HandleLogin(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRegister_BadJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.auth.HandleRegister(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	rec := httptest.NewRecorder()
	env.auth.HandleMe(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/me", nil), alice))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeMessage(t, rec)["username"])
}

// =========================================================================
// TWEETS AND RETWEETS
// =========================================================================

func TestCreatePost_WithImage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	body, contentType := multipartBody(t, map[string]string{"tweet": "hello"}, "tweet_img", pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	env.timeline.HandleCreatePost(rec, asUser(req, alice))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	msg := decodeMessage(t, rec)
	assert.Equal(t, "The Tweet was added to your timeline!", msg["message"])
	data := msg["data"].(map[string]any)
	ref, ok := data["imageRef"].(string)
	require.True(t, ok, "post should carry an image ref")
	assert.FileExists(t, filepath.Join(env.mediaDir, filepath.FromSlash(ref)))
}

func TestCreatePost_RejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	body, contentType := multipartBody(t, map[string]string{"tweet": "hello"}, "tweet_img", []byte("just text"))
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	env.timeline.HandleCreatePost(rec, asUser(req, alice))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePost_Anonymous(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader("tweet=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	env.timeline.HandleCreatePost(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTimeline(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	env.post(t, alice, "first")
	env.post(t, alice, "second")

	rec := httptest.NewRecorder()
	env.timeline.HandleTimeline(rec, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page model.Page
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "second", page.Items[0].Post.Body)
	assert.Equal(t, 2, page.Total)

	rec = httptest.NewRecorder()
	env.timeline.HandleTimeline(rec, httptest.NewRequest(http.MethodGet, "/api/timeline?page=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeletePost_NotAuthor(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	p := env.post(t, alice, "mine")

	req := withParam(httptest.NewRequest(http.MethodDelete, "/api/posts/1", nil), "id", "1")
	rec := httptest.NewRecorder()
	env.timeline.HandleDeletePost(rec, asUser(req, bob))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	env.timeline.HandleDeletePost(rec, asUser(req, alice))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := env.db.Posts().GetByID(context.Background(), p.ID)
	assert.Error(t, err)
}

func TestRetweet(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.post(t, alice, "hello")

	// No body at all: the comment is optional.
	req := withParam(httptest.NewRequest(http.MethodPost, "/api/posts/1/retweets", nil), "id", "1")
	rec := httptest.NewRecorder()
	env.timeline.HandleRetweet(rec, asUser(req, bob))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "You retweeted @alice's tweet!", decodeMessage(t, rec)["message"])

	req = withParam(httptest.NewRequest(http.MethodGet, "/api/retweets/1", nil), "id", "1")
	rec = httptest.NewRecorder()
	env.timeline.HandleGetRetweet(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var item model.FeedItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	assert.Equal(t, model.KindRetweet, item.Kind)
	require.NotNil(t, item.Original)
	assert.Equal(t, "hello", item.Original.Body)

	req = withParam(httptest.NewRequest(http.MethodPost, "/api/posts/9/retweets",
		strings.NewReader(`{"text":"nice"}`)), "id", "9")
	rec = httptest.NewRecorder()
	env.timeline.HandleRetweet(rec, asUser(req, bob))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// BOOKMARKS
// =========================================================================

func TestBookmarkSaveTwice(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	env.post(t, alice, "hello")

	save := func() int {
		req := withParam(httptest.NewRequest(http.MethodPost, "/api/posts/1/bookmark", nil), "id", "1")
		rec := httptest.NewRecorder()
		env.bookmarks.HandleSavePost(rec, asUser(req, alice))
		return rec.Code
	}
	assert.Equal(t, http.StatusCreated, save())
	assert.Equal(t, http.StatusOK, save())

	rec := httptest.NewRecorder()
	env.bookmarks.HandleList(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil), alice))
	require.Equal(t, http.StatusOK, rec.Code)

	var list service.BookmarkList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Items, 1)
	assert.False(t, list.Empty)

	req := withParam(httptest.NewRequest(http.MethodDelete, "/api/posts/1/bookmark", nil), "id", "1")
	rec = httptest.NewRecorder()
	env.bookmarks.HandleUnsavePost(rec, asUser(req, alice))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Post removed from bookmark!", decodeMessage(t, rec)["message"])
}

func TestBookmarkMissingRetweet(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	req := withParam(httptest.NewRequest(http.MethodPost, "/api/retweets/5/bookmark", nil), "id", "5")
	rec := httptest.NewRecorder()
	env.bookmarks.HandleSaveRetweet(rec, asUser(req, alice))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// ACCOUNTS
// =========================================================================

func TestProfile_OwnRedirects(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.post(t, bob, "bob says hi")

	req := withParam(httptest.NewRequest(http.MethodGet, "/api/users/1?page=2", nil), "id", "1")
	rec := httptest.NewRecorder()
	env.accounts.HandleProfile(rec, asUser(req, alice))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/account?page=2", rec.Header().Get("Location"))

	req = withParam(httptest.NewRequest(http.MethodGet, "/api/users/2", nil), "id", "2")
	rec = httptest.NewRecorder()
	env.accounts.HandleProfile(rec, asUser(req, alice))
	require.Equal(t, http.StatusOK, rec.Code)

	var profile service.Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, "bob", profile.User.Username)
	assert.False(t, profile.Own)
	assert.Len(t, profile.Timeline.Items, 1)
}

func TestUpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")

	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"bio":      "hello world",
	}, "picture", pngHeader)
	req := httptest.NewRequest(http.MethodPut, "/api/account", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	env.accounts.HandleUpdateAccount(rec, asUser(req, alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.db.Users().GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stored.Bio)
	assert.True(t, strings.HasPrefix(stored.ImageFile, "profile/"))
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	env.post(t, alice, "bye")

	req := withParam(httptest.NewRequest(http.MethodDelete, "/api/account/1", nil), "id", "1")
	rec := httptest.NewRecorder()
	env.accounts.HandleDeleteAccount(rec, asUser(req, bob))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	env.accounts.HandleDeleteAccount(rec, asUser(req, alice))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
