package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/service"
)

// BookmarkHandler serves a user's bookmarks.
type BookmarkHandler struct {
	bookmarks *service.BookmarkService
	logger    *slog.Logger
}

func NewBookmarkHandler(bookmarks *service.BookmarkService, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks, logger: logger}
}

type saveFunc func(r *http.Request, req model.Requester, id int64) (*model.Bookmark, bool, error)
type unsaveFunc func(r *http.Request, req model.Requester, id int64) error

// HandleSavePost bookmarks a tweet.
//
// HTTP: POST /api/posts/{id}/bookmark
// 201 on the first save, 200 when the bookmark already existed.
func (h *BookmarkHandler) HandleSavePost(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, func(r *http.Request, req model.Requester, id int64) (*model.Bookmark, bool, error) {
		return h.bookmarks.Save(r.Context(), req, id)
	})
}

// HandleSaveRetweet bookmarks a retweet.
//
// HTTP: POST /api/retweets/{id}/bookmark
func (h *BookmarkHandler) HandleSaveRetweet(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, func(r *http.Request, req model.Requester, id int64) (*model.Bookmark, bool, error) {
		return h.bookmarks.SaveRetweet(r.Context(), req, id)
	})
}

// HandleUnsavePost removes the bookmark on a tweet.
//
// HTTP: DELETE /api/posts/{id}/bookmark
func (h *BookmarkHandler) HandleUnsavePost(w http.ResponseWriter, r *http.Request) {
	h.unsave(w, r, func(r *http.Request, req model.Requester, id int64) error {
		return h.bookmarks.Unsave(r.Context(), req, id)
	})
}

// HandleUnsaveRetweet removes the bookmark on a retweet.
//
// HTTP: DELETE /api/retweets/{id}/bookmark
func (h *BookmarkHandler) HandleUnsaveRetweet(w http.ResponseWriter, r *http.Request) {
	h.unsave(w, r, func(r *http.Request, req model.Requester, id int64) error {
		return h.bookmarks.UnsaveRetweet(r.Context(), req, id)
	})
}

// HandleList returns the requester's bookmarks, newest first.
//
// HTTP: GET /api/bookmarks
//
// RESPONSE FORMAT:
//
//	{"items": [{"entryId": 3, "kind": "post", "post": {...}}], "empty": false}
func (h *BookmarkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookmarks.List(r.Context(), requester(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type bookmarkResponse struct {
	ID      int64           `json:"id"`
	Kind    model.EntryKind `json:"kind"`
	Created bool            `json:"created"`
}

func (h *BookmarkHandler) save(w http.ResponseWriter, r *http.Request, fn saveFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	bm, created, err := fn(r, requester(r), id)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeMessage(w, status, "Saved tweet to bookmark!", bookmarkResponse{
		ID:      bm.ID,
		Kind:    bm.Ref.Kind(),
		Created: created,
	})
}

func (h *BookmarkHandler) unsave(w http.ResponseWriter, r *http.Request, fn unsaveFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := fn(r, requester(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Post removed from bookmark!", nil)
}
