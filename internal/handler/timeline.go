package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/chirp/internal/service"
)

// TimelineHandler serves the shared timeline and the tweet/retweet routes.
type TimelineHandler struct {
	timeline  *service.TimelineService
	maxUpload int64
	logger    *slog.Logger
}

// NewTimelineHandler creates a TimelineHandler. maxUpload caps the size of
// a tweet form, picture included.
func NewTimelineHandler(timeline *service.TimelineService, maxUpload int64, logger *slog.Logger) *TimelineHandler {
	return &TimelineHandler{timeline: timeline, maxUpload: maxUpload, logger: logger}
}

// HandleTimeline returns one page of the global timeline.
//
// HTTP: GET /api/timeline?page=N
//
// RESPONSE FORMAT:
//
//	{
//	  "items": [{"entryId": 9, "kind": "retweet", "retweet": {...}, "original": {...}}, ...],
//	  "page": 1, "perPage": 5, "total": 9, "pages": 2, "hasNext": true, "hasPrev": false
//	}
func (h *TimelineHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.timeline.GlobalTimeline(r.Context(), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCreatePost posts a tweet.
//
// HTTP: POST /api/posts
// FORM FIELDS (multipart/form-data): tweet (text), tweet_img (optional picture)
func (h *TimelineHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.maxUpload); err != nil {
		writeError(w, err)
		return
	}

	image, file, err := formUpload(r, "tweet_img")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeAll(file)

	post, err := h.timeline.PostTweet(r.Context(), requester(r), r.FormValue("tweet"), image)
	if err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusCreated, "The Tweet was added to your timeline!", post)
}

// HandleGetPost returns a single tweet.
//
// HTTP: GET /api/posts/{id}
func (h *TimelineHandler) HandleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	post, err := h.timeline.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleDeletePost deletes one of the requester's tweets.
//
// HTTP: DELETE /api/posts/{id}
func (h *TimelineHandler) HandleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.timeline.RemoveTweet(r.Context(), requester(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your tweet was deleted!", nil)
}

type retweetRequest struct {
	Text string `json:"text"`
}

// HandleRetweet retweets a tweet, optionally with a comment.
//
// HTTP: POST /api/posts/{id}/retweets
// REQUEST BODY (optional): {"text": "nice"}
func (h *TimelineHandler) HandleRetweet(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req retweetRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	retweet, err := h.timeline.PostRetweet(r.Context(), requester(r), postID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	// Read it back with its original for the response. The retweet is
	// committed at this point, so a failure here is only logged.
	item, err := h.timeline.GetRetweet(r.Context(), retweet.ID)
	if err != nil || item.Original == nil {
		h.logger.Warn("retweet posted but could not be read back",
			slog.Int64("retweetID", retweet.ID))
		writeMessage(w, http.StatusCreated, "You retweeted the tweet!", retweet)
		return
	}

	writeMessage(w, http.StatusCreated,
		fmt.Sprintf("You retweeted @%s's tweet!", item.Original.Author.Username), item)
}

// HandleGetRetweet returns a retweet with its original tweet.
//
// HTTP: GET /api/retweets/{id}
func (h *TimelineHandler) HandleGetRetweet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	item, err := h.timeline.GetRetweet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDeleteRetweet deletes one of the requester's retweets.
//
// HTTP: DELETE /api/retweets/{id}
func (h *TimelineHandler) HandleDeleteRetweet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.timeline.RemoveRetweet(r.Context(), requester(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your retweet was deleted!", nil)
}
