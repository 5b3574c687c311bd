package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/chirp/internal/service"
)

// AccountHandler serves profiles and the requester's own account.
type AccountHandler struct {
	accounts     *service.AccountService
	maxUpload    int64
	secureCookie bool
	logger       *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, maxUpload int64, secureCookie bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		maxUpload:    maxUpload,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleAccount returns the requester's own profile and timeline page.
//
// HTTP: GET /api/account?page=N
func (h *AccountHandler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	req := requester(r)
	profile, err := h.accounts.ViewProfile(r.Context(), req, req.UserID, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleProfile returns another user's profile and timeline page.
//
// HTTP: GET /api/users/{id}?page=N
//
// Looking at your own id redirects to /api/account, so there is one
// canonical URL for the editable view.
func (h *AccountHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := pageParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	req := requester(r)
	if req.UserID == id {
		http.Redirect(w, r, fmt.Sprintf("/api/account?page=%d", page), http.StatusFound)
		return
	}

	profile, err := h.accounts.ViewProfile(r.Context(), req, id, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateAccount saves the requester's profile.
//
// HTTP: PUT /api/account
// FORM FIELDS (multipart/form-data): username, email, bio, birthday,
// picture (optional), background (optional)
func (h *AccountHandler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r, h.maxUpload); err != nil {
		writeError(w, err)
		return
	}

	picture, pictureFile, err := formUpload(r, "picture")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeAll(pictureFile)

	background, backgroundFile, err := formUpload(r, "background")
	if err != nil {
		writeError(w, err)
		return
	}
	defer closeAll(backgroundFile)

	user, err := h.accounts.UpdateProfile(r.Context(), requester(r), service.ProfileUpdate{
		Username:     r.FormValue("username"),
		Email:        r.FormValue("email"),
		Bio:          r.FormValue("bio"),
		Birthday:     r.FormValue("birthday"),
		ProfileImage: picture,
		Background:   background,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Your account has been updated!", user)
}

// HandleDeleteAccount deletes the requester's account and logs them out.
//
// HTTP: DELETE /api/account/{id}
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), requester(r), id); err != nil {
		writeError(w, err)
		return
	}

	clearSessionCookie(w, h.secureCookie)
	writeMessage(w, http.StatusOK, "Your account has been deleted!", nil)
}
