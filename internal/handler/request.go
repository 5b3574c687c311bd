package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/auth"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/service"
)

// requester turns the authenticated user in the context into the explicit
// identity the services expect. Anonymous requests get a zero Requester.
func requester(r *http.Request) model.Requester {
	id, _ := auth.UserIDFromContext(r.Context())
	return model.Requester{UserID: id}
}

// pathID parses a numeric chi URL parameter such as {id}.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "must be a positive number")
	}
	return id, nil
}

// pageParam reads ?page=N. A missing page means the first one; range
// checks belong to the service.
func pageParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed("page", "page must be a number")
	}
	return page, nil
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// parseForm parses a multipart or url-encoded form, capping the body at
// maxBytes.
func parseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "upload is too large")
		}
		return apperror.ValidationFailed("body", "invalid form data")
	}
	return nil
}

// formUpload returns the file sent in field, or nil if there is none.
// The caller closes the returned file once the service is done with it.
func formUpload(r *http.Request, field string) (*service.Upload, multipart.File, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, apperror.ValidationFailed(field, "could not read the uploaded file")
	}
	// Browsers send an empty part when no file was picked.
	if header.Size == 0 {
		file.Close()
		return nil, nil, nil
	}
	return &service.Upload{Filename: header.Filename, Body: file}, file, nil
}

func closeAll(files ...multipart.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
