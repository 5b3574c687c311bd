// Package media stores uploaded images on local disk and hands back a
// stable reference string. Only the reference is ever written to the
// database; the bytes live under the media directory and are served at /media/.
package media

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/model"
)

// Kind is the sub-directory an image is filed under.
type Kind string

const (
	KindTweet      Kind = "tweets"
	KindProfile    Kind = "profile"
	KindBackground Kind = "backgrounds"
)

func (k Kind) valid() bool {
	switch k {
	case KindTweet, KindProfile, KindBackground:
		return true
	}
	return false
}

// allowed maps a sniffed content type to the extension we store it under.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Store writes images below dir.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates the media directory tree if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	for _, k := range []Kind{KindTweet, KindProfile, KindBackground} {
		if err := os.MkdirAll(filepath.Join(dir, string(k)), 0755); err != nil {
			return nil, fmt.Errorf("media: creating %s directory: %w", k, err)
		}
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir is the root the HTTP file server serves from.
func (s *Store) Dir() string { return s.dir }

// Save writes r as a new image of the given kind and returns its reference,
// e.g. "tweets/cv37rs3pp9olc6atsptg.png".
//
// The type is decided by sniffing the first bytes, not by trusting the
// client's filename. filename is only used for logging.
func (s *Store) Save(kind Kind, filename string, r io.Reader) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("media: unknown kind %q", kind)
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", fmt.Errorf("media: reading upload: %w", err)
	}
	ext, ok := allowed[http.DetectContentType(head)]
	if !ok {
		return "", apperror.ValidationFailed("image", "only jpg, png and gif images are allowed")
	}

	ref := path.Join(string(kind), xid.New().String()+ext)
	dst := filepath.Join(s.dir, filepath.FromSlash(ref))

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("media: creating %s: %w", ref, err)
	}
	if _, err := io.Copy(f, br); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("media: writing %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("media: closing %s: %w", ref, err)
	}

	s.logger.Debug("image stored",
		slog.String("ref", ref),
		slog.String("upload", filename),
	)
	return ref, nil
}

// Remove deletes a stored image. The shared default pictures, empty refs
// and files that are already gone are silently ignored.
func (s *Store) Remove(ref string) error {
	if ref == "" || ref == model.DefaultProfileImage || ref == model.DefaultBackgroundImage {
		return nil
	}

	clean := path.Clean(ref)
	kind, _, found := strings.Cut(clean, "/")
	if !found || !Kind(kind).valid() || strings.Contains(clean, "..") {
		return fmt.Errorf("media: refusing to remove %q", ref)
	}

	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: removing %s: %w", ref, err)
	}
	return nil
}

// RemoveAll removes every ref, logging failures instead of returning them.
// Used after a commit, when the database change can no longer be undone.
func (s *Store) RemoveAll(refs ...string) {
	for _, ref := range refs {
		if err := s.Remove(ref); err != nil {
			s.logger.Warn("failed to remove image",
				slog.String("ref", ref),
				slog.String("error", err.Error()),
			)
		}
	}
}
