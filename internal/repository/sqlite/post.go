package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

var _ repository.PostRepository = (*PostDB)(nil)

// PostDB stores original tweets.
type PostDB struct {
	q queryer
}

// Create inserts a post. The caller sets UserID, Body, ImageRef and Stamp;
// ID (and CreatedAt, if zero) are filled in here.
func (p *PostDB) Create(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	res, err := p.q.ExecContext(ctx,
		`INSERT INTO posts (user_id, body, image_ref, stamp, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		post.UserID,
		post.Body,
		nullableString(post.ImageRef),
		post.Stamp,
		post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post for user %d: %w", post.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading post id: %w", err)
	}
	post.ID = id
	return nil
}

// GetByID returns the post together with its author card.
func (p *PostDB) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	var (
		post     model.Post
		imageRef sql.NullString
	)
	err := p.q.QueryRowContext(ctx,
		`SELECT p.id, p.user_id, p.body, p.image_ref, p.stamp, p.created_at,
		        u.id, u.username, u.image_file
		 FROM posts p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.id = ?`,
		id,
	).Scan(
		&post.ID, &post.UserID, &post.Body, &imageRef, &post.Stamp, &post.CreatedAt,
		&post.Author.ID, &post.Author.Username, &post.Author.ImageFile,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}
	if imageRef.Valid {
		ref := imageRef.String
		post.ImageRef = &ref
	}
	return &post, nil
}

// Delete removes a single post. Bookmarks and the timeline entry must be
// deleted first; the foreign keys reject the delete otherwise.
func (p *PostDB) Delete(ctx context.Context, id int64) error {
	res, err := p.q.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}
	return expectRows(res, "post", id)
}

func (p *PostDB) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := p.q.ExecContext(ctx, `DELETE FROM posts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting posts of user %d: %w", userID, err)
	}
	return rowsAffected(res)
}

// ImageRefsByUser lists the media refs attached to a user's posts, so the
// files can be removed once the posts are gone.
func (p *PostDB) ImageRefsByUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := p.q.QueryContext(ctx,
		`SELECT image_ref FROM posts WHERE user_id = ? AND image_ref IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing post images of user %d: %w", userID, err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("sqlite: scanning post image: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating post images: %w", err)
	}
	return refs, nil
}
