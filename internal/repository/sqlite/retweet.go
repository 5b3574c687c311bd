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

var _ repository.RetweetRepository = (*RetweetDB)(nil)

// RetweetDB stores retweets.
type RetweetDB struct {
	q queryer
}

func (r *RetweetDB) Create(ctx context.Context, retweet *model.Retweet) error {
	if retweet.CreatedAt.IsZero() {
		retweet.CreatedAt = time.Now()
	}

	res, err := r.q.ExecContext(ctx,
		`INSERT INTO retweets (post_id, user_id, body, stamp, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		retweet.PostID,
		retweet.UserID,
		retweet.Body,
		retweet.Stamp,
		retweet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating retweet of post %d: %w", retweet.PostID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading retweet id: %w", err)
	}
	retweet.ID = id
	return nil
}

// GetByID returns the retweet with the retweeter's author card. The
// original post is not loaded here; it may no longer exist.
func (r *RetweetDB) GetByID(ctx context.Context, id int64) (*model.Retweet, error) {
	var rt model.Retweet
	err := r.q.QueryRowContext(ctx,
		`SELECT r.id, r.post_id, r.user_id, r.body, r.stamp, r.created_at,
		        u.id, u.username, u.image_file
		 FROM retweets r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.id = ?`,
		id,
	).Scan(
		&rt.ID, &rt.PostID, &rt.UserID, &rt.Body, &rt.Stamp, &rt.CreatedAt,
		&rt.Author.ID, &rt.Author.Username, &rt.Author.ImageFile,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("retweet", id)
		}
		return nil, fmt.Errorf("sqlite: getting retweet %d: %w", id, err)
	}
	return &rt, nil
}

func (r *RetweetDB) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM retweets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting retweet %d: %w", id, err)
	}
	return expectRows(res, "retweet", id)
}

func (r *RetweetDB) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM retweets WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting retweets of user %d: %w", userID, err)
	}
	return rowsAffected(res)
}
