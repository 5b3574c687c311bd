package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

var _ repository.BookmarkRepository = (*BookmarkDB)(nil)

// BookmarkDB is the per-user bookmark index. Like the timeline, a row
// points at a post or a retweet, never both; partial unique indexes keep
// one bookmark per (user, target).
type BookmarkDB struct {
	q queryer
}

func scanBookmark(row interface{ Scan(...any) error }) (*model.Bookmark, error) {
	var (
		b                 model.Bookmark
		postID, retweetID sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.UserID, &postID, &retweetID, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Ref = refFromNulls(postID, retweetID)
	return &b, nil
}

func (b *BookmarkDB) find(ctx context.Context, userID int64, ref model.Ref) (*model.Bookmark, error) {
	column, id, err := refColumn(ref)
	if err != nil {
		return nil, err
	}
	bm, err := scanBookmark(b.q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, user_id, post_id, retweet_id, created_at
		 FROM bookmarks WHERE user_id = ? AND %s = ?`, column),
		userID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: looking up bookmark: %w", err)
	}
	return bm, nil
}

// Save is idempotent: saving the same target twice returns the first bookmark.
func (b *BookmarkDB) Save(ctx context.Context, userID int64, ref model.Ref) (*model.Bookmark, bool, error) {
	existing, err := b.find(ctx, userID, ref)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	res, err := b.q.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, post_id, retweet_id, created_at) VALUES (?, ?, ?, ?)`,
		userID,
		nullableInt(ref.PostID),
		nullableInt(ref.RetweetID),
		now,
	)
	if err != nil {
		// Lost a race with a concurrent save of the same target.
		if _, ok := isUniqueViolation(err); ok {
			existing, findErr := b.find(ctx, userID, ref)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("sqlite: saving bookmark for user %d: %w", userID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: reading bookmark id: %w", err)
	}
	return &model.Bookmark{ID: id, UserID: userID, Ref: ref, CreatedAt: now}, true, nil
}

func (b *BookmarkDB) Remove(ctx context.Context, userID int64, ref model.Ref) (int64, error) {
	column, id, err := refColumn(ref)
	if err != nil {
		return 0, err
	}
	res, err := b.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM bookmarks WHERE user_id = ? AND %s = ?`, column),
		userID, id,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing bookmark for user %d: %w", userID, err)
	}
	return rowsAffected(res)
}

// ListByUser returns the user's bookmarks, newest first.
func (b *BookmarkDB) ListByUser(ctx context.Context, userID int64) ([]model.Bookmark, error) {
	rows, err := b.q.QueryContext(ctx,
		`SELECT id, user_id, post_id, retweet_id, created_at
		 FROM bookmarks WHERE user_id = ?
		 ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bookmarks of user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Bookmark
	for rows.Next() {
		bm, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning bookmark row: %w", err)
		}
		out = append(out, *bm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating bookmarks: %w", err)
	}
	return out, nil
}

func (b *BookmarkDB) DeleteByRef(ctx context.Context, ref model.Ref) (int64, error) {
	column, id, err := refColumn(ref)
	if err != nil {
		return 0, err
	}
	res, err := b.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM bookmarks WHERE %s = ?`, column), id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing bookmarks of %s %d: %w", ref.Kind(), id, err)
	}
	return rowsAffected(res)
}

func (b *BookmarkDB) DeleteByOwner(ctx context.Context, userID int64) (int64, error) {
	res, err := b.q.ExecContext(ctx, `DELETE FROM bookmarks WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing bookmarks owned by user %d: %w", userID, err)
	}
	return rowsAffected(res)
}

func (b *BookmarkDB) DeleteByAuthor(ctx context.Context, userID int64) (int64, error) {
	res, err := b.q.ExecContext(ctx,
		`DELETE FROM bookmarks
		 WHERE post_id IN (SELECT id FROM posts WHERE user_id = ?)
		    OR retweet_id IN (SELECT id FROM retweets WHERE user_id = ?)`,
		userID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing bookmarks on content of user %d: %w", userID, err)
	}
	return rowsAffected(res)
}
