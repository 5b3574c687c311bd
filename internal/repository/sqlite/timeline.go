package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

var _ repository.TimelineRepository = (*TimelineDB)(nil)

// TimelineDB is the append-only timeline index. Each row points at exactly
// one post or one retweet (enforced by a CHECK constraint), and a post or
// retweet appears at most once (UNIQUE on each column).
type TimelineDB struct {
	q queryer
}

// authorFilter matches entries whose post or retweet was written by ?,
// or every entry when ? is 0. It takes the author id three times.
const authorFilter = `(? = 0
	OR post_id IN (SELECT id FROM posts WHERE user_id = ?)
	OR retweet_id IN (SELECT id FROM retweets WHERE user_id = ?))`

// Append adds an entry at the head of the timeline.
func (t *TimelineDB) Append(ctx context.Context, ref model.Ref) (*model.TimelineEntry, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("sqlite: timeline entry must point at exactly one post or retweet")
	}

	res, err := t.q.ExecContext(ctx,
		`INSERT INTO timeline_entries (post_id, retweet_id) VALUES (?, ?)`,
		nullableInt(ref.PostID),
		nullableInt(ref.RetweetID),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: appending %s to timeline: %w", ref.Kind(), err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading timeline entry id: %w", err)
	}
	return &model.TimelineEntry{ID: id, Ref: ref}, nil
}

// List returns entries newest first (highest id first).
//
// LIMIT/OFFSET over a strictly increasing key gives stable pages: reading
// the same page twice with no writes in between returns the same rows.
func (t *TimelineDB) List(ctx context.Context, filter repository.TimelineFilter, opts repository.ListOptions) ([]model.TimelineEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := t.q.QueryContext(ctx,
		`SELECT id, post_id, retweet_id
		 FROM timeline_entries
		 WHERE `+authorFilter+`
		 ORDER BY id DESC
		 LIMIT ? OFFSET ?`,
		filter.AuthorID, filter.AuthorID, filter.AuthorID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]model.TimelineEntry, 0, limit)
	for rows.Next() {
		var (
			e                 model.TimelineEntry
			postID, retweetID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &postID, &retweetID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning timeline row: %w", err)
		}
		e.Ref = refFromNulls(postID, retweetID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating timeline: %w", err)
	}
	return entries, nil
}

func (t *TimelineDB) Count(ctx context.Context, filter repository.TimelineFilter) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_entries WHERE `+authorFilter,
		filter.AuthorID, filter.AuthorID, filter.AuthorID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting timeline: %w", err)
	}
	return n, nil
}

func (t *TimelineDB) DeleteByRef(ctx context.Context, ref model.Ref) (int64, error) {
	column, id, err := refColumn(ref)
	if err != nil {
		return 0, err
	}
	res, err := t.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM timeline_entries WHERE %s = ?`, column), id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing %s %d from timeline: %w", ref.Kind(), id, err)
	}
	return rowsAffected(res)
}

func (t *TimelineDB) DeleteByAuthor(ctx context.Context, userID int64) (int64, error) {
	res, err := t.q.ExecContext(ctx,
		`DELETE FROM timeline_entries
		 WHERE post_id IN (SELECT id FROM posts WHERE user_id = ?)
		    OR retweet_id IN (SELECT id FROM retweets WHERE user_id = ?)`,
		userID, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing timeline entries of user %d: %w", userID, err)
	}
	return rowsAffected(res)
}
