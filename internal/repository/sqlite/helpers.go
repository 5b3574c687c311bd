package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/model"
)

// expectRows turns "0 rows affected" into NotFound.
func expectRows(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// refFromNulls rebuilds a model.Ref from the two nullable reference columns.
func refFromNulls(postID, retweetID sql.NullInt64) model.Ref {
	var ref model.Ref
	if postID.Valid {
		id := postID.Int64
		ref.PostID = &id
	}
	if retweetID.Valid {
		id := retweetID.Int64
		ref.RetweetID = &id
	}
	return ref
}

// refColumn returns the column name and value to match a ref against.
func refColumn(ref model.Ref) (string, int64, error) {
	if !ref.Valid() {
		return "", 0, fmt.Errorf("sqlite: ref must point at exactly one post or retweet")
	}
	if ref.PostID != nil {
		return "post_id", *ref.PostID, nil
	}
	return "retweet_id", *ref.RetweetID, nil
}
