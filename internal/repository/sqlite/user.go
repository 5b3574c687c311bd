package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the identity store.
type UserDB struct {
	q queryer
}

const userColumns = `id, username, email, password_hash, github_id, bio, birthday,
	image_file, bg_file, joined, created_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	var githubID sql.NullInt64
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &githubID, &u.Bio, &u.Birthday,
		&u.ImageFile, &u.BgFile, &u.Joined, &u.CreatedAt,
	); err != nil {
		return err
	}
	u.GitHubID = nil
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return nil
}

// Create inserts a new user and fills in ID and CreatedAt.
// A taken username or email comes back as apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.Joined == "" {
		user.Joined = user.CreatedAt.Format(model.JoinedLayout)
	}
	if user.ImageFile == "" {
		user.ImageFile = model.DefaultProfileImage
	}
	if user.BgFile == "" {
		user.BgFile = model.DefaultBackgroundImage
	}

	res, err := u.q.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, github_id, bio, birthday,
			image_file, bg_file, joined, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.PasswordHash,
		nullableInt(user.GitHubID),
		user.Bio,
		user.Birthday,
		user.ImageFile,
		user.BgFile,
		user.Joined,
		user.CreatedAt,
	)
	if err != nil {
		if conflict := userConflict(err, user); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := scanUser(u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), &user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return &user, nil
}

// GetByUsername is the login lookup.
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := scanUser(u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username,
	), &user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return &user, nil
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	var user model.User
	err := scanUser(u.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID,
	), &user)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return &user, nil
}

// Upsert inserts or refreshes a GitHub-backed user.
//
// The internal ID and the profile fields a user edits in the app (bio,
// pictures, username) are kept on later logins; only the email GitHub
// reports is refreshed.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upsert requires a github id")
	}

	existing, err := u.GetByGitHubID(ctx, *user.GitHubID)
	switch {
	case err == nil:
		if user.Email != "" && user.Email != existing.Email {
			existing.Email = user.Email
			if err := u.Update(ctx, existing); err != nil {
				return err
			}
		}
		*user = *existing
		return nil
	case isNotFound(err):
		return u.Create(ctx, user)
	default:
		return err
	}
}

// Update saves the editable profile fields.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	res, err := u.q.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, password_hash = ?, bio = ?, birthday = ?,
		     image_file = ?, bg_file = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Bio,
		user.Birthday,
		user.ImageFile,
		user.BgFile,
		user.ID,
	)
	if err != nil {
		if conflict := userConflict(err, user); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}
	return expectRows(res, "user", user.ID)
}

// Delete removes the user row. Content must already be gone; the foreign
// keys on posts, retweets and bookmarks make this fail otherwise.
func (u *UserDB) Delete(ctx context.Context, id int64) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	return expectRows(res, "user", id)
}

// userConflict turns a UNIQUE violation into a field-level Conflict error.
func userConflict(err error, user *model.User) error {
	column, ok := isUniqueViolation(err)
	if !ok {
		return nil
	}
	switch {
	case strings.HasSuffix(column, ".username"):
		return apperror.Conflict("username", fmt.Sprintf("username %s is already taken", user.Username))
	case strings.HasSuffix(column, ".email"):
		return apperror.Conflict("email", fmt.Sprintf("email %s is already registered", user.Email))
	default:
		return apperror.Conflict("", "account already exists")
	}
}
