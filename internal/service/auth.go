// Authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register accounts with a username, email and password
//   - Check credentials and issue session tokens
//   - Orchestrate the GitHub OAuth callback when GitHub login is configured

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/chirp/internal/apperror"
	"github.com/sakif/chirp/internal/auth"
	"github.com/sakif/chirp/internal/model"
	"github.com/sakif/chirp/internal/repository"
)

const (
	MinUsernameLength = 2
	MaxUsernameLength = 20
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → generate/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the caller
// (the HTTP handler) can set the cookie and respond in one step.
// TTL is the token lifetime; the handler uses it as the cookie's MaxAge.
type AuthResult struct {
	User  *model.User
	Token string
	TTL   time.Duration
}

// Register creates a password account.
//
// All field checks run before bcrypt, which is deliberately slow. A taken
// username or email comes back from the repository as apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	email, err = validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, logFailure(s.logger, "registering user", err, slog.String("username", username))
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks a username and password and issues a session token.
//
// Unknown usernames and wrong passwords get the same error, so the response
// doesn't reveal which usernames exist. Accounts created through GitHub have
// no password and can only sign in through GitHub.
func (s *AuthService) Login(ctx context.Context, username, password string, remember bool) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid username or password")

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, logFailure(s.logger, "looking up user", err)
	}
	if user.PasswordHash == "" {
		return nil, invalid
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, invalid
	}

	ttl := auth.SessionTTL
	if remember {
		ttl = auth.RememberTTL
	}
	return s.issue(user, ttl)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// After the handler exchanges the GitHub code for a GitHubUser profile, it
// calls this method to:
//
//  1. Upsert the user (create on first login, refresh the email afterwards)
//  2. Generate a JWT access token for the user
//  3. Return both so the handler can set the HttpOnly cookie and redirect
//
// If the GitHub login is already taken by a password account, the new
// account gets "<login>-<githubID>" instead.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	githubID := ghUser.ID
	user := &model.User{
		Username: ghUser.Login,
		Email:    ghUser.EmailOrNoreply(),
		GitHubID: &githubID,
	}

	err := s.users.Upsert(ctx, user)
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrConflict) && appErr.Field == "username" {
		user.Username = fmt.Sprintf("%s-%d", ghUser.Login, ghUser.ID)
		err = s.users.Upsert(ctx, user)
	}
	if err != nil {
		return nil, logFailure(s.logger, "upserting GitHub user", err, slog.Int64("githubID", ghUser.ID))
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(user, auth.SessionTTL)
}

func (s *AuthService) issue(user *model.User, ttl time.Duration) (*AuthResult, error) {
	token, err := s.tokens.GenerateWithDuration(user.ID, ttl)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token, TTL: ttl}, nil
}

// GetUserByID returns the user for the given internal ID.
//
// Used by the /api/me handler after the middleware validated the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "user ID must be positive")
	}
	return s.users.GetByID(ctx, id)
}

// ValidateToken validates a JWT string and returns the userID it encodes.
// It is the validator behind auth.RequireAuth and auth.OptionalAuth.
func (s *AuthService) ValidateToken(tokenStr string) (int64, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return 0, fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if strings.ContainsAny(username, " \t\n/") {
		return "", apperror.ValidationFailed("username", "username cannot contain spaces or slashes")
	}
	return username, nil
}

// validateEmail accepts a bare address only ("a@b.c", not "A <a@b.c>").
func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", apperror.ValidationFailed("email", "enter a valid email address")
	}
	return strings.ToLower(email), nil
}
