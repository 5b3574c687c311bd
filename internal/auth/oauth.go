package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the part of GitHub's /user response a chirp account is built
// from. ID is stable and stored as users.github_id; Email is empty when the
// user hides it in their GitHub settings.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// EmailOrNoreply returns the user's public email, or GitHub's noreply
// address for the login when the email is hidden. Accounts need an email.
func (u *GitHubUser) EmailOrNoreply() string {
	if u.Email != "" {
		return u.Email
	}
	return fmt.Sprintf("%d+%s@users.noreply.github.com", u.ID, u.Login)
}

// GitHubProvider runs the GitHub Authorization Code flow for the optional
// "sign in with GitHub" routes. The server only builds one when
// GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are set.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

const githubAPI = "https://api.github.com"

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// OAuth App's registered callback, e.g. "http://localhost:8080/auth/github/callback".
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPI,
	}
}

func (p *GitHubProvider) userURL() string {
	return p.apiBase + "/user"
}

// AuthURL returns GitHub's authorization URL. state is the xid the login
// handler also stores in the oauth_state cookie; the callback compares them.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for an access token and fetches the
// GitHub profile with it. AuthService.LoginOrRegisterGitHub turns the
// result into a chirp account.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.userURL())
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	return &ghUser, nil
}
