package monzo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/SscSPs/bank_importers/internal/utils"
	"golang.org/x/oauth2"
)

const stateBytes = 16

// Authenticator obtains and refreshes API tokens with the OAuth2
// authorization-code and refresh-token grants.
type Authenticator struct {
	oauth *oauth2.Config
	store ports.TokenStore
	now   func() time.Time
}

// NewAuthenticator creates an Authenticator for the configured OAuth client.
func NewAuthenticator(cfg *config.Config, store ports.TokenStore) *Authenticator {
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.MonzoClientID,
			ClientSecret: cfg.MonzoClientSecret,
			RedirectURL:  cfg.MonzoRedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.MonzoAuthURL,
				TokenURL:  cfg.MonzoAPIRoot + "oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		now:   time.Now,
	}
}

// Ensure returns a usable access token:
//   - no stored token: run the interactive authorisation
//   - access token without refresh token: fail with ErrRefreshTokenMissing
//   - expired access token, or one whose expiry is unknown: refresh it
//   - otherwise reuse the stored token
func (a *Authenticator) Ensure(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	access, refresh, err := a.store.Load()
	if err != nil {
		return "", err
	}

	switch {
	case access == "":
		return a.Authorize(ctx, in, out)
	case refresh == "":
		return "", fmt.Errorf("delete the token file and authorise again: %w", apperrors.ErrRefreshTokenMissing)
	case utils.AccessTokenExpired(access, a.now()):
		return a.Refresh(ctx)
	default:
		return access, nil
	}
}

// Authorize prints the authorisation URL, reads the redirect URL the user pastes
// back from in and exchanges its code for tokens, which are then stored.
func (a *Authenticator) Authorize(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	state, err := utils.RandomURLToken(stateBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	fmt.Fprintf(out, "Open this URL in a browser to authorise access:\n\n%s\n\n", a.oauth.AuthCodeURL(state))
	fmt.Fprint(out, "Paste the FULL redirect URL here: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read redirect URL: %w", err)
	}
	redirect, err := url.Parse(strings.TrimSpace(line))
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", apperrors.ErrValidation)
	}

	q := redirect.Query()
	if q.Get("state") != state {
		return "", fmt.Errorf("possible CSRF, aborting: %w", apperrors.ErrStateMismatch)
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: %s", apperrors.ErrOAuthProvider, e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL carries no code: %w", apperrors.ErrValidation)
	}

	tok, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorisation code: %w", err)
	}
	if err := a.store.Save(tok.AccessToken, tok.RefreshToken); err != nil {
		return "", err
	}
	logger.InfoContext(ctx, "Authorised banking API access")
	return tok.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new access token and stores
// both. The previous refresh token is kept when the response carries none.
func (a *Authenticator) Refresh(ctx context.Context) (string, error) {
	_, refresh, err := a.store.Load()
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", fmt.Errorf("delete the token file and authorise again: %w", apperrors.ErrRefreshTokenMissing)
	}

	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refresh
	}
	if err := a.store.Save(tok.AccessToken, tok.RefreshToken); err != nil {
		return "", err
	}
	middleware.GetLoggerFromCtx(ctx).DebugContext(ctx, "Refreshed access token", slog.Time("expiry", tok.Expiry))
	return tok.AccessToken, nil
}
