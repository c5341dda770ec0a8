package monzo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SscSPs/bank_importers/internal/adapters/monzo"
	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func jwtToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiry)})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// tokenServer fakes the OAuth token endpoint.
type tokenServer struct {
	*httptest.Server
	grants        []string
	refreshTokens []string
	// omitRefresh drops the refresh token from refresh grant responses.
	omitRefresh bool
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))

		grant := r.PostForm.Get("grant_type")
		ts.grants = append(ts.grants, grant)
		resp := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch grant {
		case "authorization_code":
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			resp["access_token"] = "access-1"
			resp["refresh_token"] = "refresh-1"
		case "refresh_token":
			ts.refreshTokens = append(ts.refreshTokens, r.PostForm.Get("refresh_token"))
			resp["access_token"] = "access-2"
			if !ts.omitRefresh {
				resp["refresh_token"] = "refresh-2"
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// redirectPaster answers the authorisation prompt with a redirect URL built
// from the state printed to out.
type redirectPaster struct {
	out   *bytes.Buffer
	build func(state string) string
	done  bool
}

func (p *redirectPaster) Read(b []byte) (int, error) {
	if p.done {
		return 0, io.EOF
	}
	p.done = true
	state := ""
	for _, line := range strings.Split(p.out.String(), "\n") {
		if strings.HasPrefix(line, "http") {
			u, err := url.Parse(line)
			if err == nil {
				state = u.Query().Get("state")
			}
		}
	}
	return copy(b, p.build(state)+"\n"), nil
}

type AuthenticatorTestSuite struct {
	suite.Suite
	server *tokenServer
	store  *monzo.TokenFile
	auth   *monzo.Authenticator
	ctx    context.Context
}

func (s *AuthenticatorTestSuite) SetupTest() {
	s.server = newTokenServer(s.T())
	s.store = monzo.NewTokenFile(filepath.Join(s.T().TempDir(), ".monzo_token"))
	cfg := &config.Config{
		MonzoClientID:     "client-id",
		MonzoClientSecret: "client-secret",
		MonzoRedirectURI:  "http://localhost:8080/callback",
		MonzoAuthURL:      s.server.URL + "/",
		MonzoAPIRoot:      s.server.URL + "/",
	}
	s.auth = monzo.NewAuthenticator(cfg, s.store)
	s.ctx = context.Background()
}

func TestAuthenticatorTestSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorTestSuite))
}

func (s *AuthenticatorTestSuite) paster(out *bytes.Buffer, query func(state string) url.Values) *redirectPaster {
	return &redirectPaster{out: out, build: func(state string) string {
		return "http://localhost:8080/callback?" + query(state).Encode()
	}}
}

func (s *AuthenticatorTestSuite) TestEnsure_NoTokenAuthorizes() {
	out := &bytes.Buffer{}
	in := s.paster(out, func(state string) url.Values {
		return url.Values{"code": {"the-code"}, "state": {state}}
	})

	access, err := s.auth.Ensure(s.ctx, in, out)
	s.Require().NoError(err)
	s.Equal("access-1", access)
	s.Contains(out.String(), "client_id=client-id")
	s.Contains(out.String(), "response_type=code")

	stored, refresh, err := s.store.Load()
	s.Require().NoError(err)
	s.Equal("access-1", stored)
	s.Equal("refresh-1", refresh)
}

func (s *AuthenticatorTestSuite) TestAuthorize_StateMismatch() {
	out := &bytes.Buffer{}
	in := s.paster(out, func(string) url.Values {
		return url.Values{"code": {"the-code"}, "state": {"forged"}}
	})

	_, err := s.auth.Authorize(s.ctx, in, out)
	s.ErrorIs(err, apperrors.ErrStateMismatch)
	s.True(apperrors.IsFatal(err))
	s.Empty(s.server.grants)
}

func (s *AuthenticatorTestSuite) TestAuthorize_ProviderError() {
	out := &bytes.Buffer{}
	in := s.paster(out, func(state string) url.Values {
		return url.Values{"error": {"access_denied"}, "state": {state}}
	})

	_, err := s.auth.Authorize(s.ctx, in, out)
	s.ErrorIs(err, apperrors.ErrOAuthProvider)
	s.Contains(err.Error(), "access_denied")
}

func (s *AuthenticatorTestSuite) TestEnsure_RefreshMissingIsFatal() {
	s.Require().NoError(s.store.Save("access-0", ""))

	_, err := s.auth.Ensure(s.ctx, strings.NewReader(""), io.Discard)
	s.ErrorIs(err, apperrors.ErrRefreshTokenMissing)
	s.True(apperrors.IsFatal(err))
	s.Empty(s.server.grants)
}

func (s *AuthenticatorTestSuite) TestEnsure_ExpiredTokenRefreshes() {
	s.Require().NoError(s.store.Save(jwtToken(s.T(), time.Now().Add(-time.Minute)), "refresh-0"))

	access, err := s.auth.Ensure(s.ctx, strings.NewReader(""), io.Discard)
	s.Require().NoError(err)
	s.Equal("access-2", access)
	s.Equal([]string{"refresh_token"}, s.server.grants)
	s.Equal([]string{"refresh-0"}, s.server.refreshTokens)

	stored, refresh, err := s.store.Load()
	s.Require().NoError(err)
	s.Equal("access-2", stored)
	s.Equal("refresh-2", refresh)
}

func (s *AuthenticatorTestSuite) TestEnsure_OpaqueTokenRefreshes() {
	s.Require().NoError(s.store.Save("not-a-jwt", "refresh-0"))

	access, err := s.auth.Ensure(s.ctx, strings.NewReader(""), io.Discard)
	s.Require().NoError(err)
	s.Equal("access-2", access)
}

func (s *AuthenticatorTestSuite) TestEnsure_ValidTokenReused() {
	valid := jwtToken(s.T(), time.Now().Add(time.Hour))
	s.Require().NoError(s.store.Save(valid, "refresh-0"))

	access, err := s.auth.Ensure(s.ctx, strings.NewReader(""), io.Discard)
	s.Require().NoError(err)
	s.Equal(valid, access)
	s.Empty(s.server.grants)
}

func (s *AuthenticatorTestSuite) TestRefresh_KeepsRefreshTokenWhenOmitted() {
	s.server.omitRefresh = true
	s.Require().NoError(s.store.Save("access-0", "refresh-0"))

	access, err := s.auth.Refresh(s.ctx)
	s.Require().NoError(err)
	s.Equal("access-2", access)

	_, refresh, err := s.store.Load()
	s.Require().NoError(err)
	s.Equal("refresh-0", refresh)
}
