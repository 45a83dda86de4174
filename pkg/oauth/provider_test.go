package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testCredentials() Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://forum.example/auth/google/callback",
	}
}

// fakeProviderServer stands in for a provider's token and userinfo
// endpoints.
func fakeProviderServer(t *testing.T, userinfoBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fake-access-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, userinfoBody)
	})
	return httptest.NewServer(mux)
}

func pointAtServer(p *Provider, server *httptest.Server) {
	p.conf.Endpoint = oauth2.Endpoint{
		AuthURL:  server.URL + "/authorize",
		TokenURL: server.URL + "/token",
	}
	p.userInfoURL = server.URL + "/userinfo"
}

func TestStartBuildsAuthorizationURL(t *testing.T) {
	p := NewFacebook(testCredentials())

	authURL, state, pkceVerifier := p.Start()
	require.NotEmpty(t, state)
	assert.Empty(t, pkceVerifier)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "email public_profile", q.Get("scope"))
	assert.Equal(t, "https://forum.example/auth/google/callback", q.Get("redirect_uri"))
}

func TestStartGooglePKCE(t *testing.T) {
	p := NewGoogle(testCredentials(), nil)

	authURL, state, pkceVerifier := p.Start()
	require.NotEmpty(t, state)
	require.NotEmpty(t, pkceVerifier)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEqual(t, pkceVerifier, q.Get("code_challenge"))
}

func TestStartStatesAreUnique(t *testing.T) {
	p := NewDiscord(testCredentials())

	_, first, _ := p.Start()
	_, second, _ := p.Start()
	assert.NotEqual(t, first, second)
}

func TestExchangeAndFetchProfile(t *testing.T) {
	server := fakeProviderServer(t, `{"sub":"g-123","email":"alice@example.com","name":"Alice","picture":"https://img.example/alice"}`)
	defer server.Close()

	p := NewGoogle(testCredentials(), nil)
	pointAtServer(p, server)

	token, err := p.Exchange(context.Background(), "auth-code", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "fake-access-token", token.AccessToken)

	profile, err := p.FetchProfile(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "g-123", profile.Subject)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "https://img.example/alice", profile.Avatar)
}

func TestExchangeFailureWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewDiscord(testCredentials())
	pointAtServer(p, server)

	_, err := p.Exchange(context.Background(), "bad-code", "")
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestFetchProfileRefusesRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data", http.StatusFound)
	}))
	defer server.Close()

	p := NewGoogle(testCredentials(), nil)
	pointAtServer(p, server)

	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "tok"})
	require.ErrorIs(t, err, ErrProfileFetch)
	assert.Contains(t, err.Error(), "302")
}

func TestFetchProfileNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewDiscord(testCredentials())
	pointAtServer(p, server)

	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "tok"})
	require.ErrorIs(t, err, ErrProfileFetch)
	assert.Contains(t, err.Error(), "token expired")
}

func TestFetchProfileFacebookQueryToken(t *testing.T) {
	var gotToken, gotAuthHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		gotAuthHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"fb-9","name":"Bob","email":"bob@example.com"}`)
	}))
	defer server.Close()

	p := NewFacebook(testCredentials())
	pointAtServer(p, server)

	profile, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "fb-token"})
	require.NoError(t, err)
	assert.Equal(t, "fb-token", gotToken)
	assert.Empty(t, gotAuthHeader)
	assert.Equal(t, "fb-9", profile.Subject)
}

func TestFetchProfileMissingSubject(t *testing.T) {
	server := fakeProviderServer(t, `{"email":"nobody@example.com"}`)
	defer server.Close()

	p := NewGoogle(testCredentials(), nil)
	pointAtServer(p, server)

	_, err := p.FetchProfile(context.Background(), &oauth2.Token{AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrProfileFetch)
}

func TestParseDiscordProfile(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
		wantAva  string
	}{
		{
			name:     "global name preferred",
			body:     `{"id":"d-1","username":"gamer123","global_name":"Gamer","email":"g@example.com","avatar":"abc"}`,
			wantName: "Gamer",
			wantAva:  "https://cdn.discordapp.com/avatars/d-1/abc.png",
		},
		{
			name:     "username fallback",
			body:     `{"id":"d-2","username":"gamer123","email":"g@example.com"}`,
			wantName: "gamer123",
			wantAva:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := parseDiscordProfile([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, profile.DisplayName)
			assert.Equal(t, tt.wantAva, profile.Avatar)
		})
	}
}

func TestParseFacebookProfileNestedPicture(t *testing.T) {
	body := `{"id":"fb-1","name":"Carol","email":"c@example.com","picture":{"data":{"url":"https://img.example/c","width":50,"height":50}}}`
	profile, err := parseFacebookProfile([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/c", profile.Avatar)
}
