package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Provider names as stored in the users table.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderDiscord  = "discord"
)

// Profile is the provider-independent identity a callback yields.
type Profile struct {
	Subject     string
	Email       string
	DisplayName string
	Avatar      string
}

// Credentials is one provider's client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// IDTokenVerifier checks an OIDC id_token. Satisfied by
// *oidc.IDTokenVerifier; nil disables the check.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// Provider is one federated login backend behind the shared
// start/exchange/fetch surface.
type Provider struct {
	name        string
	conf        *oauth2.Config
	userInfoURL string
	// Facebook takes the access token as a query parameter; the others
	// want a Bearer header.
	tokenInQuery bool
	usePKCE      bool
	parseProfile func([]byte) (Profile, error)
	verifier     IDTokenVerifier

	// httpClient never follows redirects; a redirecting token or
	// userinfo endpoint is treated as hostile.
	httpClient *http.Client
}

// noRedirectClient returns an HTTP client that refuses to follow
// redirects on provider calls.
func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewGoogle creates the Google provider. Google is the only provider
// that runs PKCE; pass a verifier to also check the id_token returned
// alongside the access token, or nil to skip that.
func NewGoogle(creds Credentials, verifier IDTokenVerifier) *Provider {
	return &Provider{
		name: ProviderGoogle,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: []string{"email", "profile"},
		},
		userInfoURL:  "https://www.googleapis.com/oauth2/v3/userinfo",
		usePKCE:      true,
		parseProfile: parseGoogleProfile,
		verifier:     verifier,
		httpClient:   noRedirectClient(),
	}
}

// NewFacebook creates the Facebook provider.
func NewFacebook(creds Credentials) *Provider {
	return &Provider{
		name: ProviderFacebook,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
			},
			Scopes: []string{"email", "public_profile"},
		},
		userInfoURL:  "https://graph.facebook.com/v19.0/me?fields=id,name,email,picture",
		tokenInQuery: true,
		parseProfile: parseFacebookProfile,
		httpClient:   noRedirectClient(),
	}
}

// NewDiscord creates the Discord provider.
func NewDiscord(creds Credentials) *Provider {
	return &Provider{
		name: ProviderDiscord,
		conf: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
			Scopes: []string{"identify", "email"},
		},
		userInfoURL:  "https://discord.com/api/users/@me",
		parseProfile: parseDiscordProfile,
		httpClient:   noRedirectClient(),
	}
}

// NewGoogleVerifier builds an id_token verifier against Google's OIDC
// discovery document. Called once at startup; it performs a network
// fetch.
func NewGoogleVerifier(ctx context.Context, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("discovering Google OIDC configuration: %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// Name returns the provider's stored name.
func (p *Provider) Name() string {
	return p.name
}

// UsesPKCE reports whether the flow carries a PKCE verifier.
func (p *Provider) UsesPKCE() bool {
	return p.usePKCE
}

// newState generates the random CSRF state for one flow.
func newState() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random state: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Start builds the authorization URL for one flow. The returned state
// must round-trip through the flow cookies; pkceVerifier is empty for
// providers that do not run PKCE.
func (p *Provider) Start() (authURL, state, pkceVerifier string) {
	state = newState()

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if p.usePKCE {
		pkceVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(pkceVerifier))
	}

	return p.conf.AuthCodeURL(state, opts...), state, pkceVerifier
}

// Exchange trades the authorization code for a token. The exchange
// goes over the non-redirecting client.
func (p *Provider) Exchange(ctx context.Context, code, pkceVerifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	var opts []oauth2.AuthCodeOption
	if p.usePKCE {
		opts = append(opts, oauth2.VerifierOption(pkceVerifier))
	}

	token, err := p.conf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	if p.verifier != nil {
		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			return nil, fmt.Errorf("%w: missing id_token in response", ErrTokenExchange)
		}
		if _, err := p.verifier.Verify(ctx, rawIDToken); err != nil {
			return nil, fmt.Errorf("%w: verifying id_token: %v", ErrTokenExchange, err)
		}
	}

	return token, nil
}

// FetchProfile retrieves the user's identity from the provider's
// userinfo endpoint, with redirects disabled.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	infoURL := p.userInfoURL
	if p.tokenInQuery {
		u, err := url.Parse(infoURL)
		if err != nil {
			return Profile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
		}
		q := u.Query()
		q.Set("access_token", token.AccessToken)
		u.RawQuery = q.Encode()
		infoURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	if !p.tokenInQuery {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: reading body: %v", ErrProfileFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: status %d: %s", ErrProfileFetch, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	profile, err := p.parseProfile(body)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	if profile.Subject == "" {
		return Profile{}, fmt.Errorf("%w: missing subject in response", ErrProfileFetch)
	}
	return profile, nil
}

func parseGoogleProfile(body []byte) (Profile, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, fmt.Errorf("decoding userinfo: %w", err)
	}
	return Profile{
		Subject:     info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		Avatar:      info.Picture,
	}, nil
}

func parseFacebookProfile(body []byte) (Profile, error) {
	var info struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, fmt.Errorf("decoding userinfo: %w", err)
	}
	return Profile{
		Subject:     info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		Avatar:      info.Picture.Data.URL,
	}, nil
}

func parseDiscordProfile(body []byte) (Profile, error) {
	var info struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Avatar     string `json:"avatar"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Profile{}, fmt.Errorf("decoding userinfo: %w", err)
	}
	name := info.GlobalName
	if name == "" {
		name = info.Username
	}
	avatar := ""
	if info.Avatar != "" {
		avatar = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", info.ID, info.Avatar)
	}
	return Profile{
		Subject:     info.ID,
		Email:       info.Email,
		DisplayName: name,
		Avatar:      avatar,
	}, nil
}
