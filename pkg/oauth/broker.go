package oauth

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/middleware"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/presence"
)

// Flow cookie name prefixes. The full cookie name embeds the state
// value so concurrent flows from one browser do not clobber each
// other.
const (
	csrfCookiePrefix = "csrf_token_"
	pkceCookiePrefix = "pkce_verifier_"
)

// flowCookieMaxAge bounds how long an unfinished flow stays resumable.
const flowCookieMaxAge = 600

// Broker owns the federated login flow: start redirects, callback
// validation, profile reconciliation, and session issuance.
type Broker struct {
	providers  map[string]*Provider
	reconciler *Reconciler
	codec      *auth.Codec
	registry   *presence.Registry
	metrics    *observability.Metrics
	logger     *observability.Logger
	secure     bool
}

// NewBroker creates the broker over the given providers. A provider
// absent from the map is disabled; its endpoints answer 501.
func NewBroker(providers []*Provider, reconciler *Reconciler, codec *auth.Codec, registry *presence.Registry, metrics *observability.Metrics, logger *observability.Logger, secureCookies bool) *Broker {
	byName := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Broker{
		providers:  byName,
		reconciler: reconciler,
		codec:      codec,
		registry:   registry,
		metrics:    metrics,
		logger:     logger,
		secure:     secureCookies,
	}
}

// Register mounts the start and callback routes on the router.
func (b *Broker) Register(router *mux.Router) {
	router.HandleFunc("/auth/{provider}", b.HandleStart).Methods(http.MethodGet)
	router.HandleFunc("/auth/{provider}/callback", b.HandleCallback).Methods(http.MethodGet)
}

func (b *Broker) provider(r *http.Request) *Provider {
	return b.providers[mux.Vars(r)["provider"]]
}

func (b *Broker) flowCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// HandleStart begins a flow: generates the state, persists it (and the
// PKCE verifier where applicable) in flow cookies, and redirects to the
// provider's authorization endpoint.
func (b *Broker) HandleStart(w http.ResponseWriter, r *http.Request) {
	provider := b.provider(r)
	if provider == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, ErrProviderDisabled.Error())
		return
	}

	authURL, state, pkceVerifier := provider.Start()

	http.SetCookie(w, b.flowCookie(csrfCookiePrefix+state, state, flowCookieMaxAge))
	if provider.UsesPKCE() {
		http.SetCookie(w, b.flowCookie(pkceCookiePrefix+state, pkceVerifier, flowCookieMaxAge))
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// loginResponse is the callback success body.
type loginResponse struct {
	Status string    `json:"status"`
	Role   auth.Role `json:"role"`
	Token  string    `json:"token"`
}

// HandleCallback completes a flow: validates the CSRF state against the
// flow cookie by exact string equality, exchanges the code, fetches the
// profile, reconciles it to an account, and issues the session cookie.
func (b *Broker) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := b.provider(r)
	if provider == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, ErrProviderDisabled.Error())
		return
	}

	logger := observability.FromContext(r.Context()).WithField("provider", provider.Name())

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		b.fail(w, provider, "missing code or state parameter")
		return
	}

	csrfCookie, err := r.Cookie(csrfCookiePrefix + state)
	if err != nil {
		b.fail(w, provider, ErrMissingCSRF.Error())
		return
	}
	if csrfCookie.Value != state {
		b.fail(w, provider, ErrCSRFMismatch.Error())
		return
	}

	pkceVerifier := ""
	if provider.UsesPKCE() {
		pkceCookie, err := r.Cookie(pkceCookiePrefix + state)
		if err != nil {
			b.fail(w, provider, ErrMissingPKCE.Error())
			return
		}
		pkceVerifier = pkceCookie.Value
	}

	// Flow cookies are single-use.
	http.SetCookie(w, b.flowCookie(csrfCookiePrefix+state, "", -1))
	if provider.UsesPKCE() {
		http.SetCookie(w, b.flowCookie(pkceCookiePrefix+state, "", -1))
	}

	token, err := provider.Exchange(r.Context(), code, pkceVerifier)
	if err != nil {
		logger.WithError(err).Warn("code exchange failed")
		b.fail(w, provider, err.Error())
		return
	}

	profile, err := provider.FetchProfile(r.Context(), token)
	if err != nil {
		logger.WithError(err).Warn("profile fetch failed")
		b.fail(w, provider, err.Error())
		return
	}

	user, err := b.reconciler.Reconcile(r.Context(), provider.Name(), profile)
	if err != nil {
		logger.WithError(err).Error("reconciling federated identity failed")
		if b.metrics != nil {
			b.metrics.OAuthCallbacksTotal.WithLabelValues(provider.Name(), "failure").Inc()
		}
		httputil.WriteInternalError(w)
		return
	}

	sessionToken, err := b.codec.Issue(user.ID.String())
	if err != nil {
		logger.WithError(err).Error("issuing session token failed")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(b.codec.TTL().Seconds()),
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})

	b.registry.Add(user.ID, user.Name)
	if b.metrics != nil {
		b.metrics.OAuthCallbacksTotal.WithLabelValues(provider.Name(), "success").Inc()
		b.metrics.LoginsTotal.WithLabelValues(provider.Name()).Inc()
	}
	logger.WithField("user_id", user.ID.String()).Info("federated login completed")

	httputil.WriteSuccess(w, loginResponse{
		Status: "success",
		Role:   user.Role,
		Token:  sessionToken,
	})
}

// fail answers a flow-integrity or provider failure. These all surface
// as 400 with the message; the access token never appears in a body.
func (b *Broker) fail(w http.ResponseWriter, provider *Provider, message string) {
	if b.metrics != nil {
		b.metrics.OAuthCallbacksTotal.WithLabelValues(provider.Name(), "failure").Inc()
	}
	httputil.WriteBadRequest(w, message)
}
