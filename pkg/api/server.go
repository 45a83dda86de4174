package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/mail"
	"github.com/quillforum/quill/pkg/middleware"
	"github.com/quillforum/quill/pkg/oauth"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/presence"
	"github.com/quillforum/quill/pkg/storage"
)

// Server holds the API's collaborators and the router they hang off.
type Server struct {
	router   *mux.Router
	users    storage.UserStore
	forum    storage.ForumStore
	codec    *auth.Codec
	hasher   *auth.Hasher
	registry *presence.Registry
	mailer   mail.Mailer
	metrics  *observability.Metrics
	logger   *observability.Logger

	// publicURL is the base for verification and reset links.
	publicURL string
	// verificationRequired gates whether new accounts must confirm
	// their email before being marked verified.
	verificationRequired bool
	secureCookies        bool

	requireAuth  func(http.Handler) http.Handler
	optionalAuth func(http.Handler) http.Handler
	notBanned    func(http.Handler) http.Handler
	staffOnly    func(http.Handler) http.Handler
	adminOnly    func(http.Handler) http.Handler
}

// Options configures a Server.
type Options struct {
	Users    storage.UserStore
	Forum    storage.ForumStore
	Codec    *auth.Codec
	Hasher   *auth.Hasher
	Registry *presence.Registry
	Mailer   mail.Mailer
	Metrics  *observability.Metrics
	Logger   *observability.Logger
	// Broker mounts the federated login routes. It should be present
	// even with no providers configured so the endpoints answer 501
	// instead of 404; nil skips the routes entirely.
	Broker *oauth.Broker

	PublicURL            string
	VerificationRequired bool
	SecureCookies        bool
}

// NewServer builds the API server and mounts every route.
func NewServer(opts Options) *Server {
	s := &Server{
		router:               mux.NewRouter(),
		users:                opts.Users,
		forum:                opts.Forum,
		codec:                opts.Codec,
		hasher:               opts.Hasher,
		registry:             opts.Registry,
		mailer:               opts.Mailer,
		metrics:              opts.Metrics,
		logger:               opts.Logger,
		publicURL:            opts.PublicURL,
		verificationRequired: opts.VerificationRequired,
		secureCookies:        opts.SecureCookies,
	}

	s.requireAuth = middleware.NewAuth(opts.Codec, opts.Users, opts.Metrics, false).Handler
	s.optionalAuth = middleware.NewAuth(opts.Codec, opts.Users, opts.Metrics, true).Handler
	s.notBanned = middleware.RequireNotBanned(opts.Metrics)
	s.staffOnly = middleware.RequireRoles(opts.Metrics, auth.RoleAdmin, auth.RoleMod)
	s.adminOnly = middleware.RequireRoles(opts.Metrics, auth.RoleAdmin)

	s.setupRoutes(opts.Broker)
	return s
}

// Router exposes the configured router for the HTTP server and for
// outer middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes(broker *oauth.Broker) {
	// Account lifecycle. Fixed paths are registered before the broker's
	// {provider} routes so they match first.
	s.router.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	s.router.Handle("/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/verify", s.handleVerifyEmail).Methods(http.MethodGet)
	s.router.HandleFunc("/auth/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	s.router.Handle("/auth/change-password", s.requireAuth(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)

	if broker != nil {
		broker.Register(s.router)
	}

	// Users.
	s.router.Handle("/users/me", s.requireAuth(s.notBanned(http.HandlerFunc(s.handleMe)))).Methods(http.MethodGet)
	s.router.HandleFunc("/users/list", s.handleListUsers).Methods(http.MethodGet)
	s.router.Handle("/users/message", s.requireAuth(http.HandlerFunc(s.handleSendMessage))).Methods(http.MethodPost)
	s.router.Handle("/users/pms", s.requireAuth(http.HandlerFunc(s.handleListMessages))).Methods(http.MethodGet)
	s.router.Handle("/users/warn", s.requireAuth(s.staffOnly(http.HandlerFunc(s.handleWarnUser)))).Methods(http.MethodPut)
	s.router.Handle("/users/unban", s.requireAuth(s.staffOnly(http.HandlerFunc(s.handleUnbanUser)))).Methods(http.MethodPut)
	s.router.HandleFunc("/users/user/{id}", s.handleGetUser).Methods(http.MethodGet)
	s.router.Handle("/users/user/{id}", s.requireAuth(http.HandlerFunc(s.handleUpdateUser))).Methods(http.MethodPost)
	s.router.HandleFunc("/users/{id}/posts", s.handleUserPosts).Methods(http.MethodGet)
	s.router.HandleFunc("/users/{id}/threads", s.handleUserThreads).Methods(http.MethodGet)
	s.router.Handle("/users/{id}/warnings", s.requireAuth(http.HandlerFunc(s.handleUserWarnings))).Methods(http.MethodGet)

	// Forum.
	s.router.Handle("/forum/list", s.optionalAuth(http.HandlerFunc(s.handleListSections))).Methods(http.MethodGet)
	s.router.Handle("/forum/section/add", s.requireAuth(s.adminOnly(http.HandlerFunc(s.handleCreateSection)))).Methods(http.MethodPut)
	s.router.HandleFunc("/forum/section/{id}", s.handleListThreads).Methods(http.MethodGet)
	s.router.Handle("/forum/section/{id}", s.requireAuth(s.adminOnly(http.HandlerFunc(s.handleDeleteSection)))).Methods(http.MethodDelete)
	s.router.Handle("/forum/threads/new", s.requireAuth(s.notBanned(http.HandlerFunc(s.handleCreateThread)))).Methods(http.MethodPost)
	s.router.Handle("/forum/threads/lock", s.requireAuth(s.staffOnly(http.HandlerFunc(s.handleLockThread)))).Methods(http.MethodPut)
	s.router.Handle("/forum/threads", s.requireAuth(http.HandlerFunc(s.handleUpdateThread))).Methods(http.MethodPut)
	s.router.Handle("/forum/threads", s.requireAuth(s.staffOnly(http.HandlerFunc(s.handleDeleteThread)))).Methods(http.MethodDelete)
	s.router.HandleFunc("/forum/threads/{id}", s.handleGetThread).Methods(http.MethodGet)
	s.router.Handle("/forum/post/new", s.requireAuth(s.notBanned(http.HandlerFunc(s.handleReply)))).Methods(http.MethodPost)
	s.router.Handle("/forum/post", s.requireAuth(s.notBanned(http.HandlerFunc(s.handleUpdatePost)))).Methods(http.MethodPut)
	s.router.Handle("/forum/post", s.requireAuth(s.notBanned(http.HandlerFunc(s.handleDeletePost)))).Methods(http.MethodDelete)
	s.router.HandleFunc("/forum/active", s.handleActiveUsers).Methods(http.MethodGet)
	s.router.HandleFunc("/forum/chat", s.handleListChat).Methods(http.MethodGet)
	s.router.Handle("/forum/chat", s.requireAuth(s.notBanned(http.HandlerFunc(s.handlePostChat)))).Methods(http.MethodPost)
	s.router.Handle("/forum/chat/{id}", s.requireAuth(s.staffOnly(http.HandlerFunc(s.handleDeleteChat)))).Methods(http.MethodDelete)
}

// sessionCookie builds the session cookie. An empty token with
// maxAge < 0 clears it.
func (s *Server) sessionCookie(token string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
