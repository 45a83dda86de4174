package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/middleware"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/storage"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = 30 * time.Minute
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" {
		httputil.WriteBadRequest(w, "name and email are required")
		return
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	nu := storage.NewUser{
		Name:           req.Name,
		Email:          req.Email,
		PasswordDigest: digest,
		Verified:       !s.verificationRequired,
	}

	token := uuid.NewString()
	if s.verificationRequired {
		expiresAt := time.Now().Add(verificationTokenTTL)
		nu.VerificationToken = &token
		nu.TokenExpiresAt = &expiresAt
	}

	user, err := s.users.CreateUser(r.Context(), nu)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.WriteConflict(w, "name or email already taken")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("creating account failed")
		httputil.WriteInternalError(w)
		return
	}

	message := "Registration successful!"
	if s.verificationRequired {
		message += " Please check your email to verify your account."
		if err := s.mailer.SendVerification(r.Context(), user.Email, user.Name, token); err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("sending verification email failed")
		}
	}

	httputil.WriteCreated(w, success(message))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.GetUserByLogin(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("login lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	if user.IsBanned() {
		httputil.WriteForbidden(w, "account is banned")
		return
	}
	if user.Password == "" {
		// Federated account with no local credential.
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	ok, err := s.hasher.Verify(req.Password, user.Password)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("password verification failed")
		httputil.WriteInternalError(w)
		return
	}
	if !ok {
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	s.issueSession(w, r, user, "password")
}

// issueSession signs a token for the user, sets the cookie, and stamps
// the presence registry.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, user *storage.User, method string) {
	token, err := s.codec.Issue(user.ID.String())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("issuing session token failed")
		httputil.WriteInternalError(w)
		return
	}

	http.SetCookie(w, s.sessionCookie(token, int(s.codec.TTL().Seconds())))
	s.registry.Add(user.ID, user.Name)
	if err := s.users.TouchLastOnline(r.Context(), user.ID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("updating last-online failed")
	}
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(method).Inc()
	}

	httputil.WriteSuccess(w, loginResponse{Status: "success", Role: user.Role, Token: token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Only the cookie is cleared. The registry entry is left to age out
	// of the active window; absence of activity is the end-of-session
	// signal, not logout.
	http.SetCookie(w, s.sessionCookie("", -1))
	httputil.WriteSuccess(w, loginResponse{Status: "success", Role: auth.RoleUser})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}

	user, err := s.users.GetUserByVerificationToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteBadRequest(w, "invalid verification token")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("verification lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	if user.TokenExpiresAt == nil || time.Now().After(*user.TokenExpiresAt) {
		httputil.WriteBadRequest(w, "verification token expired")
		return
	}

	if err := s.users.ConsumeVerificationToken(r.Context(), token); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("consuming verification token failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.mailer.SendWelcome(r.Context(), user.Email, user.Name); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("sending welcome email failed")
	}

	sessionToken, err := s.codec.Issue(user.ID.String())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("issuing session token failed")
		httputil.WriteInternalError(w)
		return
	}
	http.SetCookie(w, s.sessionCookie(sessionToken, int(s.codec.TTL().Seconds())))
	s.registry.Add(user.ID, user.Name)

	http.Redirect(w, r, s.publicURL+"/settings", http.StatusFound)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteBadRequest(w, "unknown email address")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("reset lookup failed")
		httputil.WriteInternalError(w)
		return
	}

	token := uuid.NewString()
	if err := s.users.SetVerificationToken(r.Context(), user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("storing reset token failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.mailer.SendPasswordReset(r.Context(), user.Email, user.Name, token); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("sending reset email failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, success("Password reset link has been sent to your email."))
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.GetUserByVerificationToken(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteBadRequest(w, "invalid reset token")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("reset lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	if user.TokenExpiresAt == nil || time.Now().After(*user.TokenExpiresAt) {
		httputil.WriteBadRequest(w, "reset token expired")
		return
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := s.users.UpdatePassword(r.Context(), user.ID, digest); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("updating password failed")
		httputil.WriteInternalError(w)
		return
	}
	if err := s.users.ConsumeVerificationToken(r.Context(), req.Token); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("consuming reset token failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, success("Password has been successfully reset."))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if user.Password == "" {
		httputil.WriteBadRequest(w, "account has no local password")
		return
	}

	ok, err := s.hasher.Verify(req.OldPassword, user.Password)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("password verification failed")
		httputil.WriteInternalError(w)
		return
	}
	if !ok {
		httputil.WriteBadRequest(w, "old password does not match")
		return
	}

	digest, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := s.users.UpdatePassword(r.Context(), user.ID, digest); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("updating password failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, success("Password updated successfully"))
}
