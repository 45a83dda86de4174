package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/middleware"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/storage"
)

// pathUserID parses the {id} path variable as a UUID.
func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, meResponse{Status: "success", User: newUserView(user)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	profile, err := s.users.PublicProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted accounts keep their posts; the card degrades
			// instead of 404ing.
			httputil.WriteSuccess(w, storage.PublicUser{Name: "Deleted User", Role: auth.RoleUser})
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("profile lookup failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, profile)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	targetID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if targetID != principal.ID && !principal.Role.Staff() {
		httputil.WriteForbidden(w, "cannot edit another user's profile")
		return
	}

	var req updateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" {
		httputil.WriteBadRequest(w, "name and email are required")
		return
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	// Only staff may grant a role other than the one the target
	// already holds.
	if !principal.Role.Staff() && role != principal.Role {
		httputil.WriteForbidden(w, "cannot change role")
		return
	}

	err = s.users.UpdateProfile(r.Context(), targetID, storage.ProfileUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Role:        role,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httputil.WriteNotFound(w, "user not found")
		case errors.Is(err, storage.ErrDuplicate):
			httputil.WriteConflict(w, "name or email already taken")
		default:
			observability.FromContext(r.Context()).WithError(err).Error("profile update failed")
			httputil.WriteInternalError(w)
		}
		return
	}

	httputil.WriteSuccess(w, success("User updated successfully"))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page := httputil.ParsePagination(r, 10, 100)

	users, err := s.users.ListUsers(r.Context(), page.Offset(), page.PerPage)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing users failed")
		httputil.WriteInternalError(w)
		return
	}
	count, err := s.users.CountUsers(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("counting users failed")
		httputil.WriteInternalError(w)
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, newUserView(&users[i]))
	}
	httputil.WriteSuccess(w, userListResponse{Status: "success", Users: views, Results: count})
}

func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	posts, err := s.users.ListUserPosts(r.Context(), id)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing user posts failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, postsResponse{Posts: posts})
}

func (s *Server) handleUserThreads(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	threads, err := s.users.ListUserThreads(r.Context(), id)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing user threads failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, userThreadsResponse{Threads: threads})
}

func (s *Server) handleUserWarnings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	warnings, err := s.users.ListWarnings(r.Context(), id, nil)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing warnings failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, warningsResponse{Warnings: warnings})
}

func (s *Server) handleWarnUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req warnUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := s.users.WarnUser(r.Context(), req.UserID, req.Comment, principal.ID, req.BanDays); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("warning user failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("User warned"))
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	var req unbanUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := s.users.UnbanUser(r.Context(), req.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "user not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("unbanning user failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("User unbanned"))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req sendMessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RecipientID == uuid.Nil || req.Content == "" {
		httputil.WriteBadRequest(w, "recipient_id and content are required")
		return
	}

	if err := s.users.SendPrivateMessage(r.Context(), principal.ID, req.RecipientID, req.Content); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "recipient not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("sending private message failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("Private message sent"))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	page := httputil.ParsePagination(r, 10, 100)
	messages, err := s.users.ListPrivateMessages(r.Context(), principal.ID, page.Offset(), page.PerPage)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing private messages failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, messagesResponse{Messages: messages})
}
