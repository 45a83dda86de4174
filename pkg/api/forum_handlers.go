package api

import (
	"errors"
	"net/http"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/httputil"
	"github.com/quillforum/quill/pkg/middleware"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/presence"
	"github.com/quillforum/quill/pkg/storage"
)

const chatBacklog = 50

// touchPresence refreshes the caller's registry entry. Stamps happen
// here, per business action, never in the gates; a Busy or absent entry
// is a soft miss the next request will cover.
func (s *Server) touchPresence(r *http.Request, user *storage.User) {
	switch s.registry.Touch(user.ID) {
	case presence.Touched:
	case presence.Busy:
		observability.FromContext(r.Context()).WithField("user_id", user.ID.String()).Warn("presence entry busy, touch skipped")
	case presence.NoEntry:
		observability.FromContext(r.Context()).WithField("user_id", user.ID.String()).Warn("no presence entry to touch")
	}
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	viewer, _ := middleware.PrincipalFrom(r.Context())
	if viewer != nil {
		s.touchPresence(r, viewer)
		if err := s.users.TouchLastOnline(r.Context(), viewer.ID); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("updating last-online failed")
		}
	}

	sections, err := s.forum.ListSections(r.Context(), viewer)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing sections failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, sectionsResponse{Sections: sections})
}

func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var req createSectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	roles := make([]auth.Role, 0, len(req.AllowedFor))
	for _, raw := range req.AllowedFor {
		role, err := auth.ParseRole(raw)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		roles = append(roles, role)
	}

	if _, err := s.forum.CreateSection(r.Context(), req.Name, req.Description, roles); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httputil.WriteConflict(w, "section already exists")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("creating section failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteCreated(w, success("Section created"))
}

func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.forum.DeleteSection(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "section not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("deleting section failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("Section deleted"))
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	sectionID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	page := httputil.ParsePagination(r, 10, 100)

	threads, err := s.forum.ListThreads(r.Context(), sectionID, page.Offset(), page.PerPage)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing threads failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, threadsResponse{Threads: threads})
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createThreadRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == "" || req.Content == "" {
		httputil.WriteBadRequest(w, "title and content are required")
		return
	}

	if _, err := s.forum.CreateThread(r.Context(), principal.ID, req.Section, req.Title, req.Content); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "section not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("creating thread failed")
		httputil.WriteInternalError(w)
		return
	}
	s.touchPresence(r, principal)
	httputil.WriteCreated(w, success("thread created"))
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	page := httputil.ParsePagination(r, 10, 100)

	thread, err := s.forum.GetThread(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "thread not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("loading thread failed")
		httputil.WriteInternalError(w)
		return
	}

	posts, err := s.forum.ListPosts(r.Context(), id, page.Offset(), page.PerPage)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing posts failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, threadResponse{Info: thread, Posts: posts})
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req updateThreadRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if !principal.Role.Staff() {
		thread, err := s.forum.GetThread(r.Context(), req.ThreadID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httputil.WriteNotFound(w, "thread not found")
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("loading thread failed")
			httputil.WriteInternalError(w)
			return
		}
		if thread.AuthorID != principal.ID {
			httputil.WriteForbidden(w, "not the thread author")
			return
		}
	}

	if err := s.forum.UpdateThread(r.Context(), req.ThreadID, req.Title, req.Content); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "thread not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("updating thread failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("thread updated"))
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	var req threadIDRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.forum.DeleteThread(r.Context(), req.ThreadID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "thread not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("deleting thread failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("thread deleted"))
}

func (s *Server) handleLockThread(w http.ResponseWriter, r *http.Request) {
	var req lockThreadRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.forum.LockThread(r.Context(), req.ThreadID, req.Locked); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "thread not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("locking thread failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("thread updated"))
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req replyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Content == "" {
		httputil.WriteBadRequest(w, "content is required")
		return
	}

	thread, err := s.forum.GetThread(r.Context(), req.ThreadID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "thread not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("loading thread failed")
		httputil.WriteInternalError(w)
		return
	}
	if thread.Locked && !principal.Role.Staff() {
		httputil.WriteForbidden(w, "thread is locked")
		return
	}

	if err := s.forum.AddPost(r.Context(), principal.ID, req.ThreadID, req.Content, req.ReplyTo); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("adding post failed")
		httputil.WriteInternalError(w)
		return
	}
	s.touchPresence(r, principal)
	httputil.WriteCreated(w, success("post added"))
}

// requirePostAuthor enforces the author-or-staff rule for post edits
// and deletions.
func (s *Server) requirePostAuthor(w http.ResponseWriter, r *http.Request, principal *storage.User, postID int64) bool {
	if principal.Role.Staff() {
		return true
	}

	authorID, err := s.forum.GetPostAuthor(r.Context(), postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "post not found")
			return false
		}
		observability.FromContext(r.Context()).WithError(err).Error("loading post author failed")
		httputil.WriteInternalError(w)
		return false
	}
	if authorID == nil || *authorID != principal.ID {
		httputil.WriteForbidden(w, "not the post author")
		return false
	}
	return true
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req updatePostRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Content == "" {
		httputil.WriteBadRequest(w, "content is required")
		return
	}
	if !s.requirePostAuthor(w, r, principal, req.PostID) {
		return
	}

	if err := s.forum.UpdatePost(r.Context(), req.PostID, req.Content); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "post not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("updating post failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("post updated"))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req postIDRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !s.requirePostAuthor(w, r, principal, req.PostID) {
		return
	}

	// Plain users may only remove posts nothing has answered yet.
	if !principal.Role.Staff() {
		replies, err := s.forum.CountPostsSince(r.Context(), req.PostID)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("counting replies failed")
			httputil.WriteInternalError(w)
			return
		}
		if replies > 0 {
			httputil.WriteForbidden(w, "cannot delete posts that have answers")
			return
		}
	}

	if err := s.forum.DeletePost(r.Context(), req.PostID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "post not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("deleting post failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("post deleted"))
}

func (s *Server) handleActiveUsers(w http.ResponseWriter, r *http.Request) {
	active := s.registry.ListActive()
	httputil.WriteSuccess(w, activeUsersResponse{Count: len(active), Users: active})
}

func (s *Server) handleListChat(w http.ResponseWriter, r *http.Request) {
	messages, err := s.forum.ListChat(r.Context(), chatBacklog)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("listing chat failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, chatResponse{Messages: messages})
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req chatPostRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Content == "" {
		httputil.WriteBadRequest(w, "content is required")
		return
	}

	if err := s.forum.PostChat(r.Context(), principal.ID, req.Content); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("posting chat message failed")
		httputil.WriteInternalError(w)
		return
	}
	s.touchPresence(r, principal)
	httputil.WriteCreated(w, success("message posted"))
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.forum.DeleteChat(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httputil.WriteNotFound(w, "message not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("deleting chat message failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, success("message deleted"))
}
