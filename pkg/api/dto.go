package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/presence"
	"github.com/quillforum/quill/pkg/storage"
)

// statusResponse is the generic mutation reply.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(message string) statusResponse {
	return statusResponse{Status: "success", Message: message}
}

// loginResponse answers login, verification, and logout.
type loginResponse struct {
	Status string    `json:"status"`
	Role   auth.Role `json:"role"`
	Token  string    `json:"token"`
}

// userView is the caller's own account, with credential fields
// stripped.
type userView struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	Verified    bool       `json:"verified"`
	Description *string    `json:"description,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
	BannedUntil *time.Time `json:"bannedUntil,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func newUserView(u *storage.User) userView {
	return userView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Verified:    u.Verified,
		Description: u.Description,
		Avatar:      u.Avatar,
		BannedUntil: u.BannedUntil,
		CreatedAt:   u.CreatedAt,
	}
}

type meResponse struct {
	Status string   `json:"status"`
	User   userView `json:"user"`
}

type userListResponse struct {
	Status  string     `json:"status"`
	Users   []userView `json:"users"`
	Results int64      `json:"results"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type updateUserRequest struct {
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	Description *string `json:"description"`
	Avatar      *string `json:"avatar"`
}

type warnUserRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	Comment *string   `json:"comment"`
	BanDays *int      `json:"ban_days"`
}

type unbanUserRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type sendMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
}

type createSectionRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AllowedFor  []string `json:"allowed_for"`
}

type createThreadRequest struct {
	Section int64  `json:"section"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateThreadRequest struct {
	ThreadID int64  `json:"thread_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

type threadIDRequest struct {
	ThreadID int64 `json:"thread_id"`
}

type lockThreadRequest struct {
	ThreadID int64 `json:"thread_id"`
	Locked   bool  `json:"locked"`
}

type replyRequest struct {
	ThreadID int64  `json:"thread_id"`
	Content  string `json:"content"`
	ReplyTo  *int64 `json:"reply_to"`
}

type updatePostRequest struct {
	PostID  int64  `json:"post_id"`
	Content string `json:"content"`
}

type postIDRequest struct {
	PostID int64 `json:"post_id"`
}

type chatPostRequest struct {
	Content string `json:"content"`
}

type sectionsResponse struct {
	Sections []storage.Section `json:"sections"`
}

type threadsResponse struct {
	Threads []storage.ThreadListItem `json:"threads"`
}

type threadResponse struct {
	Info  *storage.Thread `json:"info"`
	Posts []storage.Post  `json:"posts"`
}

type postsResponse struct {
	Posts []storage.Post `json:"posts"`
}

type userThreadsResponse struct {
	Threads []storage.Thread `json:"threads"`
}

type warningsResponse struct {
	Warnings []storage.Warning `json:"warnings"`
}

type messagesResponse struct {
	Messages []storage.PrivateMessage `json:"pms"`
}

type chatResponse struct {
	Messages []storage.ChatMessage `json:"messages"`
}

type activeUsersResponse struct {
	Count int                    `json:"count"`
	Users []presence.UserSession `json:"users"`
}
