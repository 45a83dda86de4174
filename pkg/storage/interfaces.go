package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
)

// NewUser carries the fields needed to create a local account.
// VerificationToken and TokenExpiresAt are nil when email verification
// is disabled; the account is then created verified.
type NewUser struct {
	Name              string
	Email             string
	PasswordDigest    string
	VerificationToken *string
	TokenExpiresAt    *time.Time
	Verified          bool
}

// ProfileUpdate carries the mutable profile fields. Role changes are
// only honored for staff callers; the API layer enforces that.
type ProfileUpdate struct {
	Name        string
	Email       string
	Role        auth.Role
	Description *string
	Avatar      *string
}

// UserStore is the account persistence contract.
type UserStore interface {
	CreateUser(ctx context.Context, nu NewUser) (*User, error)
	// CreateFederatedUser creates a verified account bound to an OAuth
	// identity, with no password.
	CreateFederatedUser(ctx context.Context, name, email, provider, subject string) (*User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetUserByLogin matches name or email, the way the login form does.
	GetUserByLogin(ctx context.Context, login string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, subject string) (*User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*User, error)

	// BindProvider overwrites the user's federated identity binding.
	BindProvider(ctx context.Context, userID uuid.UUID, provider, subject string) error

	ListUsers(ctx context.Context, offset, limit int) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	PublicProfile(ctx context.Context, id uuid.UUID) (*PublicUser, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, up ProfileUpdate) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordDigest string) error
	TouchLastOnline(ctx context.Context, id uuid.UUID) error

	SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	// ConsumeVerificationToken marks the owning account verified and
	// clears the token. Returns ErrNotFound for unknown or expired tokens.
	ConsumeVerificationToken(ctx context.Context, token string) error
	// ClearExpiredTokens removes verification and reset tokens past
	// their expiry. Run by the janitor.
	ClearExpiredTokens(ctx context.Context) (int64, error)

	WarnUser(ctx context.Context, userID uuid.UUID, comment *string, warnedBy uuid.UUID, banDays *int) error
	UnbanUser(ctx context.Context, userID uuid.UUID) error
	ListWarnings(ctx context.Context, userID uuid.UUID, since *time.Time) ([]Warning, error)

	ListUserPosts(ctx context.Context, userID uuid.UUID) ([]Post, error)
	ListUserThreads(ctx context.Context, userID uuid.UUID) ([]Thread, error)

	SendPrivateMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string) error
	ListPrivateMessages(ctx context.Context, recipientID uuid.UUID, offset, limit int) ([]PrivateMessage, error)
}

// ForumStore is the content persistence contract.
type ForumStore interface {
	CreateSection(ctx context.Context, name, description string, allowedFor []auth.Role) (int64, error)
	// ListSections returns the sections visible to the given role.
	// A nil role means an anonymous caller.
	ListSections(ctx context.Context, viewer *User) ([]Section, error)
	DeleteSection(ctx context.Context, id int64) error

	CreateThread(ctx context.Context, authorID uuid.UUID, sectionID int64, title, content string) (int64, error)
	GetThread(ctx context.Context, id int64) (*Thread, error)
	ListThreads(ctx context.Context, sectionID int64, offset, limit int) ([]ThreadListItem, error)
	UpdateThread(ctx context.Context, id int64, title, content string) error
	DeleteThread(ctx context.Context, id int64) error
	LockThread(ctx context.Context, id int64, locked bool) error

	AddPost(ctx context.Context, authorID uuid.UUID, threadID int64, content string, replyTo *int64) error
	ListPosts(ctx context.Context, threadID int64, offset, limit int) ([]Post, error)
	UpdatePost(ctx context.Context, id int64, content string) error
	DeletePost(ctx context.Context, id int64) error
	GetPostAuthor(ctx context.Context, id int64) (*uuid.UUID, error)
	// CountPostsSince counts posts created after the given post. Used
	// for the no-delete-after-replies rule.
	CountPostsSince(ctx context.Context, postID int64) (int64, error)

	ListChat(ctx context.Context, limit int) ([]ChatMessage, error)
	PostChat(ctx context.Context, authorID uuid.UUID, content string) error
	DeleteChat(ctx context.Context, id int64) error
}
