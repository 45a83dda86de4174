package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
)

// User is a full account row. Password holds the argon2id digest and is
// empty for accounts created through federated login.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Password          string     `json:"-"`
	Role              auth.Role  `json:"role"`
	Verified          bool       `json:"verified"`
	VerificationToken *string    `json:"-"`
	TokenExpiresAt    *time.Time `json:"-"`
	Description       *string    `json:"description,omitempty"`
	Avatar            *string    `json:"avatar,omitempty"`
	BannedUntil       *time.Time `json:"bannedUntil,omitempty"`
	LastOnline        *time.Time `json:"lastOnline,omitempty"`
	OAuthProvider     *string    `json:"-"`
	OAuthSubject      *string    `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsBanned reports whether the user's ban is still in effect.
func (u *User) IsBanned() bool {
	return u.BannedUntil != nil && u.BannedUntil.After(time.Now())
}

// PublicUser is the profile card shown to other users.
type PublicUser struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Role        auth.Role  `json:"role"`
	Description *string    `json:"description,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
	PostCount   int64      `json:"postCount"`
	Banned      bool       `json:"banned"`
	LastOnline  *time.Time `json:"lastOnline,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Section is a top-level forum category. Visibility is controlled by
// the roles bound to it; a section with no bound roles is public.
type Section struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	NewPosts    bool    `json:"newPosts"`
}

// Thread is a topic inside a section. Content is the opening message.
type Thread struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  uuid.UUID `json:"author"`
	SectionID int64     `json:"section"`
	Locked    bool      `json:"locked"`
	Sticky    bool      `json:"sticky"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadListItem is a thread row joined with its author's name for
// section listings.
type ThreadListItem struct {
	Thread
	AuthorName string `json:"authorName"`
}

// Post is a reply inside a thread. AuthorID is nil when the account was
// deleted. ReplyTo links a reply to an earlier post in the same thread.
type Post struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	AuthorID   *uuid.UUID `json:"author,omitempty"`
	AuthorName *string    `json:"authorName,omitempty"`
	ThreadID   int64      `json:"thread"`
	ReplyTo    *int64     `json:"replyTo,omitempty"`
	Likes      int32      `json:"likes"`
	CreatedAt  time.Time  `json:"createdAt"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
}

// ChatMessage is one entry in the site-wide shoutbox.
type ChatMessage struct {
	ID         int64     `json:"id"`
	AuthorID   uuid.UUID `json:"author"`
	AuthorName string    `json:"authorName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PrivateMessage is a direct message between two users.
type PrivateMessage struct {
	ID          int64      `json:"id"`
	SenderID    *uuid.UUID `json:"sender,omitempty"`
	RecipientID uuid.UUID  `json:"recipient"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Warning records a moderation action against a user.
type Warning struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user"`
	Comment    *string   `json:"comment,omitempty"`
	WarnedBy   string    `json:"warnedBy"`
	Banned     bool      `json:"banned"`
	WarnedAt   time.Time `json:"warnedAt"`
}
