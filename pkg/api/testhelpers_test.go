package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/mail"
	"github.com/quillforum/quill/pkg/observability"
	"github.com/quillforum/quill/pkg/presence"
	"github.com/quillforum/quill/pkg/storage"
)

// testHashParams keeps argon2 cheap in tests.
func testHashParams() auth.HashParams {
	return auth.HashParams{
		Memory:      1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// fakeUsers is an in-memory UserStore covering what the handlers
// exercise.
type fakeUsers struct {
	storage.UserStore

	users map[uuid.UUID]*storage.User

	lastNewUser   *storage.NewUser
	passwords     map[uuid.UUID]string
	resetTokens   map[uuid.UUID]string
	consumed      []string
	warned        []uuid.UUID
	unbanned      []uuid.UUID
	sentMessages  int
	profileEdits  map[uuid.UUID]storage.ProfileUpdate
	createUserErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:        make(map[uuid.UUID]*storage.User),
		passwords:    make(map[uuid.UUID]string),
		resetTokens:  make(map[uuid.UUID]string),
		profileEdits: make(map[uuid.UUID]storage.ProfileUpdate),
	}
}

func (f *fakeUsers) add(u *storage.User) *storage.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) CreateUser(_ context.Context, nu storage.NewUser) (*storage.User, error) {
	if f.createUserErr != nil {
		return nil, f.createUserErr
	}
	f.lastNewUser = &nu
	user := &storage.User{
		ID:                uuid.New(),
		Name:              nu.Name,
		Email:             nu.Email,
		Password:          nu.PasswordDigest,
		Role:              auth.RoleUser,
		Verified:          nu.Verified,
		VerificationToken: nu.VerificationToken,
		TokenExpiresAt:    nu.TokenExpiresAt,
		CreatedAt:         time.Now(),
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) GetUserByLogin(_ context.Context, login string) (*storage.User, error) {
	for _, u := range f.users {
		if u.Name == login || u.Email == login {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) GetUserByVerificationToken(_ context.Context, token string) (*storage.User, error) {
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUsers) ConsumeVerificationToken(_ context.Context, token string) error {
	f.consumed = append(f.consumed, token)
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			u.Verified = true
			u.VerificationToken = nil
			u.TokenExpiresAt = nil
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeUsers) SetVerificationToken(_ context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.VerificationToken = &token
	u.TokenExpiresAt = &expiresAt
	f.resetTokens[id] = token
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uuid.UUID, digest string) error {
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Password = digest
	f.passwords[id] = digest
	return nil
}

func (f *fakeUsers) TouchLastOnline(_ context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeUsers) PublicProfile(_ context.Context, id uuid.UUID) (*storage.PublicUser, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.PublicUser{ID: u.ID, Name: u.Name, Role: u.Role}, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, up storage.ProfileUpdate) error {
	u, ok := f.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	f.profileEdits[id] = up
	u.Name = up.Name
	u.Email = up.Email
	u.Role = up.Role
	return nil
}

func (f *fakeUsers) ListUsers(_ context.Context, offset, limit int) ([]storage.User, error) {
	out := make([]storage.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) CountUsers(_ context.Context) (int64, error) {
	return int64(len(f.users)), nil
}

func (f *fakeUsers) WarnUser(_ context.Context, userID uuid.UUID, comment *string, warnedBy uuid.UUID, banDays *int) error {
	if _, ok := f.users[userID]; !ok {
		return storage.ErrNotFound
	}
	f.warned = append(f.warned, userID)
	if banDays != nil {
		until := time.Now().Add(time.Duration(*banDays) * 24 * time.Hour)
		f.users[userID].BannedUntil = &until
	}
	return nil
}

func (f *fakeUsers) UnbanUser(_ context.Context, userID uuid.UUID) error {
	if _, ok := f.users[userID]; !ok {
		return storage.ErrNotFound
	}
	f.unbanned = append(f.unbanned, userID)
	f.users[userID].BannedUntil = nil
	return nil
}

func (f *fakeUsers) ListWarnings(_ context.Context, userID uuid.UUID, since *time.Time) ([]storage.Warning, error) {
	return nil, nil
}

func (f *fakeUsers) ListUserPosts(_ context.Context, userID uuid.UUID) ([]storage.Post, error) {
	return nil, nil
}

func (f *fakeUsers) ListUserThreads(_ context.Context, userID uuid.UUID) ([]storage.Thread, error) {
	return nil, nil
}

func (f *fakeUsers) SendPrivateMessage(_ context.Context, senderID, recipientID uuid.UUID, content string) error {
	if _, ok := f.users[recipientID]; !ok {
		return storage.ErrNotFound
	}
	f.sentMessages++
	return nil
}

func (f *fakeUsers) ListPrivateMessages(_ context.Context, recipientID uuid.UUID, offset, limit int) ([]storage.PrivateMessage, error) {
	return nil, nil
}

// fakeForum is an in-memory ForumStore.
type fakeForum struct {
	storage.ForumStore

	threads     map[int64]*storage.Thread
	postAuthors map[int64]*uuid.UUID
	replyCounts map[int64]int64

	deletedThreads []int64
	deletedPosts   []int64
	lockedThreads  map[int64]bool
	addedPosts     int
	updatedThreads []int64
	updatedPosts   []int64
	sections       []string
	chatPosts      []string
	deletedChat    []int64
}

func newFakeForum() *fakeForum {
	return &fakeForum{
		threads:     make(map[int64]*storage.Thread),
		postAuthors: make(map[int64]*uuid.UUID),
		replyCounts: make(map[int64]int64),
		lockedThreads: make(map[int64]bool),
	}
}

func (f *fakeForum) CreateSection(_ context.Context, name, description string, allowedFor []auth.Role) (int64, error) {
	f.sections = append(f.sections, name)
	return int64(len(f.sections)), nil
}

func (f *fakeForum) ListSections(_ context.Context, viewer *storage.User) ([]storage.Section, error) {
	out := []storage.Section{{ID: 1, Name: "General"}}
	if viewer != nil && viewer.Role.Staff() {
		out = append(out, storage.Section{ID: 2, Name: "Staff"})
	}
	return out, nil
}

func (f *fakeForum) DeleteSection(_ context.Context, id int64) error {
	return nil
}

func (f *fakeForum) CreateThread(_ context.Context, authorID uuid.UUID, sectionID int64, title, content string) (int64, error) {
	id := int64(len(f.threads) + 1)
	f.threads[id] = &storage.Thread{ID: id, Title: title, Content: content, AuthorID: authorID, SectionID: sectionID}
	return id, nil
}

func (f *fakeForum) GetThread(_ context.Context, id int64) (*storage.Thread, error) {
	if t, ok := f.threads[id]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeForum) ListThreads(_ context.Context, sectionID int64, offset, limit int) ([]storage.ThreadListItem, error) {
	return nil, nil
}

func (f *fakeForum) UpdateThread(_ context.Context, id int64, title, content string) error {
	if _, ok := f.threads[id]; !ok {
		return storage.ErrNotFound
	}
	f.updatedThreads = append(f.updatedThreads, id)
	return nil
}

func (f *fakeForum) DeleteThread(_ context.Context, id int64) error {
	if _, ok := f.threads[id]; !ok {
		return storage.ErrNotFound
	}
	f.deletedThreads = append(f.deletedThreads, id)
	return nil
}

func (f *fakeForum) LockThread(_ context.Context, id int64, locked bool) error {
	if _, ok := f.threads[id]; !ok {
		return storage.ErrNotFound
	}
	f.lockedThreads[id] = locked
	f.threads[id].Locked = locked
	return nil
}

func (f *fakeForum) AddPost(_ context.Context, authorID uuid.UUID, threadID int64, content string, replyTo *int64) error {
	f.addedPosts++
	return nil
}

func (f *fakeForum) ListPosts(_ context.Context, threadID int64, offset, limit int) ([]storage.Post, error) {
	return nil, nil
}

func (f *fakeForum) UpdatePost(_ context.Context, id int64, content string) error {
	f.updatedPosts = append(f.updatedPosts, id)
	return nil
}

func (f *fakeForum) DeletePost(_ context.Context, id int64) error {
	f.deletedPosts = append(f.deletedPosts, id)
	return nil
}

func (f *fakeForum) GetPostAuthor(_ context.Context, id int64) (*uuid.UUID, error) {
	author, ok := f.postAuthors[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return author, nil
}

func (f *fakeForum) CountPostsSince(_ context.Context, postID int64) (int64, error) {
	return f.replyCounts[postID], nil
}

func (f *fakeForum) ListChat(_ context.Context, limit int) ([]storage.ChatMessage, error) {
	return nil, nil
}

func (f *fakeForum) PostChat(_ context.Context, authorID uuid.UUID, content string) error {
	f.chatPosts = append(f.chatPosts, content)
	return nil
}

func (f *fakeForum) DeleteChat(_ context.Context, id int64) error {
	f.deletedChat = append(f.deletedChat, id)
	return nil
}

type testEnv struct {
	server   *Server
	users    *fakeUsers
	forum    *fakeForum
	codec    *auth.Codec
	registry *presence.Registry
}

func newTestEnv(t *testing.T, verificationRequired bool) *testEnv {
	t.Helper()

	users := newFakeUsers()
	forum := newFakeForum()
	codec := auth.NewCodec([]byte("api-test-secret"), 60)
	registry := presence.NewRegistry()

	server := NewServer(Options{
		Users:                users,
		Forum:                forum,
		Codec:                codec,
		Hasher:               auth.NewHasher(testHashParams()),
		Registry:             registry,
		Mailer:               mail.NewLogMailer(nil, "test@forum.example"),
		Logger:               observability.NewLogger(observability.ErrorLevel, io.Discard),
		PublicURL:            "http://forum.example",
		VerificationRequired: verificationRequired,
	})

	return &testEnv{server: server, users: users, forum: forum, codec: codec, registry: registry}
}

// do executes a request against the router. A non-nil user gets a
// session cookie for that principal.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, user *storage.User) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != nil {
		token, err := e.codec.Issue(user.ID.String())
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}
