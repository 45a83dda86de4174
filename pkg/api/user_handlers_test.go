package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/storage"
)

func (e *testEnv) seedUser(name string, role auth.Role) *storage.User {
	return e.users.add(&storage.User{Name: name, Email: name + "@example.com", Role: role, Verified: true})
}

func futureTime() time.Time {
	return time.Now().Add(time.Hour)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/users/me", nil, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, "alice", resp.User.Name)
}

func TestMeUnauthenticated(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeBanned(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)
	until := futureTime()
	user.BannedUntil = &until

	rec := env.do(t, http.MethodGet, "/users/me", nil, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/users/user/"+user.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestGetUserDeletedFallback(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/users/user/"+uuid.NewString(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Deleted User")
}

func TestGetUserBadID(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/users/user/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOwnProfile(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/user/"+user.ID.String(), updateUserRequest{
		Name: "alice2", Email: "alice2@example.com", Role: "user",
	}, user)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice2", env.users.profileEdits[user.ID].Name)
}

func TestUpdateOtherProfileAsUser(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)
	other := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/user/"+other.ID.String(), updateUserRequest{
		Name: "bob2", Email: "bob2@example.com", Role: "user",
	}, user)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.users.profileEdits)
}

func TestUpdateOtherProfileAsMod(t *testing.T) {
	env := newTestEnv(t, false)
	mod := env.seedUser("mod", auth.RoleMod)
	other := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/user/"+other.ID.String(), updateUserRequest{
		Name: "bob2", Email: "bob2@example.com", Role: "mod",
	}, mod)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, auth.RoleMod, env.users.profileEdits[other.ID].Role)
}

func TestUpdateProfileRoleEscalation(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/user/"+user.ID.String(), updateUserRequest{
		Name: "alice", Email: "alice@example.com", Role: "admin",
	}, user)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot change role")
}

func TestUpdateProfileUnknownRole(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/user/"+user.ID.String(), updateUserRequest{
		Name: "alice", Email: "alice@example.com", Role: "superuser",
	}, user)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser("alice", auth.RoleUser)
	env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/users/list", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 2)
	assert.EqualValues(t, 2, resp.Results)
}

func TestWarnUser(t *testing.T) {
	env := newTestEnv(t, false)
	mod := env.seedUser("mod", auth.RoleMod)
	target := env.seedUser("bob", auth.RoleUser)

	comment := "spamming"
	days := 3
	rec := env.do(t, http.MethodPut, "/users/warn", warnUserRequest{
		UserID: target.ID, Comment: &comment, BanDays: &days,
	}, mod)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []uuid.UUID{target.ID}, env.users.warned)
	assert.NotNil(t, target.BannedUntil)
}

func TestWarnUserRequiresStaff(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.seedUser("alice", auth.RoleUser)
	target := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodPut, "/users/warn", warnUserRequest{UserID: target.ID}, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.users.warned)
}

func TestWarnUnknownUser(t *testing.T) {
	env := newTestEnv(t, false)
	mod := env.seedUser("mod", auth.RoleMod)

	rec := env.do(t, http.MethodPut, "/users/warn", warnUserRequest{UserID: uuid.New()}, mod)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnbanUser(t *testing.T) {
	env := newTestEnv(t, false)
	admin := env.seedUser("admin", auth.RoleAdmin)
	target := env.seedUser("bob", auth.RoleUser)
	until := futureTime()
	target.BannedUntil = &until

	rec := env.do(t, http.MethodPut, "/users/unban", unbanUserRequest{UserID: target.ID}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, target.BannedUntil)
	assert.Equal(t, []uuid.UUID{target.ID}, env.users.unbanned)
}

func TestSendPrivateMessage(t *testing.T) {
	env := newTestEnv(t, false)
	sender := env.seedUser("alice", auth.RoleUser)
	recipient := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/message", sendMessageRequest{
		RecipientID: recipient.ID, Content: "hello",
	}, sender)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.users.sentMessages)
}

func TestSendPrivateMessageUnknownRecipient(t *testing.T) {
	env := newTestEnv(t, false)
	sender := env.seedUser("alice", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/message", sendMessageRequest{
		RecipientID: uuid.New(), Content: "hello",
	}, sender)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendPrivateMessageEmptyContent(t *testing.T) {
	env := newTestEnv(t, false)
	sender := env.seedUser("alice", auth.RoleUser)
	recipient := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodPost, "/users/message", sendMessageRequest{
		RecipientID: recipient.ID,
	}, sender)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPrivateMessagesRequiresAuth(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/users/pms", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserWarningsRequiresAuth(t *testing.T) {
	env := newTestEnv(t, false)
	target := env.seedUser("bob", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/users/"+target.ID.String()+"/warnings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
