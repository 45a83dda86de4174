package oauth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/storage"
)

type memoryUserStore struct {
	storage.UserStore

	users []*storage.User

	bindCalls   int
	createCalls int
}

func (m *memoryUserStore) GetUserByProvider(_ context.Context, provider, subject string) (*storage.User, error) {
	for _, u := range m.users {
		if u.OAuthProvider != nil && *u.OAuthProvider == provider && u.OAuthSubject != nil && *u.OAuthSubject == subject {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memoryUserStore) GetUserByEmail(_ context.Context, email string) (*storage.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memoryUserStore) BindProvider(_ context.Context, userID uuid.UUID, provider, subject string) error {
	m.bindCalls++
	for _, u := range m.users {
		if u.ID == userID {
			u.OAuthProvider = &provider
			u.OAuthSubject = &subject
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *memoryUserStore) CreateFederatedUser(_ context.Context, name, email, provider, subject string) (*storage.User, error) {
	m.createCalls++
	user := &storage.User{
		ID:            uuid.New(),
		Name:          name,
		Email:         email,
		Role:          auth.RoleUser,
		Verified:      true,
		OAuthProvider: &provider,
		OAuthSubject:  &subject,
	}
	m.users = append(m.users, user)
	return user, nil
}

func TestReconcileExistingBinding(t *testing.T) {
	provider := ProviderGoogle
	subject := "g-123"
	existing := &storage.User{
		ID:            uuid.New(),
		Name:          "alice",
		Email:         "alice@example.com",
		OAuthProvider: &provider,
		OAuthSubject:  &subject,
	}
	store := &memoryUserStore{users: []*storage.User{existing}}

	r := NewReconciler(store)
	profile := Profile{Subject: "g-123", Email: "alice@example.com", DisplayName: "Alice"}

	first, err := r.Reconcile(context.Background(), ProviderGoogle, profile)
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), ProviderGoogle, profile)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Zero(t, store.bindCalls)
	assert.Zero(t, store.createCalls)
}

func TestReconcileBindsByEmail(t *testing.T) {
	existing := &storage.User{
		ID:    uuid.New(),
		Name:  "bob",
		Email: "bob@example.com",
	}
	store := &memoryUserStore{users: []*storage.User{existing}}

	r := NewReconciler(store)
	user, err := r.Reconcile(context.Background(), ProviderDiscord, Profile{
		Subject: "d-55",
		Email:   "bob@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, user.ID)
	assert.Equal(t, 1, store.bindCalls)
	assert.Zero(t, store.createCalls)
	require.NotNil(t, user.OAuthProvider)
	assert.Equal(t, ProviderDiscord, *user.OAuthProvider)
	require.NotNil(t, user.OAuthSubject)
	assert.Equal(t, "d-55", *user.OAuthSubject)
}

func TestReconcileProviderMatchWinsOverEmail(t *testing.T) {
	provider := ProviderGoogle
	subject := "g-1"
	bound := &storage.User{
		ID:            uuid.New(),
		Name:          "bound",
		Email:         "old@example.com",
		OAuthProvider: &provider,
		OAuthSubject:  &subject,
	}
	// A different account now owns the email the profile carries.
	emailOwner := &storage.User{
		ID:    uuid.New(),
		Name:  "owner",
		Email: "reused@example.com",
	}
	store := &memoryUserStore{users: []*storage.User{bound, emailOwner}}

	r := NewReconciler(store)
	user, err := r.Reconcile(context.Background(), ProviderGoogle, Profile{
		Subject: "g-1",
		Email:   "reused@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, bound.ID, user.ID)
	assert.Zero(t, store.bindCalls)
}

func TestReconcileCreatesNewUser(t *testing.T) {
	store := &memoryUserStore{}

	r := NewReconciler(store)
	user, err := r.Reconcile(context.Background(), ProviderGoogle, Profile{
		Subject:     "g-new",
		Email:       "new@example.com",
		DisplayName: "Newcomer",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.createCalls)
	assert.Equal(t, "Newcomer", user.Name)
	assert.Equal(t, "new@example.com", user.Email)
	assert.True(t, user.Verified)
}

func TestReconcileNameFromEmailLocalPart(t *testing.T) {
	store := &memoryUserStore{}

	r := NewReconciler(store)
	user, err := r.Reconcile(context.Background(), ProviderFacebook, Profile{
		Subject: "fb-new",
		Email:   "carol.smith@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol.smith", user.Name)
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "alice", localPart("alice@example.com"))
	assert.Equal(t, "user", localPart(""))
	assert.Equal(t, "user", localPart("@example.com"))
	assert.Equal(t, "user", localPart("no-at-sign"))
}
