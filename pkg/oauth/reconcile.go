package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quillforum/quill/pkg/storage"
)

// Reconciler binds a fetched profile to a local account. The lookup
// order is load-bearing: a provider-subject match must win over an
// email match, so a reused email never silently re-binds a different
// provider account.
type Reconciler struct {
	users storage.UserStore
}

// NewReconciler creates a reconciler over the given user store.
func NewReconciler(users storage.UserStore) *Reconciler {
	return &Reconciler{users: users}
}

// Reconcile finds or creates the account for a federated identity.
//
// 1. An account already bound to (provider, subject) is returned as is.
// 2. Otherwise an account matching the profile email gains the binding,
//    overwriting any previous one.
// 3. Otherwise a new verified account is created with the binding set.
func (r *Reconciler) Reconcile(ctx context.Context, provider string, profile Profile) (*storage.User, error) {
	user, err := r.users.GetUserByProvider(ctx, provider, profile.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("looking up federated identity: %w", err)
	}

	if profile.Email != "" {
		user, err = r.users.GetUserByEmail(ctx, profile.Email)
		if err == nil {
			if err := r.users.BindProvider(ctx, user.ID, provider, profile.Subject); err != nil {
				return nil, fmt.Errorf("binding provider to existing account: %w", err)
			}
			user.OAuthProvider = &provider
			subject := profile.Subject
			user.OAuthSubject = &subject
			return user, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("looking up account by email: %w", err)
		}
	}

	name := profile.DisplayName
	if name == "" {
		name = localPart(profile.Email)
	}

	user, err = r.users.CreateFederatedUser(ctx, name, profile.Email, provider, profile.Subject)
	if err != nil {
		return nil, fmt.Errorf("creating federated account: %w", err)
	}
	return user, nil
}

// localPart derives a username from the part of an email before the @.
func localPart(email string) string {
	if local, _, found := strings.Cut(email, "@"); found && local != "" {
		return local
	}
	return "user"
}
