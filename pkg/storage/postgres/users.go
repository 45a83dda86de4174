package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/storage"
)

const userColumns = `id, name, email, password, role, verified, verification_token, token_expires_at,
	description, avatar, banned_until, last_online, oauth_provider, oauth_subject, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*storage.User, error) {
	var u storage.User
	var role string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Password, &role, &u.Verified,
		&u.VerificationToken, &u.TokenExpiresAt, &u.Description, &u.Avatar,
		&u.BannedUntil, &u.LastOnline, &u.OAuthProvider, &u.OAuthSubject,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role, err = auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &u, nil
}

// CreateUser inserts a local account and returns the stored row.
func (s *Store) CreateUser(ctx context.Context, nu storage.NewUser) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password, role, verified, verification_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		nu.Name, nu.Email, nu.PasswordDigest, auth.RoleUser.String(), nu.Verified,
		nu.VerificationToken, nu.TokenExpiresAt,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", mapError(err))
	}
	return user, nil
}

// CreateFederatedUser inserts a verified, passwordless account bound to
// an OAuth identity.
func (s *Store) CreateFederatedUser(ctx context.Context, name, email, provider, subject string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, role, verified, oauth_provider, oauth_subject)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING `+userColumns,
		name, email, auth.RoleUser.String(), provider, subject,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("creating federated user: %w", mapError(err))
	}
	return user, nil
}

// GetUserByID loads a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", mapError(err))
	}
	return user, nil
}

// GetUserByLogin matches name or email, the way the login form submits.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE name = $1 OR email = $1`, login)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user by login: %w", mapError(err))
	}
	return user, nil
}

// GetUserByEmail loads a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", mapError(err))
	}
	return user, nil
}

// GetUserByProvider loads the user bound to a federated identity.
func (s *Store) GetUserByProvider(ctx context.Context, provider, subject string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_subject = $2`,
		provider, subject)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user by provider: %w", mapError(err))
	}
	return user, nil
}

// GetUserByVerificationToken loads the user holding the given token.
func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("getting user by token: %w", mapError(err))
	}
	return user, nil
}

// BindProvider overwrites the user's federated identity binding.
func (s *Store) BindProvider(ctx context.Context, userID uuid.UUID, provider, subject string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET oauth_provider = $2, oauth_subject = $3, updated_at = NOW()
		WHERE id = $1`,
		userID, provider, subject)
	if err != nil {
		return fmt.Errorf("binding provider: %w", mapError(err))
	}
	return requireRow(res)
}

// ListUsers returns a page of users ordered by creation.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]storage.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// PublicProfile returns the profile card with the post count joined in.
func (s *Store) PublicProfile(ctx context.Context, id uuid.UUID) (*storage.PublicUser, error) {
	var p storage.PublicUser
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.role, u.description, u.avatar,
		       COUNT(p.id), COALESCE(u.banned_until > NOW(), FALSE), u.last_online, u.created_at
		FROM users u
		LEFT JOIN posts p ON p.author = u.id
		WHERE u.id = $1
		GROUP BY u.id`, id).Scan(
		&p.ID, &p.Name, &role, &p.Description, &p.Avatar,
		&p.PostCount, &p.Banned, &p.LastOnline, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("getting public profile: %w", mapError(err))
	}
	if p.Role, err = auth.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %s: %w", p.ID, err)
	}
	return &p, nil
}

// UpdateProfile updates the mutable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, up storage.ProfileUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, role = $4, description = $5, avatar = $6, updated_at = NOW()
		WHERE id = $1`,
		id, up.Name, up.Email, up.Role.String(), up.Description, up.Avatar)
	if err != nil {
		return fmt.Errorf("updating profile: %w", mapError(err))
	}
	return requireRow(res)
}

// UpdatePassword replaces the stored password digest.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, passwordDigest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordDigest)
	if err != nil {
		return fmt.Errorf("updating password: %w", mapError(err))
	}
	return requireRow(res)
}

// TouchLastOnline stamps the user's activity time.
func (s *Store) TouchLastOnline(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_online = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching last online: %w", err)
	}
	return nil
}

// SetVerificationToken stores a fresh verification or reset token.
func (s *Store) SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, token, expiresAt)
	if err != nil {
		return fmt.Errorf("setting verification token: %w", mapError(err))
	}
	return requireRow(res)
}

// ConsumeVerificationToken marks the owning account verified and clears
// the token. Expired tokens do not match.
func (s *Store) ConsumeVerificationToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verified = TRUE, verification_token = NULL, token_expires_at = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND token_expires_at > NOW()`,
		token)
	if err != nil {
		return fmt.Errorf("consuming verification token: %w", err)
	}
	return requireRow(res)
}

// ClearExpiredTokens removes tokens past their expiry.
func (s *Store) ClearExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token = NULL, token_expires_at = NULL
		WHERE token_expires_at IS NOT NULL AND token_expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("clearing expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// WarnUser records a warning and, when banDays is set, bans the user
// for that many days.
func (s *Store) WarnUser(ctx context.Context, userID uuid.UUID, comment *string, warnedBy uuid.UUID, banDays *int) error {
	banned := banDays != nil
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_warnings (user_id, comment, warned_by, banned)
		VALUES ($1, $2, $3, $4)`,
		userID, comment, warnedBy, banned)
	if err != nil {
		return fmt.Errorf("warning user: %w", mapError(err))
	}

	if banDays != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE users SET banned_until = NOW() + make_interval(days => $2), updated_at = NOW()
			WHERE id = $1`,
			userID, *banDays)
		if err != nil {
			return fmt.Errorf("banning user: %w", err)
		}
	}
	return nil
}

// UnbanUser clears the user's ban.
func (s *Store) UnbanUser(ctx context.Context, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET banned_until = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("unbanning user: %w", err)
	}
	return requireRow(res)
}

// ListWarnings returns the user's warnings, optionally since a cutoff.
func (s *Store) ListWarnings(ctx context.Context, userID uuid.UUID, since *time.Time) ([]storage.Warning, error) {
	cutoff := time.Time{}
	if since != nil {
		cutoff = *since
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.user_id, w.comment, u.name, w.banned, w.warn_time
		FROM user_warnings w
		INNER JOIN users u ON w.warned_by = u.id
		WHERE w.user_id = $1 AND w.warn_time > $2
		ORDER BY w.warn_time DESC`,
		userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing warnings: %w", err)
	}
	defer rows.Close()

	var warnings []storage.Warning
	for rows.Next() {
		var w storage.Warning
		if err := rows.Scan(&w.ID, &w.UserID, &w.Comment, &w.WarnedBy, &w.Banned, &w.WarnedAt); err != nil {
			return nil, fmt.Errorf("scanning warning: %w", err)
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// ListUserPosts returns all posts authored by the user.
func (s *Store) ListUserPosts(ctx context.Context, userID uuid.UUID) ([]storage.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, author, NULL, topic, reply_to, likes, created_at, modified_at
		FROM posts WHERE author = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// ListUserThreads returns all threads started by the user.
func (s *Store) ListUserThreads(ctx context.Context, userID uuid.UUID) ([]storage.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, author, section, locked, sticky, created_at
		FROM threads WHERE author = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user threads: %w", err)
	}
	defer rows.Close()

	var threads []storage.Thread
	for rows.Next() {
		var t storage.Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.Content, &t.AuthorID, &t.SectionID, &t.Locked, &t.Sticky, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// SendPrivateMessage stores a direct message.
func (s *Store) SendPrivateMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO private_messages (author, receiver, content) VALUES ($1, $2, $3)`,
		senderID, recipientID, content)
	if err != nil {
		return fmt.Errorf("sending private message: %w", mapError(err))
	}
	return nil
}

// ListPrivateMessages returns a page of the user's inbox.
func (s *Store) ListPrivateMessages(ctx context.Context, recipientID uuid.UUID, offset, limit int) ([]storage.PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, receiver, content, created_at
		FROM private_messages
		WHERE receiver = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing private messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.PrivateMessage
	for rows.Next() {
		var m storage.PrivateMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning private message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// requireRow maps a zero-row update onto ErrNotFound.
func requireRow(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
