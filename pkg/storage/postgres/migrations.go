package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL,
					password TEXT NOT NULL DEFAULT '',
					role VARCHAR(16) NOT NULL DEFAULT 'user',
					verified BOOLEAN NOT NULL DEFAULT FALSE,
					verification_token TEXT,
					token_expires_at TIMESTAMPTZ,
					description TEXT,
					avatar TEXT,
					banned_until TIMESTAMPTZ,
					last_online TIMESTAMPTZ,
					oauth_provider VARCHAR(32),
					oauth_subject VARCHAR(255),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(name),
					UNIQUE(email)
				);

				CREATE INDEX IF NOT EXISTS idx_users_oauth ON users(oauth_provider, oauth_subject);
				CREATE INDEX IF NOT EXISTS idx_users_verification_token ON users(verification_token);
				CREATE INDEX IF NOT EXISTS idx_users_last_online ON users(last_online);
			`,
		},
		{
			Version:     2,
			Description: "Create sections and visibility tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS sections (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS sections_allowed (
					id SERIAL PRIMARY KEY,
					section BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
					role VARCHAR(16) NOT NULL,
					UNIQUE(section, role)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create threads and posts tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS threads (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(512) NOT NULL,
					content TEXT NOT NULL,
					author UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					section BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
					locked BOOLEAN NOT NULL DEFAULT FALSE,
					sticky BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_threads_section ON threads(section);
				CREATE INDEX IF NOT EXISTS idx_threads_author ON threads(author);

				CREATE TABLE IF NOT EXISTS posts (
					id BIGSERIAL PRIMARY KEY,
					content TEXT NOT NULL,
					author UUID REFERENCES users(id) ON DELETE SET NULL,
					topic BIGINT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
					reply_to BIGINT REFERENCES posts(id) ON DELETE SET NULL,
					likes INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					modified_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_posts_topic ON posts(topic);
				CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author);
			`,
		},
		{
			Version:     4,
			Description: "Create chat, private message, and warning tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS chat_posts (
					id BIGSERIAL PRIMARY KEY,
					author UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					added TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_chat_posts_added ON chat_posts(added);

				CREATE TABLE IF NOT EXISTS private_messages (
					id BIGSERIAL PRIMARY KEY,
					author UUID REFERENCES users(id) ON DELETE SET NULL,
					receiver UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					content TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_private_messages_receiver ON private_messages(receiver);

				CREATE TABLE IF NOT EXISTS user_warnings (
					id BIGSERIAL PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					comment TEXT,
					warned_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					banned BOOLEAN NOT NULL DEFAULT FALSE,
					warn_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_user_warnings_user ON user_warnings(user_id);
			`,
		},
	}
}

// Migrate applies pending migrations, tracking progress in
// schema_migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	for _, m := range GetMigrations() {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.Version, err)
		}
	}

	return nil
}
