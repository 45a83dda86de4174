package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillforum/quill/pkg/auth"
	"github.com/quillforum/quill/pkg/storage"
)

// CreateSection inserts a section and its role visibility rows. An
// empty allowedFor list makes the section public.
func (s *Store) CreateSection(ctx context.Context, name, description string, allowedFor []auth.Role) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sections (name, description) VALUES ($1, $2) RETURNING id`,
		name, description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating section: %w", mapError(err))
	}

	for _, role := range allowedFor {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sections_allowed (section, role) VALUES ($1, $2)`,
			id, role.String()); err != nil {
			return 0, fmt.Errorf("binding section role: %w", mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing section: %w", err)
	}
	return id, nil
}

// ListSections returns sections visible to the viewer: sections with no
// visibility rows are public, the rest require the viewer's role. The
// NewPosts flag compares each section's latest post against the
// viewer's last_online.
func (s *Store) ListSections(ctx context.Context, viewer *storage.User) ([]storage.Section, error) {
	var rows *sql.Rows
	var err error

	if viewer == nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT s.id, s.name, s.description, FALSE
			FROM sections s
			WHERE NOT EXISTS (SELECT 1 FROM sections_allowed a WHERE a.section = s.id)
			ORDER BY s.id`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT s.id, s.name, s.description,
			       COALESCE(u.last_online IS NOT NULL AND EXISTS (
			           SELECT 1 FROM posts p
			           INNER JOIN threads t ON p.topic = t.id
			           WHERE t.section = s.id AND p.created_at > u.last_online
			       ), FALSE)
			FROM sections s
			CROSS JOIN users u
			WHERE u.id = $1
			  AND (NOT EXISTS (SELECT 1 FROM sections_allowed a WHERE a.section = s.id)
			       OR EXISTS (SELECT 1 FROM sections_allowed a WHERE a.section = s.id AND a.role = $2))
			ORDER BY s.id`,
			viewer.ID, viewer.Role.String())
	}
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}
	defer rows.Close()

	var sections []storage.Section
	for rows.Next() {
		var sec storage.Section
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Description, &sec.NewPosts); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// DeleteSection removes a section; threads cascade.
func (s *Store) DeleteSection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting section: %w", err)
	}
	return requireRow(res)
}

// CreateThread inserts a thread and returns its id.
func (s *Store) CreateThread(ctx context.Context, authorID uuid.UUID, sectionID int64, title, content string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO threads (title, content, author, section)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		title, content, authorID, sectionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating thread: %w", mapError(err))
	}
	return id, nil
}

// GetThread loads a thread by id.
func (s *Store) GetThread(ctx context.Context, id int64) (*storage.Thread, error) {
	var t storage.Thread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, author, section, locked, sticky, created_at
		FROM threads WHERE id = $1`, id).Scan(
		&t.ID, &t.Title, &t.Content, &t.AuthorID, &t.SectionID, &t.Locked, &t.Sticky, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting thread: %w", mapError(err))
	}
	return &t, nil
}

// ListThreads returns a page of a section's threads, newest first, with
// sticky threads pinned on top.
func (s *Store) ListThreads(ctx context.Context, sectionID int64, offset, limit int) ([]storage.ThreadListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.content, t.author, t.section, t.locked, t.sticky, t.created_at, u.name
		FROM threads t
		INNER JOIN users u ON t.author = u.id
		WHERE t.section = $1
		ORDER BY t.sticky DESC, t.id DESC
		LIMIT $2 OFFSET $3`,
		sectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var threads []storage.ThreadListItem
	for rows.Next() {
		var t storage.ThreadListItem
		if err := rows.Scan(&t.ID, &t.Title, &t.Content, &t.AuthorID, &t.SectionID,
			&t.Locked, &t.Sticky, &t.CreatedAt, &t.AuthorName); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// UpdateThread replaces a thread's title and opening content.
func (s *Store) UpdateThread(ctx context.Context, id int64, title, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET title = $2, content = $3 WHERE id = $1`,
		id, title, content)
	if err != nil {
		return fmt.Errorf("updating thread: %w", err)
	}
	return requireRow(res)
}

// DeleteThread removes a thread; posts cascade.
func (s *Store) DeleteThread(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	return requireRow(res)
}

// LockThread sets the thread's locked flag.
func (s *Store) LockThread(ctx context.Context, id int64, locked bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET locked = $2 WHERE id = $1`, id, locked)
	if err != nil {
		return fmt.Errorf("locking thread: %w", err)
	}
	return requireRow(res)
}

// AddPost appends a reply to a thread.
func (s *Store) AddPost(ctx context.Context, authorID uuid.UUID, threadID int64, content string, replyTo *int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (content, author, topic, reply_to) VALUES ($1, $2, $3, $4)`,
		content, authorID, threadID, replyTo)
	if err != nil {
		return fmt.Errorf("adding post: %w", mapError(err))
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]storage.Post, error) {
	var posts []storage.Post
	for rows.Next() {
		var p storage.Post
		if err := rows.Scan(&p.ID, &p.Content, &p.AuthorID, &p.AuthorName, &p.ThreadID,
			&p.ReplyTo, &p.Likes, &p.CreatedAt, &p.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPosts returns a page of a thread's posts in reading order.
// Author names resolve through a left join so deleted accounts show
// with a nil name.
func (s *Store) ListPosts(ctx context.Context, threadID int64, offset, limit int) ([]storage.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.content, p.author, u.name, p.topic, p.reply_to, p.likes, p.created_at, p.modified_at
		FROM posts p
		LEFT JOIN users u ON u.id = p.author
		WHERE p.topic = $1
		ORDER BY p.created_at ASC
		LIMIT $2 OFFSET $3`,
		threadID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePost replaces a post's content and stamps the edit.
func (s *Store) UpdatePost(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET content = $2, modified_at = NOW() WHERE id = $1`,
		id, content)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}
	return requireRow(res)
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	return requireRow(res)
}

// GetPostAuthor returns the post's author, nil for deleted accounts.
func (s *Store) GetPostAuthor(ctx context.Context, id int64) (*uuid.UUID, error) {
	var author *uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT author FROM posts WHERE id = $1`, id).Scan(&author)
	if err != nil {
		return nil, fmt.Errorf("getting post author: %w", mapError(err))
	}
	return author, nil
}

// CountPostsSince counts posts in the same thread created after the
// given post.
func (s *Store) CountPostsSince(ctx context.Context, postID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM posts
		WHERE topic = (SELECT topic FROM posts WHERE id = $1)
		  AND created_at > (SELECT created_at FROM posts WHERE id = $1)`,
		postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting posts since: %w", err)
	}
	return count, nil
}

// ListChat returns the most recent shoutbox messages, newest first.
func (s *Store) ListChat(ctx context.Context, limit int) ([]storage.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.author, u.name, c.content, c.added
		FROM chat_posts c
		INNER JOIN users u ON c.author = u.id
		ORDER BY c.added DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat: %w", err)
	}
	defer rows.Close()

	var messages []storage.ChatMessage
	for rows.Next() {
		var m storage.ChatMessage
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.AuthorName, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// PostChat appends a shoutbox message.
func (s *Store) PostChat(ctx context.Context, authorID uuid.UUID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_posts (author, content) VALUES ($1, $2)`,
		authorID, content)
	if err != nil {
		return fmt.Errorf("posting chat: %w", mapError(err))
	}
	return nil
}

// DeleteChat removes a shoutbox message.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	return requireRow(res)
}
