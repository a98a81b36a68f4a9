package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"dedup_bot/internal/model"
	"dedup_bot/migrations"
)

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
	ledger
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, ledger: ledger{q: db}}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InTx runs fn against a transaction-scoped ledger.
func (s *SQLite) InTx(ctx context.Context, fn func(Ledger) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ledger{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Policy returns the channel's policy and whether the channel is configured.
func (s *SQLite) Policy(ctx context.Context, channelID int64) (model.ChannelPolicy, bool, error) {
	p := model.ChannelPolicy{ChannelID: channelID, AllowHistoryBackfill: true}

	var check, record, history int
	err := s.db.QueryRowContext(ctx,
		`SELECT check_duplicates, record_new, allow_history_backfill
		 FROM channel_policies WHERE channel_id = ?`, channelID,
	).Scan(&check, &record, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("scan policy: %w", err)
	}

	p.CheckDuplicates = check == 1
	p.RecordNew = record == 1
	p.AllowHistoryBackfill = history == 1
	return p, true, nil
}

// SetPolicy upserts a single policy flag for a channel.
func (s *SQLite) SetPolicy(ctx context.Context, channelID int64, field model.PolicyField, value bool) error {
	// Column name is interpolated, so it must come from the known set.
	switch field {
	case model.PolicyCheckDuplicates, model.PolicyRecordNew, model.PolicyAllowHistory:
	default:
		return fmt.Errorf("unknown policy field %q", field)
	}

	query := fmt.Sprintf(
		`INSERT INTO channel_policies (channel_id, %[1]s) VALUES (?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET %[1]s = excluded.%[1]s`, field)
	if _, err := s.db.ExecContext(ctx, query, channelID, boolToInt(value)); err != nil {
		return fmt.Errorf("set policy: %w", err)
	}
	return nil
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ledger implements Ledger against either the database or a transaction.
type ledger struct {
	q dbtx
}

// RecordMessage inserts a tracked message. Collisions report created=false.
func (l ledger) RecordMessage(ctx context.Context, messageID, channelID int64) (bool, error) {
	res, err := l.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (message_id, channel_id) VALUES (?, ?)`,
		messageID, channelID,
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	return inserted(res)
}

// RecordPost inserts a tracked post. Collisions report created=false.
func (l ledger) RecordPost(ctx context.Context, postID int64, authorHandle string) (bool, error) {
	res, err := l.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO posts (post_id, author_handle) VALUES (?, ?)`,
		postID, authorHandle,
	)
	if err != nil {
		return false, fmt.Errorf("insert post: %w", err)
	}
	return inserted(res)
}

// RecordLink inserts a message-post link. Collisions report created=false.
func (l ledger) RecordLink(ctx context.Context, messageID, postID int64) (bool, error) {
	res, err := l.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO links (message_id, post_id) VALUES (?, ?)`,
		messageID, postID,
	)
	if err != nil {
		return false, fmt.Errorf("insert link: %w", err)
	}
	return inserted(res)
}

// PostExists checks whether a post is already tracked.
func (l ledger) PostExists(ctx context.Context, postID int64) (bool, error) {
	var count int
	err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE post_id = ?`, postID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	return count > 0, nil
}

// MessageExists checks whether a message is already tracked.
func (l ledger) MessageExists(ctx context.Context, messageID int64) (bool, error) {
	var count int
	err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE message_id = ?`, messageID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return count > 0, nil
}

// LinksForMessage returns the post IDs linked from a message.
func (l ledger) LinksForMessage(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT post_id FROM links WHERE message_id = ? ORDER BY post_id`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var postIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		postIDs = append(postIDs, id)
	}
	return postIDs, rows.Err()
}

// DeleteMessageCascade removes a message, its links, and any posts left
// unreferenced. Posts still linked from other messages are untouched.
func (l ledger) DeleteMessageCascade(ctx context.Context, messageID int64) error {
	postIDs, err := l.LinksForMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if _, err := l.q.ExecContext(ctx, `DELETE FROM links WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	if _, err := l.q.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	for _, postID := range postIDs {
		if _, err := l.q.ExecContext(ctx,
			`DELETE FROM posts WHERE post_id = ?
			 AND NOT EXISTS (SELECT 1 FROM links WHERE post_id = ?)`,
			postID, postID,
		); err != nil {
			return fmt.Errorf("delete orphan post: %w", err)
		}
	}
	return nil
}

// LastMessagePerChannel returns the highest tracked message ID per channel.
func (l ledger) LastMessagePerChannel(ctx context.Context) (map[int64]int64, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT channel_id, MAX(message_id) FROM messages GROUP BY channel_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query last messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	last := make(map[int64]int64)
	for rows.Next() {
		var channelID, messageID int64
		if err := rows.Scan(&channelID, &messageID); err != nil {
			return nil, fmt.Errorf("scan last message: %w", err)
		}
		last[channelID] = messageID
	}
	return last, rows.Err()
}

// ClearAll wipes every tracked message, post, and link.
func (l ledger) ClearAll(ctx context.Context) error {
	for _, table := range []string{"links", "posts", "messages"} {
		if _, err := l.q.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// ClearChannel wipes one channel's messages and links, then sweeps posts
// that no remaining link references.
func (l ledger) ClearChannel(ctx context.Context, channelID int64) error {
	if _, err := l.q.ExecContext(ctx,
		`DELETE FROM links WHERE message_id IN
		 (SELECT message_id FROM messages WHERE channel_id = ?)`, channelID,
	); err != nil {
		return fmt.Errorf("clear channel links: %w", err)
	}
	if _, err := l.q.ExecContext(ctx,
		`DELETE FROM messages WHERE channel_id = ?`, channelID,
	); err != nil {
		return fmt.Errorf("clear channel messages: %w", err)
	}
	if _, err := l.q.ExecContext(ctx,
		`DELETE FROM posts WHERE post_id NOT IN (SELECT post_id FROM links)`,
	); err != nil {
		return fmt.Errorf("sweep orphan posts: %w", err)
	}
	return nil
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
