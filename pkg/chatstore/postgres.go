package chatstore

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql, used by migrations

	"github.com/parley-ai/parley/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Postgres implements Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, applies pending migrations, and returns the store.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if err := runMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// runMigrations applies embedded migrations through a short-lived
// database/sql connection; the pgx pool never sees DDL.
func runMigrations(databaseURL string) error {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "parley", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return source.Close()
}

func (p *Postgres) CreateChat(ctx context.Context, sessionID, title string) (*models.Chat, error) {
	chat := &models.Chat{ID: uuid.New().String(), SessionID: sessionID, Title: title}
	row := p.pool.QueryRow(ctx,
		`INSERT INTO chats (id, session_id, title) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		chat.ID, sessionID, title)
	if err := row.Scan(&chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (p *Postgres) ListChats(ctx context.Context, sessionID string) ([]models.Chat, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, title, created_at, updated_at
		 FROM chats WHERE session_id = $1 ORDER BY updated_at DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (p *Postgres) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	err := p.pool.QueryRow(ctx,
		`SELECT id, session_id, title, created_at, updated_at FROM chats WHERE id = $1`,
		id).Scan(&c.ID, &c.SessionID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, chat_id, role, text, metadata, created_at
		 FROM chat_messages WHERE chat_id = $1 ORDER BY id ASC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("get chat messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m   models.ChatMessage
			raw []byte
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Text, &raw, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		c.Messages = append(c.Messages, m)
	}
	return &c, rows.Err()
}

func (p *Postgres) AppendMessage(ctx context.Context, chatID, role, text string, metadata map[string]any) (*models.ChatMessage, error) {
	var raw []byte
	if len(metadata) > 0 {
		var err error
		if raw, err = json.Marshal(metadata); err != nil {
			return nil, fmt.Errorf("encode message metadata: %w", err)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	msg := &models.ChatMessage{ChatID: chatID, Role: role, Text: text, Metadata: metadata}
	err = tx.QueryRow(ctx,
		`INSERT INTO chat_messages (chat_id, role, text, metadata) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		chatID, role, text, raw).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("append message: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("touch chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

func (p *Postgres) DeleteChat(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ClearSession(ctx context.Context, sessionID string) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chats WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear session: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM chats WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old chats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) Healthy(ctx context.Context) bool {
	return p.pool.Ping(ctx) == nil
}

func (p *Postgres) Close() { p.pool.Close() }

// isForeignKeyViolation matches the Postgres 23503 error class without
// importing pgconn directly into every caller.
func isForeignKeyViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return false
}
