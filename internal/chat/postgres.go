package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists chats as single-row JSONB documents. Message
// indices are assigned inside the UPDATE statement so that appends stay
// atomic at the document level without explicit locking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id TEXT PRIMARY KEY,
			ip TEXT NOT NULL DEFAULT '',
			client_id TEXT NOT NULL,
			country_id INT NOT NULL,
			provider_id INT NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]'::jsonb,
			is_terminated_by_system BOOLEAN NOT NULL DEFAULT FALSE,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			reports JSONB NOT NULL DEFAULT '[]'::jsonb,
			created TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_client ON chats (client_id, created);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const chatColumns = `chat_id, ip, client_id, country_id, provider_id, messages,
	is_terminated_by_system, is_public, reports, created, updated`

func (s *PostgresStore) Create(ctx context.Context, c Chat) (Chat, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	for i := range c.Messages {
		c.Messages[i].Index = i
		if c.Messages[i].CreatedAt.IsZero() {
			c.Messages[i].CreatedAt = now
		}
	}

	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return Chat{}, fmt.Errorf("marshal messages: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO chats (chat_id, ip, client_id, country_id, provider_id, messages)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+chatColumns,
		c.ID, c.IP, c.ClientID, c.CountryID, c.ProviderID, messages,
	)
	return scanChat(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, chatID string) (Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE chat_id = $1`, chatID)
	c, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) AppendMessage(ctx context.Context, chatID string, msg Message, terminate bool) (Chat, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Chat{}, fmt.Errorf("marshal message: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE chats
		 SET messages = messages || jsonb_build_array(
				jsonb_set($2::jsonb, '{index}', to_jsonb(jsonb_array_length(messages)))),
			 is_terminated_by_system = is_terminated_by_system OR $3,
			 updated = now()
		 WHERE chat_id = $1
		 RETURNING `+chatColumns,
		chatID, payload, terminate,
	)
	c, err := scanChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ListByClient(ctx context.Context, clientID string) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE client_id = $1 ORDER BY created DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query chats by client: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetPublic(ctx context.Context, chatID string, public bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET is_public = $2, updated = now() WHERE chat_id = $1`, chatID, public)
	if err != nil {
		return fmt.Errorf("set public flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendReport(ctx context.Context, chatID string, report Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE chats SET reports = reports || jsonb_build_array($2::jsonb), updated = now()
		 WHERE chat_id = $1`, chatID, payload)
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanChat(row pgx.Row) (Chat, error) {
	var (
		c        Chat
		messages []byte
		reports  []byte
	)
	err := row.Scan(&c.ID, &c.IP, &c.ClientID, &c.CountryID, &c.ProviderID, &messages,
		&c.TerminatedBySystem, &c.Public, &reports, &c.Created, &c.Updated)
	if err != nil {
		return Chat{}, err
	}
	if err := json.Unmarshal(messages, &c.Messages); err != nil {
		return Chat{}, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal(reports, &c.Reports); err != nil {
		return Chat{}, fmt.Errorf("unmarshal reports: %w", err)
	}
	return c, nil
}
