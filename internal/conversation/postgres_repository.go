package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new conversation.
func (r *PostgresRepository) Create(ctx context.Context, c *Conversation) error {
	query := `
		INSERT INTO conversations (user_id, bot_id, title)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, c.UserID, c.BotID, c.Title).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation owned by userID.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, user_id, bot_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2`

	var c Conversation
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(
		&c.ID, &c.UserID, &c.BotID, &c.Title, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &c, nil
}

// ListByUser returns the user's conversations, most recently active first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	query := `
		SELECT id, user_id, bot_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.BotID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// AppendMessages inserts msgs and bumps the conversation's updated_at in one transaction.
func (r *PostgresRepository) AppendMessages(ctx context.Context, conversationID uuid.UUID, msgs []Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for i := range msgs {
		batch.Queue(`
			INSERT INTO messages (conversation_id, role, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			conversationID, msgs[i].Role, msgs[i].Content,
		).QueryRow(func(row pgx.Row) error {
			msgs[i].ConversationID = conversationID
			return row.Scan(&msgs[i].ID, &msgs[i].CreatedAt)
		})
	}
	batch.Queue(`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting messages: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// ListMessages returns the messages of a conversation owned by userID, oldest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]Message, error) {
	if _, err := r.GetByID(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// Delete removes a conversation and, by cascade, its messages.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}
