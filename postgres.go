package immagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the four asset tables. Every statement is idempotent so
// InitSchema can run on every startup.
//
// tool_call_id is TEXT, not UUID: provider call identifiers are opaque
// strings chosen by the completion provider.
const schema = `
CREATE TABLE IF NOT EXISTS text_assets (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	role TEXT NOT NULL,
	content TEXT,
	tool_calls JSONB,
	tool_call_id TEXT,
	input_tokens INTEGER,
	output_tokens INTEGER
);

CREATE TABLE IF NOT EXISTS conversations (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	message_ids UUID[] NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	name TEXT NOT NULL,
	system_prompt_id UUID NOT NULL REFERENCES text_assets(id),
	parent_id UUID REFERENCES agents(id) ON DELETE SET NULL,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	model TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	model_config JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_agents_conversation_id ON agents(conversation_id);
CREATE INDEX IF NOT EXISTS idx_agents_parent_id ON agents(parent_id);
CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name);
CREATE INDEX IF NOT EXISTS idx_agents_created_at ON agents(created_at DESC);
`

// PostgresBackend is the authoritative store over a pgx connection pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend wraps an existing pool. The backend takes ownership:
// Close closes the pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Pool exposes the underlying pool for callers that need raw access
// (migrations, ad-hoc queries).
func (b *PostgresBackend) Pool() *pgxpool.Pool {
	return b.pool
}

// acquire checks out a connection, mapping deadline failures to
// ErrPoolExhausted.
func (b *PostgresBackend) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// mapError converts constraint violations (SQLSTATE class 23) into
// IntegrityError and passes everything else through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return &IntegrityError{Detail: pgErr.Detail + " " + pgErr.Message, Err: err}
	}
	return err
}

// InitSchema creates tables and indices. Idempotent.
func (b *PostgresBackend) InitSchema(ctx context.Context) error {
	conn, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetText retrieves a text asset by ID, or (nil, nil) if absent.
func (b *PostgresBackend) GetText(ctx context.Context, id uuid.UUID) (*TextAsset, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT id, created_at, content FROM text_assets WHERE id = $1`

	var text TextAsset
	err = conn.QueryRow(ctx, query, id).Scan(&text.ID, &text.CreatedAt, &text.Content)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get text asset: %w", err)
	}
	return &text, nil
}

const messageColumns = `id, created_at, role, content, tool_calls, tool_call_id, input_tokens, output_tokens`

// scanMessage reads one message row. Callable against pgx.Row or pgx.Rows.
func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	var toolCallsJSON []byte
	var toolCallID *string

	err := row.Scan(
		&msg.ID,
		&msg.CreatedAt,
		&msg.Role,
		&msg.Content,
		&toolCallsJSON,
		&toolCallID,
		&msg.InputTokens,
		&msg.OutputTokens,
	)
	if err != nil {
		return nil, err
	}

	if toolCallsJSON != nil {
		if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}
	msg.ToolCallID = Deref(toolCallID)
	return &msg, nil
}

// GetMessage retrieves a message by ID, or (nil, nil) if absent.
func (b *PostgresBackend) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(conn.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessages retrieves the found subset of ids in one round trip, returned
// in input order.
func (b *PostgresBackend) GetMessages(ctx context.Context, ids []uuid.UUID) ([]*Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ANY($1)`

	rows, err := conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Message, len(ids))
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]*Message, 0, len(byID))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// GetConversation retrieves a conversation by ID, or (nil, nil) if absent.
func (b *PostgresBackend) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT id, created_at, message_ids FROM conversations WHERE id = $1`

	var conv Conversation
	err = conn.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.CreatedAt, &conv.MessageIDs)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

const agentColumns = `id, created_at, name, system_prompt_id, parent_id, conversation_id, model, metadata, model_config`

func scanAgent(row pgx.Row) (*Agent, error) {
	var agent Agent
	var metadataJSON []byte
	var configJSON []byte

	err := row.Scan(
		&agent.ID,
		&agent.CreatedAt,
		&agent.Name,
		&agent.SystemPromptID,
		&agent.ParentID,
		&agent.ConversationID,
		&agent.Model,
		&metadataJSON,
		&configJSON,
	)
	if err != nil {
		return nil, err
	}

	var metadata map[string]any
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if len(metadata) > 0 {
		agent.Metadata = metadata
	}
	if err := json.Unmarshal(configJSON, &agent.ModelConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model config: %w", err)
	}
	return &agent, nil
}

// GetAgent retrieves an agent by ID, or (nil, nil) if absent.
func (b *PostgresBackend) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`

	agent, err := scanAgent(conn.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// GetAgents retrieves the found subset of ids in one round trip, returned in
// input order.
func (b *PostgresBackend) GetAgents(ctx context.Context, ids []uuid.UUID) ([]*Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ANY($1)`

	rows, err := conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Agent, len(ids))
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		byID[agent.ID] = agent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}

	agents := make([]*Agent, 0, len(byID))
	for _, id := range ids {
		if agent, ok := byID[id]; ok {
			agents = append(agents, agent)
		}
	}
	return agents, nil
}

// SaveBundle inserts every asset in one transaction, dependencies first.
// Re-inserting an existing ID is a no-op (ON CONFLICT DO NOTHING): assets
// are immutable, so an ID collision means the identical row is already
// there.
func (b *PostgresBackend) SaveBundle(ctx context.Context, bundle *Bundle) error {
	if bundle == nil || bundle.Empty() {
		return nil
	}

	conn, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}

	for _, text := range bundle.Texts {
		batch.Queue(`
			INSERT INTO text_assets (id, created_at, content)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, text.ID, text.CreatedAt, text.Content)
	}

	for _, msg := range bundle.Messages {
		var toolCallsJSON []byte
		if len(msg.ToolCalls) > 0 {
			toolCallsJSON, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to marshal tool calls: %w", err)
			}
		}
		var toolCallID *string
		if msg.ToolCallID != "" {
			toolCallID = Ptr(msg.ToolCallID)
		}
		batch.Queue(`
			INSERT INTO messages (id, created_at, role, content, tool_calls, tool_call_id, input_tokens, output_tokens)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, msg.ID, msg.CreatedAt, msg.Role, msg.Content, toolCallsJSON, toolCallID, msg.InputTokens, msg.OutputTokens)
	}

	for _, conv := range bundle.Conversations {
		batch.Queue(`
			INSERT INTO conversations (id, created_at, message_ids)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, conv.ID, conv.CreatedAt, conv.MessageIDs)
	}

	for _, agent := range bundle.Agents {
		metadataJSON := []byte(`{}`)
		if len(agent.Metadata) > 0 {
			metadataJSON, err = json.Marshal(agent.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}
		configJSON, err := json.Marshal(agent.ModelConfig)
		if err != nil {
			return fmt.Errorf("failed to marshal model config: %w", err)
		}
		batch.Queue(`
			INSERT INTO agents (id, created_at, name, system_prompt_id, parent_id, conversation_id, model, metadata, model_config)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, agent.ID, agent.CreatedAt, agent.Name, agent.SystemPromptID, agent.ParentID, agent.ConversationID, agent.Model, metadataJSON, configJSON)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return mapError(fmt.Errorf("failed to save bundle: %w", err))
		}
	}
	if err := results.Close(); err != nil {
		return mapError(fmt.Errorf("failed to save bundle: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bundle: %w", err)
	}
	return nil
}

// DeleteAgent removes one agent version. Children survive with their parent
// pointer reset to null (becoming roots); the IDs of those children are
// returned so callers can drop stale cached copies.
func (b *PostgresBackend) DeleteAgent(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM agents WHERE parent_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	var children []uuid.UUID
	for rows.Next() {
		var childID uuid.UUID
		if err := rows.Scan(&childID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan child id: %w", err)
		}
		children = append(children, childID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	// ON DELETE SET NULL on agents.parent_id resets the children.
	tag, err := tx.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to delete agent: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("agent", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	return children, nil
}

// GC removes unreachable assets in one transaction. Order matters: messages
// are judged against conversations that will survive (those still referenced
// by an agent), so one pass removes the full garbage closure of any deleted
// agents.
func (b *PostgresBackend) GC(ctx context.Context) (GCResult, error) {
	var result GCResult

	conn, err := b.acquire(ctx)
	if err != nil {
		return result, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM messages
		WHERE id NOT IN (
			SELECT unnest(message_ids) FROM conversations
			WHERE id IN (SELECT conversation_id FROM agents)
		)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to collect messages: %w", err)
	}
	result.Messages = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM conversations
		WHERE id NOT IN (SELECT conversation_id FROM agents)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to collect conversations: %w", err)
	}
	result.Conversations = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM text_assets
		WHERE id NOT IN (SELECT system_prompt_id FROM agents)
	`)
	if err != nil {
		return result, fmt.Errorf("failed to collect text assets: %w", err)
	}
	result.TextAssets = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit gc: %w", err)
	}
	return result, nil
}

// Lineage walks parent pointers from id to the root in a single recursive
// query and returns the chain root-first.
func (b *PostgresBackend) Lineage(ctx context.Context, id uuid.UUID) ([]*Agent, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `
		WITH RECURSIVE lineage AS (
			SELECT ` + agentColumns + `, 0 AS depth
			FROM agents WHERE id = $1
			UNION ALL
			SELECT a.id, a.created_at, a.name, a.system_prompt_id, a.parent_id,
			       a.conversation_id, a.model, a.metadata, a.model_config, l.depth + 1
			FROM agents a
			JOIN lineage l ON a.id = l.parent_id
		)
		SELECT ` + agentColumns + ` FROM lineage ORDER BY depth DESC
	`

	rows, err := conn.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lineage: %w", err)
	}
	defer rows.Close()

	var chain []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		chain = append(chain, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get lineage: %w", err)
	}

	if len(chain) == 0 {
		return nil, notFound("agent", id)
	}
	// The root-most row must actually be a root; a non-nil parent here means
	// the chain was severed by a deleted ancestor.
	if oldest := chain[0]; oldest.ParentID != nil {
		return nil, notFound("agent", *oldest.ParentID)
	}
	return chain, nil
}

// ListAgents returns agents newest first, optionally filtered by a
// case-insensitive name substring.
func (b *PostgresBackend) ListAgents(ctx context.Context, opts ListOptions) ([]*Agent, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + agentColumns + ` FROM agents`
	args := []any{}
	if opts.Name != "" {
		query += ` WHERE name ILIKE '%' || $1 || '%'`
		args = append(args, opts.Name)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// CountAgents counts agents matching the ListAgents name filter.
func (b *PostgresBackend) CountAgents(ctx context.Context, name string) (int64, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var count int64
	if name != "" {
		err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM agents WHERE name ILIKE '%' || $1 || '%'`, name).Scan(&count)
	} else {
		err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return count, nil
}

// FindByName returns agents whose name matches exactly, newest first.
func (b *PostgresBackend) FindByName(ctx context.Context, name string) ([]*Agent, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	query := `SELECT ` + agentColumns + ` FROM agents WHERE name = $1 ORDER BY created_at DESC, id DESC`

	rows, err := conn.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find agents: %w", err)
	}
	return agents, nil
}

// Close closes the underlying pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
