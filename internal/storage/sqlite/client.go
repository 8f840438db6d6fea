package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/storage/models"
	"github.com/supportdesk/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 0,
		document_count INTEGER NOT NULL DEFAULT 0,
		last_ingested_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		ingested_at INTEGER NOT NULL,
		FOREIGN KEY (client_id) REFERENCES clients(id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_client ON documents(client_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		user_id TEXT,
		message TEXT NOT NULL,
		reply TEXT,
		intent TEXT,
		confidence REAL,
		escalated INTEGER NOT NULL DEFAULT 0,
		agent_id TEXT,
		ticket_id TEXT,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_conversation ON conversations(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);

	CREATE TABLE IF NOT EXISTS escalations (
		ticket_id TEXT PRIMARY KEY,
		conversation_id TEXT,
		client_id TEXT NOT NULL,
		user_id TEXT,
		agent_id TEXT,
		intent TEXT,
		reason TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_client ON escalations(client_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertClient(client *models.Client) error {
	query := `
		INSERT INTO clients (id, version, document_count, last_ingested_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			document_count = excluded.document_count,
			last_ingested_at = excluded.last_ingested_at
	`

	_, err := c.db.Exec(query, client.ID, client.Version, client.DocumentCount, client.LastIngestedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

func (c *Client) GetClients() ([]models.Client, error) {
	rows, err := c.db.Query(`SELECT id, version, document_count, COALESCE(last_ingested_at, 0) FROM clients`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var cl models.Client
		var lastIngested int64
		if err := rows.Scan(&cl.ID, &cl.Version, &cl.DocumentCount, &lastIngested); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		if lastIngested > 0 {
			cl.LastIngestedAt = time.Unix(lastIngested, 0).UTC()
		}
		clients = append(clients, cl)
	}

	return clients, rows.Err()
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, client_id, filename, content_hash, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at
	`

	_, err := c.db.Exec(query, doc.ID, doc.ClientID, doc.Filename, doc.ContentHash, doc.ChunkCount, doc.IngestedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) DeleteClientDocuments(clientID string) error {
	if _, err := c.db.Exec(`DELETE FROM documents WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("failed to delete client documents: %w", err)
	}
	return nil
}

func (c *Client) InsertConversation(conv *models.Conversation) error {
	query := `
		INSERT INTO conversations
			(id, conversation_id, client_id, user_id, message, reply, intent, confidence, escalated, agent_id, ticket_id, cache_hit, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query,
		conv.ID,
		conv.ConversationID,
		conv.ClientID,
		conv.UserID,
		conv.Message,
		conv.Reply,
		conv.Intent,
		conv.Confidence,
		boolToInt(conv.Escalated),
		conv.AgentID,
		conv.TicketID,
		boolToInt(conv.CacheHit),
		conv.LatencyMS,
		conv.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (c *Client) InsertEscalation(esc *models.Escalation) error {
	query := `
		INSERT INTO escalations (ticket_id, conversation_id, client_id, user_id, agent_id, intent, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query,
		esc.TicketID,
		esc.ConversationID,
		esc.ClientID,
		esc.UserID,
		esc.AgentID,
		esc.Intent,
		esc.Reason,
		esc.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
