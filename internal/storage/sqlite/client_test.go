package sqlite

import (
	"fmt"
	"testing"
	"time"

	"github.com/supportdesk/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(":memory:")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return c
}

func TestUpsertAndGetClients(t *testing.T) {
	c := newTestClient(t)

	at := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	if err := c.UpsertClient(&models.Client{ID: "acme", Version: 1, DocumentCount: 3, LastIngestedAt: at}); err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}
	// Upsert replaces, never duplicates.
	if err := c.UpsertClient(&models.Client{ID: "acme", Version: 2, DocumentCount: 5, LastIngestedAt: at}); err != nil {
		t.Fatalf("second UpsertClient() error = %v", err)
	}

	clients, err := c.GetClients()
	if err != nil {
		t.Fatalf("GetClients() error = %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("GetClients() returned %d rows, want 1", len(clients))
	}

	got := clients[0]
	if got.Version != 2 || got.DocumentCount != 5 {
		t.Errorf("client = %+v, want version 2 with 5 documents", got)
	}
	if !got.LastIngestedAt.Equal(at) {
		t.Errorf("LastIngestedAt = %v, want %v", got.LastIngestedAt, at)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	c := newTestClient(t)

	if err := c.UpsertClient(&models.Client{ID: "acme", Version: 1, LastIngestedAt: time.Now()}); err != nil {
		t.Fatalf("UpsertClient() error = %v", err)
	}

	doc := &models.Document{
		ID:          "d1",
		ClientID:    "acme",
		Filename:    "guide.md",
		ContentHash: "abc123",
		ChunkCount:  4,
		IngestedAt:  time.Now(),
	}
	if err := c.InsertDocument(doc); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}

	// Re-inserting the same ID updates rather than failing.
	doc.ChunkCount = 6
	if err := c.InsertDocument(doc); err != nil {
		t.Fatalf("InsertDocument() upsert error = %v", err)
	}

	if err := c.DeleteClientDocuments("acme"); err != nil {
		t.Fatalf("DeleteClientDocuments() error = %v", err)
	}
}

func TestInsertConversationAndEscalation(t *testing.T) {
	c := newTestClient(t)

	conv := &models.Conversation{
		ID:             "row-1",
		ConversationID: "conv-1",
		ClientID:       "acme",
		UserID:         "user-1",
		Message:        "delete my account now",
		Reply:          "Connecting you to a specialist.",
		Intent:         "account_deletion",
		Confidence:     0.9,
		Escalated:      true,
		AgentID:        "agent-1",
		TicketID:       "TKT-20260827-ABC123",
		LatencyMS:      42,
		CreatedAt:      time.Now(),
	}
	if err := c.InsertConversation(conv); err != nil {
		t.Fatalf("InsertConversation() error = %v", err)
	}

	esc := &models.Escalation{
		TicketID:       "TKT-20260827-ABC123",
		ConversationID: "conv-1",
		ClientID:       "acme",
		UserID:         "user-1",
		AgentID:        "agent-1",
		Intent:         "account_deletion",
		Reason:         "escalated",
		CreatedAt:      time.Now(),
	}
	if err := c.InsertEscalation(esc); err != nil {
		t.Fatalf("InsertEscalation() error = %v", err)
	}
}

func TestInsertConversationMultipleTurns(t *testing.T) {
	c := newTestClient(t)

	for i, msg := range []string{"how do I reset my password", "that link does not work"} {
		conv := &models.Conversation{
			ID:             fmt.Sprintf("row-%d", i),
			ConversationID: "conv-1",
			ClientID:       "acme",
			UserID:         "user-1",
			Message:        msg,
			Reply:          "See the password reset guide.",
			Intent:         "password_reset",
			Confidence:     0.8,
			CreatedAt:      time.Now(),
		}
		if err := c.InsertConversation(conv); err != nil {
			t.Fatalf("InsertConversation() turn %d error = %v", i, err)
		}
	}

	var count int
	row := c.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE conversation_id = ?`, "conv-1")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if count != 2 {
		t.Fatalf("conversation rows = %d, want 2", count)
	}
}
