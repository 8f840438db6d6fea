// Package ingestion builds per-client document indexes. Each run reads the
// client's document directory, chunks the text, embeds it, and swaps a
// freshly built index into the registry. The swap bumps the client's version,
// which invalidates every cached answer for that client at once.
package ingestion

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/registry"
	"github.com/supportdesk/backend/internal/storage/models"
	"github.com/supportdesk/backend/internal/storage/sqlite"
	"github.com/supportdesk/backend/internal/vectorstore"
	"github.com/supportdesk/backend/pkg/logger"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Result reports what a completed ingestion run produced.
type Result struct {
	ClientID      string
	Version       int64
	DocumentCount int
	ChunkCount    int
	IngestedAt    time.Time
}

type Processor struct {
	registry     *registry.Registry
	db           *sqlite.Client
	embedder     vectorstore.Embedder
	documentsDir string
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(reg *registry.Registry, db *sqlite.Client, embedder vectorstore.Embedder, documentsDir string, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		// Fallback must stay below chunkSize, which may itself be small.
		chunkOverlap = chunkSize / 10
	}
	return &Processor{
		registry:     reg,
		db:           db,
		embedder:     embedder,
		documentsDir: documentsDir,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IngestClient rebuilds the index for one client from its document directory.
// The old index keeps serving requests until the new one is fully built;
// only then is it swapped in and the version bumped. A failed run leaves the
// previous index and version untouched.
func (p *Processor) IngestClient(ctx context.Context, clientID string) (Result, error) {
	dir := filepath.Join(p.documentsDir, clientID)
	logger.Info("Ingesting client documents", zap.String("client_id", clientID), zap.String("dir", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read document directory: %w", err)
	}

	store, err := vectorstore.NewStore(clientID, p.embedder)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create index: %w", err)
	}

	var docs []*models.Document
	var chunks []vectorstore.Chunk

	for _, entry := range entries {
		if entry.IsDir() || !supportedExtension(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		text := p.extractText(entry.Name(), string(raw))
		if text == "" {
			logger.Warn("Skipping empty document", zap.String("client_id", clientID), zap.String("file", entry.Name()))
			continue
		}

		docID := contentHash(clientID + ":" + entry.Name())
		docChunks := p.chunkText(text)

		for i, chunkText := range docChunks {
			chunks = append(chunks, vectorstore.Chunk{
				ID:    fmt.Sprintf("%s_chunk_%d", docID, i),
				DocID: entry.Name(),
				Text:  chunkText,
			})
		}

		docs = append(docs, &models.Document{
			ID:          docID,
			ClientID:    clientID,
			Filename:    entry.Name(),
			ContentHash: contentHash(text),
			ChunkCount:  len(docChunks),
			IngestedAt:  time.Now().UTC(),
		})
	}

	if len(chunks) > 0 {
		if err := store.Add(ctx, chunks); err != nil {
			return Result{}, fmt.Errorf("failed to index chunks: %w", err)
		}
	}

	now := time.Now().UTC()
	version := p.registry.Swap(clientID, store, len(docs), now)

	if err := p.recordRun(clientID, version, docs, now); err != nil {
		logger.Warn("Failed to persist ingestion run", zap.String("client_id", clientID), zap.Error(err))
	}

	logger.Info("Client documents ingested",
		zap.String("client_id", clientID),
		zap.Int64("version", version),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)

	return Result{
		ClientID:      clientID,
		Version:       version,
		DocumentCount: len(docs),
		ChunkCount:    len(chunks),
		IngestedAt:    now,
	}, nil
}

func (p *Processor) recordRun(clientID string, version int64, docs []*models.Document, at time.Time) error {
	if p.db == nil {
		return nil
	}

	if err := p.db.UpsertClient(&models.Client{
		ID:             clientID,
		Version:        version,
		DocumentCount:  len(docs),
		LastIngestedAt: at,
	}); err != nil {
		return err
	}

	if err := p.db.DeleteClientDocuments(clientID); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := p.db.InsertDocument(doc); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) extractText(filename, raw string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".html" || ext == ".htm" {
		return cleanHTML(raw)
	}
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(raw, " "))
}

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// chunkText splits text into chunks of roughly chunkSize characters, breaking
// on sentence boundaries where possible so passages read coherently. The last
// sentences of each chunk are repeated at the start of the next for overlap.
func (p *Processor) chunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range splitOversized(sentences, p.chunkSize) {
		if currentLen+len(sentence) > p.chunkSize && currentLen > 0 {
			chunks = append(chunks, strings.Join(current, " "))

			overlap, overlapLen := tailWithin(current, p.chunkOverlap)
			current = overlap
			currentLen = overlapLen
		}
		current = append(current, sentence)
		currentLen += len(sentence) + 1
	}

	if currentLen > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// tailWithin returns the trailing sentences that fit within budget characters.
func tailWithin(sentences []string, budget int) ([]string, int) {
	var tail []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := len(sentences[i]) + 1
		if total+n > budget {
			break
		}
		tail = append([]string{sentences[i]}, tail...)
		total += n
	}
	return tail, total
}

// splitOversized breaks any sentence longer than limit into word runs so a
// single run-on sentence cannot produce an unbounded chunk.
func splitOversized(sentences []string, limit int) []string {
	out := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if len(sentence) <= limit {
			out = append(out, sentence)
			continue
		}

		words := strings.Fields(sentence)
		var piece []string
		pieceLen := 0
		for _, word := range words {
			if pieceLen+len(word)+1 > limit && pieceLen > 0 {
				out = append(out, strings.Join(piece, " "))
				piece = piece[:0]
				pieceLen = 0
			}
			piece = append(piece, word)
			pieceLen += len(word) + 1
		}
		if pieceLen > 0 {
			out = append(out, strings.Join(piece, " "))
		}
	}
	return out
}

func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return []string{text}
	}

	var sentences []string
	for _, s := range doc.Sentences() {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func supportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".html", ".htm":
		return true
	}
	return false
}

func contentHash(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
