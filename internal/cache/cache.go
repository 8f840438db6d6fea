// Package cache maps (client, normalized query, document-index version) to a
// previously computed pipeline result. Entries written under an old index
// version can never be read back after a bump: the version is part of the key
// and comparison is exact, never "latest".
package cache

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/pkg/utils"
)

// ResponseCache is the response cache contract. Get reports a miss with
// found=false; an error means the cache backend itself is unavailable, which
// callers treat as a miss.
type ResponseCache interface {
	Get(ctx context.Context, clientID, normalizedQuery string, version int64) (*pipeline.Result, bool, error)
	Put(ctx context.Context, clientID, normalizedQuery string, version int64, result pipeline.Result) error
}

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	punctRE      = regexp.MustCompile(`[^\w\s?.]`)
)

// Normalize is a pure function of the raw text so semantically identical
// queries share a cache key: case folding, whitespace collapse, punctuation
// strip (word characters, '?' and '.' survive).
func Normalize(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = whitespaceRE.ReplaceAllString(normalized, " ")
	normalized = punctRE.ReplaceAllString(normalized, "")
	return normalized
}

// Key derives the storage key from the full (client, query, version) triple.
func Key(clientID, normalizedQuery string, version int64) string {
	return utils.HashKey(fmt.Sprintf("%s:%s:%d", clientID, normalizedQuery, version))
}
