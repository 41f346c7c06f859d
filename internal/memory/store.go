// Package memory implements semantic long-term memory on sqlite: message and
// knowledge records stored with embeddings, searched by cosine similarity.
package memory

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/streamforge/streambot/internal/metrics"
)

// Collection names.
const (
	CollectionConversations = "conversations"
	CollectionKnowledge     = "knowledge"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT NOT NULL,
	collection TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (id, collection)
);
CREATE INDEX IF NOT EXISTS idx_memories_collection ON memories(collection);
`

// Result is one search hit.
type Result struct {
	Content    string
	Metadata   map[string]string
	Similarity float64
}

// Store is the vector memory store. A nil or disabled Store is safe to use:
// every method degrades to a no-op, mirroring how the bot runs with vector
// memory turned off.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	embedder  Embedder
	threshold float64
	limit     int
	enabled   bool
	log       zerolog.Logger
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string, embedder Embedder, threshold float64, maxResults int, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory schema: %w", err)
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Store{
		db:        db,
		embedder:  embedder,
		threshold: threshold,
		limit:     maxResults,
		enabled:   true,
		log:       log,
	}, nil
}

// Disabled returns a store whose every operation is a no-op.
func Disabled() *Store {
	return &Store{}
}

// Enabled reports whether the store is backed by a live database.
func (s *Store) Enabled() bool {
	return s != nil && s.enabled
}

// Close releases the database handle.
func (s *Store) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.db.Close()
}

// recordID derives a stable document id from content plus its identity
// metadata, so re-storing the identical record is idempotent.
func recordID(content string, meta map[string]string) string {
	metaJSON := ""
	if len(meta) > 0 {
		// json.Marshal sorts map keys, giving a canonical form.
		b, _ := json.Marshal(meta)
		metaJSON = string(b)
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(content+"|"+metaJSON)))
}

// StoreConversation records one chat turn. Returns false when the store is
// disabled, the turn duplicates an existing memory, or storage fails.
func (s *Store) StoreConversation(ctx context.Context, content, username, platform, channelID, role string) bool {
	meta := map[string]string{
		"username":   username,
		"platform":   platform,
		"channel_id": channelID,
		"role":       role,
	}
	return s.store(ctx, CollectionConversations, content, meta)
}

// AddKnowledge records a knowledge snippet with its source and category.
func (s *Store) AddKnowledge(ctx context.Context, content, source, category string, extra map[string]string) bool {
	meta := map[string]string{
		"source":   source,
		"category": category,
	}
	for k, v := range extra {
		meta[k] = v
	}
	return s.store(ctx, CollectionKnowledge, content, meta)
}

func (s *Store) store(ctx context.Context, collection, content string, meta map[string]string) bool {
	if !s.Enabled() || strings.TrimSpace(content) == "" {
		return false
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("store", "error").Inc()
		s.log.Error().Err(err).Msg("embed failed")
		return false
	}

	if s.isDuplicate(ctx, collection, vec) {
		metrics.MemoryOperations.WithLabelValues("store", "skip").Inc()
		s.log.Debug().Str("collection", collection).Msg("skipped near-duplicate memory")
		return false
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("store", "error").Inc()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memories (id, collection, content, metadata, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		recordID(content, meta), collection, content, string(metaJSON), encodeVector(vec), time.Now().Unix(),
	)
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("store", "error").Inc()
		s.log.Error().Err(err).Msg("memory insert failed")
		return false
	}
	if n, _ := res.RowsAffected(); n == 0 {
		metrics.MemoryOperations.WithLabelValues("store", "skip").Inc()
		return false
	}
	metrics.MemoryOperations.WithLabelValues("store", "ok").Inc()
	return true
}

// isDuplicate checks whether the collection already holds a record whose
// similarity to vec reaches the threshold.
func (s *Store) isDuplicate(ctx context.Context, collection string, vec []float32) bool {
	best := 0.0
	s.scan(ctx, collection, func(_ string, _ map[string]string, stored []float32) {
		if sim := cosineSimilarity(vec, stored); sim > best {
			best = sim
		}
	})
	return best >= s.threshold
}

// Search returns records from the collection whose similarity to the query
// reaches the threshold, filtered by exact metadata equality (every filter
// key must match), sorted by similarity descending, truncated to limit.
func (s *Store) Search(ctx context.Context, query, collection string, filter map[string]string, limit int) []Result {
	if !s.Enabled() {
		return nil
	}
	if limit <= 0 {
		limit = s.limit
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("search", "error").Inc()
		s.log.Error().Err(err).Msg("query embed failed")
		return nil
	}

	var hits []Result
	s.scan(ctx, collection, func(content string, meta map[string]string, stored []float32) {
		for k, v := range filter {
			if meta[k] != v {
				return
			}
		}
		sim := cosineSimilarity(qvec, stored)
		if sim < s.threshold {
			return
		}
		hits = append(hits, Result{Content: content, Metadata: meta, Similarity: sim})
	})

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	metrics.MemoryOperations.WithLabelValues("search", "ok").Inc()
	return hits
}

// scan walks every row of a collection, decoding metadata and embedding.
func (s *Store) scan(ctx context.Context, collection string, fn func(content string, meta map[string]string, vec []float32)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT content, metadata, embedding FROM memories WHERE collection = ?`, collection)
	if err != nil {
		s.log.Error().Err(err).Msg("memory scan failed")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var content, metaJSON string
		var blob []byte
		if err := rows.Scan(&content, &metaJSON, &blob); err != nil {
			continue
		}
		meta := map[string]string{}
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		fn(content, meta, decodeVector(blob))
	}
}

// RelevantContext assembles the prompt context block for a query: up to 3
// knowledge hits (unfiltered) plus up to 3 conversation hits restricted to
// the same user, channel, and platform.
func (s *Store) RelevantContext(ctx context.Context, query, username, channelID, platform string) string {
	if !s.Enabled() {
		return ""
	}

	filter := map[string]string{}
	if username != "" {
		filter["username"] = username
	}
	if channelID != "" {
		filter["channel_id"] = channelID
	}
	if platform != "" {
		filter["platform"] = platform
	}

	conv := s.Search(ctx, query, CollectionConversations, filter, 3)
	know := s.Search(ctx, query, CollectionKnowledge, nil, 3)

	var parts []string
	if len(know) > 0 {
		lines := []string{"### Información relevante:"}
		for i, item := range know {
			source := item.Metadata["source"]
			if source == "" {
				source = "desconocido"
			}
			lines = append(lines, fmt.Sprintf("%d. %s (Fuente: %s)", i+1, item.Content, source))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	if len(conv) > 0 {
		lines := []string{"### Conversación anterior relevante:"}
		for _, item := range conv {
			role := "Usuario"
			if item.Metadata["role"] == "assistant" {
				role = "Asistente"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", role, item.Content))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// Count returns the number of records in a collection.
func (s *Store) Count(collection string) int {
	if !s.Enabled() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0
	}
	return n
}

// ImportedMessage is one history record handed to ImportMessages.
type ImportedMessage struct {
	Content   string
	Username  string
	Platform  string
	ChannelID string
}

// ImportMessages bulk-stores platform history as user conversation turns.
// Returns (stored, total).
func (s *Store) ImportMessages(ctx context.Context, msgs []ImportedMessage) (int, int) {
	if !s.Enabled() {
		return 0, 0
	}
	stored := 0
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if s.StoreConversation(ctx, m.Content, m.Username, m.Platform, m.ChannelID, "user") {
			stored++
		}
	}
	s.log.Info().Int("stored", stored).Int("total", len(msgs)).Msg("history import finished")
	return stored, len(msgs)
}
