// Package redis implements the collection contract over Redis 8+ FT.SEARCH
// via rueidis.
//
// Storage layout (written by the companion ingest pipeline, read-only here):
// each object lives in a hash at "<prefix><collection>:<uuid>" with fields
// __props (properties JSON), __vector (little-endian float32 bytes), __text
// (concatenated searchable text), __created_at / __updated_at (unix
// milliseconds), plus flat indexed copies of scalar properties (TAG for
// text/bool, NUMERIC for numbers and dates-as-milliseconds, GEO for
// coordinates). The FT index is named "<prefix><collection>:idx".
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/colex-db/colex/internal/collection"
)

// DefaultKeyPrefix namespaces all keys.
const DefaultKeyPrefix = "colex:"

// Compile-time check: Store implements collection.Store.
var _ collection.Store = (*Store)(nil)

// Embedder vectorizes query text for nearText and hybrid searches.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds connection parameters.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements collection.Store via rueidis.
type Store struct {
	client   rueidis.Client
	embedder Embedder
	prefix   string
}

// NewStore creates a Redis-backed collection store. The embedder may be nil,
// in which case nearText and hybrid queries fail with a descriptive error.
func NewStore(cfg Config, embedder Embedder) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, embedder: embedder, prefix: prefix}, nil
}

// Client exposes the underlying connection for sibling components that
// share it, such as the embedding cache backing.
func (s *Store) Client() rueidis.Client {
	return s.client
}

// SetEmbedder installs the text vectorizer. Called once from the
// composition root, before the store serves queries; the embedding cache
// shares this store's connection, so it cannot exist at construction time.
func (s *Store) SetEmbedder(e Embedder) {
	s.embedder = e
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls the database until it responds or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) indexName(collectionName string) string {
	return fmt.Sprintf("%s%s:idx", s.prefix, collectionName)
}

func (s *Store) keyPrefix(collectionName string) string {
	return fmt.Sprintf("%s%s:", s.prefix, collectionName)
}

func (s *Store) docKey(collectionName, id string) string {
	return s.keyPrefix(collectionName) + id
}
