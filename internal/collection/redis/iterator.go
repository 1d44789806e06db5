package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
)

// collectionsKey is the registry hash maintained by the ingest pipeline:
// collection name mapped to its creation time in unix milliseconds.
const collectionsKey = "collections"

// defaultScanBatch is the SCAN COUNT hint per page.
const defaultScanBatch = 200

// Iterate opens a SCAN-based walk over every object of a collection.
// Order is unspecified; keys added or removed mid-scan may be seen once,
// twice, or not at all, which matches the SCAN guarantees.
func (s *Store) Iterate(
	ctx context.Context, collectionName string, opts collection.IterateOptions,
) (collection.Iterator, error) {
	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultScanBatch
	}
	return &scanIterator{
		store:         s,
		collection:    collectionName,
		match:         s.keyPrefix(collectionName) + "*",
		indexKey:      s.indexName(collectionName),
		batch:         batch,
		includeVector: opts.IncludeVector,
	}, nil
}

type scanIterator struct {
	store         *Store
	collection    string
	match         string
	indexKey      string
	batch         int
	includeVector bool

	cursor    uint64
	buffered  []string
	exhausted bool
	closed    bool
}

// Next returns the next record, fetching SCAN pages on demand. Returns
// domain.ErrIteratorDone once the keyspace is exhausted.
func (it *scanIterator) Next(ctx context.Context) (collection.Record, error) {
	if it.closed {
		return collection.Record{}, domain.ErrIteratorDone
	}

	for len(it.buffered) == 0 {
		if it.exhausted {
			return collection.Record{}, domain.ErrIteratorDone
		}
		if err := it.scanPage(ctx); err != nil {
			return collection.Record{}, err
		}
	}

	key := it.buffered[0]
	it.buffered = it.buffered[1:]
	return it.loadRecord(ctx, key)
}

func (it *scanIterator) scanPage(ctx context.Context) error {
	cmd := it.store.b().Scan().Cursor(it.cursor).
		Match(it.match).Count(int64(it.batch)).Build()
	entry, err := it.store.do(ctx, cmd).AsScanEntry()
	if err != nil {
		return fmt.Errorf("scan %s: %w", it.collection, err)
	}

	it.cursor = entry.Cursor
	if it.cursor == 0 {
		it.exhausted = true
	}
	for _, key := range entry.Elements {
		// The FT index key shares the collection prefix.
		if key == it.indexKey {
			continue
		}
		it.buffered = append(it.buffered, key)
	}
	return nil
}

func (it *scanIterator) loadRecord(ctx context.Context, key string) (collection.Record, error) {
	fieldNames := []string{fieldProps, fieldCreatedAt, fieldUpdatedAt}
	if it.includeVector {
		fieldNames = append(fieldNames, fieldVector)
	}

	cmd := it.store.b().Hmget().Key(key).Field(fieldNames...).Build()
	values, err := it.store.do(ctx, cmd).ToArray()
	if err != nil {
		return collection.Record{}, fmt.Errorf("load %s: %w", key, err)
	}

	fields := make(map[string]string, len(fieldNames))
	for i, name := range fieldNames {
		if i >= len(values) {
			break
		}
		if v, err := values[i].ToString(); err == nil {
			fields[name] = v
		}
	}
	return it.store.recordFromFields(it.collection, key, fields, it.includeVector), nil
}

// Close stops the iteration. Safe to call more than once.
func (it *scanIterator) Close() {
	it.closed = true
	it.buffered = nil
}

// ListCollections reads the registry hash and resolves each collection's
// object count. Count failures degrade to zero rather than failing the
// listing.
func (s *Store) ListCollections(ctx context.Context) ([]collection.Info, error) {
	cmd := s.b().Hgetall().Key(s.prefix + collectionsKey).Build()
	entries, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	infos := make([]collection.Info, 0, len(entries))
	for name, createdRaw := range entries {
		info := collection.Info{Name: name}
		if ms, err := strconv.ParseInt(createdRaw, 10, 64); err == nil && ms > 0 {
			info.CreatedAt = time.UnixMilli(ms).UTC()
		}
		if count, err := s.CountAll(ctx, name); err == nil {
			info.ObjectCount = count
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}
