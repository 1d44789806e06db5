// Package executor issues collection queries: one of five modes, with
// translated filters attached, normalized results, and cached totals.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/countcache"
	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/filter"
	"github.com/colex-db/colex/internal/domain/search"
	"github.com/colex-db/colex/internal/metrics"
	"github.com/colex-db/colex/internal/translator"
)

// EstimateCap bounds the filtered-count estimate: when the backend has no
// server-side filtered count, up to this many matching rows are fetched and
// counted. A result of exactly EstimateCap means "at least this many".
const EstimateCap = 10000

// Pagination defaults.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// FetchParams describe one query. Filters (a group tree) takes precedence
// over Conditions (a flat list combined per MatchMode) when both are set.
type FetchParams struct {
	Limit         int
	Offset        int
	Properties    []string
	SortBy        *collection.Sort
	Filters       *filter.Group
	Conditions    []filter.Condition
	MatchMode     filter.MatchMode
	VectorSearch  search.Params
	IncludeVector bool
}

// FetchResult is a normalized page of objects plus the total count.
type FetchResult struct {
	Objects []domain.Object
	Total   int
}

// Executor runs queries against a collection backend.
type Executor struct {
	querier      collection.Querier
	agg          collection.Aggregator
	counts       *countcache.Cache
	logger       *zap.Logger
	defaultLimit int
	maxLimit     int
}

// New creates a query executor.
func New(
	querier collection.Querier,
	agg collection.Aggregator,
	counts *countcache.Cache,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		querier:      querier,
		agg:          agg,
		counts:       counts,
		logger:       logger,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
}

// WithPagination configures page size limits.
func (e *Executor) WithPagination(defaultLimit, maxLimit int) *Executor {
	if defaultLimit > 0 {
		e.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		e.maxLimit = maxLimit
	}
	return e
}

// Fetch executes one query. Validation precedes all network calls; vector
// modes never pass an offset (similarity results are rank-ordered, not
// page-sliceable).
func (e *Executor) Fetch(
	ctx context.Context, collectionName string, p *FetchParams,
) (FetchResult, error) {
	if collectionName == "" {
		return FetchResult{}, fmt.Errorf("%w: collection name is required", domain.ErrValidation)
	}
	if err := p.VectorSearch.Validate(); err != nil {
		return FetchResult{}, err
	}

	where, err := e.translateWhere(p)
	if err != nil {
		return FetchResult{}, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}

	mode := p.VectorSearch.Type
	if mode == "" {
		mode = search.TypeNone
	}

	start := time.Now()
	records, err := e.runQuery(ctx, collectionName, p, where, limit)
	metrics.QueryDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(string(mode), "error").Inc()
		return FetchResult{}, err
	}
	metrics.QueriesTotal.WithLabelValues(string(mode), "success").Inc()

	objects := make([]domain.Object, len(records))
	for i := range records {
		objects[i] = Normalize(&records[i], p.IncludeVector)
	}

	total := len(objects)
	if mode == search.TypeNone {
		total = e.countTotal(ctx, collectionName, where, len(objects))
	}

	return FetchResult{Objects: objects, Total: total}, nil
}

func (e *Executor) translateWhere(p *FetchParams) (*collection.Predicate, error) {
	if p.Filters != nil {
		if err := p.Filters.Validate(); err != nil {
			return nil, err
		}
		return translator.Group(p.Filters)
	}
	return translator.Conditions(p.Conditions, p.MatchMode)
}

// runQuery is the five-way mode switch.
func (e *Executor) runQuery(
	ctx context.Context, collectionName string,
	p *FetchParams, where *collection.Predicate, limit int,
) ([]collection.Record, error) {
	vs := &p.VectorSearch

	switch vs.Type {
	case search.TypeNearText:
		return e.querier.NearText(ctx, &collection.NearTextQuery{
			Collection:    collectionName,
			Text:          vs.Text,
			Limit:         limit,
			Where:         where,
			Certainty:     vs.Certainty,
			Distance:      vs.Distance,
			TargetVector:  vs.TargetVector,
			IncludeVector: p.IncludeVector,
		})
	case search.TypeNearVector:
		return e.querier.NearVector(ctx, &collection.NearVectorQuery{
			Collection:    collectionName,
			Vector:        vs.Vector,
			Limit:         limit,
			Where:         where,
			Certainty:     vs.Certainty,
			Distance:      vs.Distance,
			TargetVector:  vs.TargetVector,
			IncludeVector: p.IncludeVector,
		})
	case search.TypeNearObject:
		return e.querier.NearObject(ctx, &collection.NearObjectQuery{
			Collection:    collectionName,
			ObjectID:      vs.ObjectID,
			Limit:         limit,
			Where:         where,
			Certainty:     vs.Certainty,
			Distance:      vs.Distance,
			IncludeVector: p.IncludeVector,
		})
	case search.TypeHybrid:
		return e.querier.Hybrid(ctx, &collection.HybridQuery{
			Collection:    collectionName,
			Text:          vs.Text,
			Limit:         limit,
			Where:         where,
			Alpha:         vs.Alpha,
			FusionType:    vs.FusionType,
			Properties:    vs.Properties,
			IncludeVector: p.IncludeVector,
		})
	default:
		return e.querier.FetchObjects(ctx, &collection.FetchQuery{
			Collection:       collectionName,
			Limit:            limit,
			Offset:           p.Offset,
			Where:            where,
			Sort:             p.SortBy,
			ReturnProperties: p.Properties,
			IncludeVector:    p.IncludeVector,
		})
	}
}

// countTotal resolves the total count through the cache. A count failure
// never fails the fetch: a stale cached value is preferred, then the raw
// fetched-object count.
func (e *Executor) countTotal(
	ctx context.Context, collectionName string,
	where *collection.Predicate, pageCount int,
) int {
	key := countcache.Key(collectionName, where)
	if cached, ok := e.counts.Get(key); ok {
		return cached
	}

	count, err := e.computeCount(ctx, collectionName, where)
	if err != nil {
		e.logger.Warn("count computation failed, falling back",
			zap.String("collection", collectionName),
			zap.Error(err),
		)
		if stale, ok := e.counts.GetStale(key); ok {
			return stale
		}
		return pageCount
	}

	e.counts.Set(key, count)
	return count
}

func (e *Executor) computeCount(
	ctx context.Context, collectionName string, where *collection.Predicate,
) (int, error) {
	if where == nil {
		count, err := e.agg.CountAll(ctx, collectionName)
		if err != nil {
			return 0, fmt.Errorf("count all: %w", err)
		}
		return count, nil
	}

	count, supported, err := e.agg.CountWhere(ctx, collectionName, where)
	if err != nil {
		return 0, fmt.Errorf("count filtered: %w", err)
	}
	if supported {
		return count, nil
	}

	// No cheap server-side filtered count: fetch up to EstimateCap matching
	// rows and report that count. Exactly EstimateCap means "at least".
	records, err := e.querier.FetchObjects(ctx, &collection.FetchQuery{
		Collection:       collectionName,
		Limit:            EstimateCap,
		Where:            where,
		ReturnProperties: []string{},
	})
	if err != nil {
		return 0, fmt.Errorf("estimate filtered count: %w", err)
	}
	return len(records), nil
}

// InvalidateCounts drops cached counts for a collection, or all collections
// when the name is empty.
func (e *Executor) InvalidateCounts(collectionName string) {
	if collectionName == "" {
		e.counts.InvalidateAll()
		return
	}
	e.counts.Invalidate(collectionName)
}

// Normalize converts a backend record into the normalized object shape with
// RFC 3339 timestamps.
func Normalize(rec *collection.Record, includeVector bool) domain.Object {
	props := rec.Properties
	if props == nil {
		props = map[string]any{}
	}

	obj := domain.Object{
		UUID:       rec.UUID,
		Properties: props,
		Metadata: domain.Metadata{
			UUID:           rec.UUID,
			CreationTime:   domain.FormatTimestamp(rec.CreatedAt),
			LastUpdateTime: domain.FormatTimestamp(rec.UpdatedAt),
			Distance:       rec.Distance,
			Certainty:      rec.Certainty,
			Score:          rec.Score,
		},
	}
	if includeVector {
		obj.Vector = rec.Vector
	}
	return obj
}
