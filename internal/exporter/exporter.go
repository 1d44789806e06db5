// Package exporter streams query results into JSON or CSV exports under a
// hard truncation ceiling and cooperative cancellation.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/export"
	"github.com/colex-db/colex/internal/executor"
	"github.com/colex-db/colex/internal/metrics"
	"github.com/colex-db/colex/internal/translator"
)

// DefaultPageSize is the fetch page size for filtered exports.
const DefaultPageSize = 1000

// Engine drives exports: bounded single-page, streaming full, or paginated
// filtered, then serializes the accumulated objects.
type Engine struct {
	querier  collection.Querier
	agg      collection.Aggregator
	streamer collection.Streamer
	logger   *zap.Logger
	limit    int
	pageSize int
	now      func() time.Time
}

// New creates an export engine.
func New(
	querier collection.Querier,
	agg collection.Aggregator,
	streamer collection.Streamer,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		querier:  querier,
		agg:      agg,
		streamer: streamer,
		logger:   logger,
		limit:    export.TruncationLimit,
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
}

// WithLimits overrides the truncation ceiling and the filtered-export page
// size. Non-positive values keep the defaults.
func (e *Engine) WithLimits(limit, pageSize int) *Engine {
	if limit > 0 {
		e.limit = limit
	}
	if pageSize > 0 {
		e.pageSize = pageSize
	}
	return e
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Export runs one export. The context is the cooperative cancellation
// signal: it is checked once before starting and at every page/object
// boundary, never forced mid-network-call.
func (e *Engine) Export(ctx context.Context, p *export.Params) (export.Result, error) {
	if err := p.Validate(); err != nil {
		return export.Result{}, err
	}
	if err := checkCancelled(ctx); err != nil {
		return export.Result{}, e.wrapErr(p.CollectionName, err)
	}

	start := e.now()
	res, err := e.run(ctx, p)
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrExportCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	metrics.ExportsTotal.WithLabelValues(string(p.Scope), string(p.Format), outcome).Inc()
	if err != nil {
		return export.Result{}, err
	}

	metrics.ExportDuration.WithLabelValues(string(p.Scope), string(p.Format)).
		Observe(e.now().Sub(start).Seconds())
	metrics.ExportObjects.WithLabelValues(string(p.Scope)).Observe(float64(res.ObjectCount))

	e.logger.Info("export completed",
		zap.String("collection", p.CollectionName),
		zap.String("scope", string(p.Scope)),
		zap.String("format", string(p.Format)),
		zap.Int("objects", res.ObjectCount),
		zap.Bool("truncated", res.IsTruncated),
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, p *export.Params) (export.Result, error) {
	var (
		objects    []domain.Object
		totalCount int
		truncated  bool
		err        error
	)

	switch p.Scope {
	case export.ScopeCurrentPage:
		// Caller-supplied in-memory objects; no network call.
		objects = p.CurrentObjects
		totalCount = len(objects)
	case export.ScopeAll:
		objects, totalCount, truncated, err = e.collectAll(ctx, p)
	case export.ScopeFiltered:
		objects, totalCount, truncated, err = e.collectFiltered(ctx, p)
	}
	if err != nil {
		return export.Result{}, e.wrapErr(p.CollectionName, err)
	}

	data, err := serialize(objects, p.Format, p.Options)
	if err != nil {
		return export.Result{}, fmt.Errorf("serialize export: %w", err)
	}

	res := export.Result{
		Filename:    e.filename(p),
		Data:        data,
		ObjectCount: len(objects),
		Format:      p.Format,
		IsTruncated: truncated,
		TotalCount:  totalCount,
	}
	if truncated {
		res.TruncationLimit = e.limit
	}
	return res, nil
}

// collectAll streams the whole collection through the backend iterator,
// one object at a time, stopping the instant the ceiling is reached.
func (e *Engine) collectAll(
	ctx context.Context, p *export.Params,
) ([]domain.Object, int, bool, error) {
	it, err := e.streamer.Iterate(ctx, p.CollectionName, collection.IterateOptions{
		IncludeVector: p.Options.IncludeVectors,
	})
	if err != nil {
		return nil, 0, false, fmt.Errorf("open iterator: %w", err)
	}
	defer it.Close()

	var objects []domain.Object
	for len(objects) < e.limit {
		if err := checkCancelled(ctx); err != nil {
			return nil, 0, false, err
		}
		rec, err := it.Next(ctx)
		if errors.Is(err, domain.ErrIteratorDone) {
			return objects, len(objects), false, nil
		}
		if err != nil {
			return nil, 0, false, fmt.Errorf("iterate collection: %w", err)
		}
		objects = append(objects, executor.Normalize(&rec, p.Options.IncludeVectors))
	}

	total, truncated := e.resolveOverflow(ctx, p.CollectionName, it)
	return objects, total, truncated, nil
}

// resolveOverflow decides whether a capped iteration was actually truncated:
// best-effort total count first, then a single iterator peek when the count
// is unavailable.
func (e *Engine) resolveOverflow(
	ctx context.Context, collectionName string, it collection.Iterator,
) (int, bool) {
	total, err := e.agg.CountAll(ctx, collectionName)
	if err == nil {
		return total, total > e.limit
	}
	e.logger.Warn("total count unavailable after capped export",
		zap.String("collection", collectionName),
		zap.Error(err),
	)
	if _, peekErr := it.Next(ctx); peekErr == nil {
		return 0, true
	}
	return 0, false
}

// collectFiltered paginates through the filtered result set until exhausted
// or the ceiling is reached.
func (e *Engine) collectFiltered(
	ctx context.Context, p *export.Params,
) ([]domain.Object, int, bool, error) {
	where, err := e.translateFilter(p)
	if err != nil {
		return nil, 0, false, err
	}
	if where == nil {
		return nil, 0, false, fmt.Errorf("%w: filtered export requires a filter", domain.ErrValidation)
	}

	var objects []domain.Object
	offset := 0
	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, 0, false, err
		}

		limit := e.pageSize
		if remaining := e.limit - len(objects); remaining < limit {
			limit = remaining
		}
		records, err := e.querier.FetchObjects(ctx, &collection.FetchQuery{
			Collection:    p.CollectionName,
			Limit:         limit,
			Offset:        offset,
			Where:         where,
			IncludeVector: p.Options.IncludeVectors,
		})
		if err != nil {
			return nil, 0, false, fmt.Errorf("fetch export page: %w", err)
		}
		for i := range records {
			objects = append(objects, executor.Normalize(&records[i], p.Options.IncludeVectors))
		}
		offset += len(records)

		if len(records) < limit {
			return objects, len(objects), false, nil
		}
		if len(objects) >= e.limit {
			break
		}
	}

	total, truncated := e.resolveFilteredOverflow(ctx, p.CollectionName, where)
	return objects, total, truncated, nil
}

// translateFilter resolves the export filter: the group tree when present
// (its operators govern combination), else the flat condition list combined
// per the match mode.
func (e *Engine) translateFilter(p *export.Params) (*collection.Predicate, error) {
	if p.Filters != nil && !p.Filters.IsEmpty() {
		return translator.Group(p.Filters)
	}
	return translator.Conditions(p.Conditions, p.MatchMode)
}

func (e *Engine) resolveFilteredOverflow(
	ctx context.Context, collectionName string, where *collection.Predicate,
) (int, bool) {
	count, supported, err := e.agg.CountWhere(ctx, collectionName, where)
	if err == nil && supported {
		return count, count > e.limit
	}
	if err != nil {
		e.logger.Warn("filtered count unavailable after capped export",
			zap.String("collection", collectionName),
			zap.Error(err),
		)
	}

	// Peek one row past the ceiling to distinguish "exactly the cap" from
	// a genuinely larger result set.
	records, peekErr := e.querier.FetchObjects(ctx, &collection.FetchQuery{
		Collection:       collectionName,
		Limit:            1,
		Offset:           e.limit,
		Where:            where,
		ReturnProperties: []string{},
	})
	if peekErr == nil && len(records) > 0 {
		return 0, true
	}
	return 0, false
}

func (e *Engine) filename(p *export.Params) string {
	return fmt.Sprintf("%s_%s_%s.%s",
		p.CollectionName,
		e.now().UTC().Format("2006-01-02"),
		p.Scope.Suffix(),
		p.Format.Extension(),
	)
}

// wrapErr distinguishes cancellation from failure and rewrites timeouts
// into an actionable message. Everything else propagates intact.
func (e *Engine) wrapErr(collectionName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrExportCancelled) || errors.Is(err, context.Canceled) {
		return domain.ErrExportCancelled
	}
	if isTimeout(err) {
		return domain.NewTimeout(collectionName, err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout")
}

// checkCancelled maps a done context onto the export error taxonomy: an
// expired deadline is a timeout, everything else a cooperative cancellation.
func checkCancelled(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrExportCancelled
}
