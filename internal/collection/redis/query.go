package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/colex-db/colex/internal/collection"
	"github.com/colex-db/colex/internal/domain"
)

// Hash fields written by the ingest pipeline.
const (
	fieldProps     = "__props"
	fieldVector    = "__vector"
	fieldText      = "__text"
	fieldCreatedAt = "__created_at"
	fieldUpdatedAt = "__updated_at"
	fieldScore     = "__score"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from
// Cormack et al. 2009).
const rrfK = 60

// FetchObjects runs a plain paginated FT.SEARCH.
func (s *Store) FetchObjects(ctx context.Context, q *collection.FetchQuery) ([]collection.Record, error) {
	queryStr, err := compilePredicate(q.Where)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{s.indexName(q.Collection), queryStr}

	// An empty non-nil property list means the caller only needs existence
	// and ids, so skip document content entirely.
	idsOnly := q.ReturnProperties != nil && len(q.ReturnProperties) == 0
	if idsOnly {
		args = append(args, "NOCONTENT")
	} else {
		args = appendReturnFields(args, q.IncludeVector)
	}

	if q.Sort != nil {
		dir := "ASC"
		if q.Sort.Order == collection.SortDesc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", fieldName(q.Sort.Path), dir)
	}

	args = append(args,
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Collection, err)
	}

	if idsOnly {
		return s.parseNoContent(q.Collection, raw), nil
	}
	return s.parseSearchResult(q.Collection, raw, q.IncludeVector, nil)
}

// NearText vectorizes the query text and delegates to NearVector.
func (s *Store) NearText(ctx context.Context, q *collection.NearTextQuery) ([]collection.Record, error) {
	vector, err := s.embedText(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	return s.NearVector(ctx, &collection.NearVectorQuery{
		Collection:    q.Collection,
		Vector:        vector,
		Limit:         q.Limit,
		Where:         q.Where,
		Certainty:     q.Certainty,
		Distance:      q.Distance,
		TargetVector:  q.TargetVector,
		IncludeVector: q.IncludeVector,
	})
}

// NearVector runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) NearVector(ctx context.Context, q *collection.NearVectorQuery) ([]collection.Record, error) {
	records, err := s.searchKNN(ctx, q.Collection, q.Vector, q.Limit, q.Where, q.IncludeVector)
	if err != nil {
		return nil, err
	}
	return applyThresholds(records, q.Certainty, q.Distance), nil
}

// NearObject looks up the stored vector of an object and ranks by
// similarity to it. The anchor object itself stays in the result set.
func (s *Store) NearObject(ctx context.Context, q *collection.NearObjectQuery) ([]collection.Record, error) {
	vector, err := s.objectVector(ctx, q.Collection, q.ObjectID)
	if err != nil {
		return nil, err
	}
	return s.NearVector(ctx, &collection.NearVectorQuery{
		Collection:    q.Collection,
		Vector:        vector,
		Limit:         q.Limit,
		Where:         q.Where,
		Certainty:     q.Certainty,
		Distance:      q.Distance,
		IncludeVector: q.IncludeVector,
	})
}

// Hybrid fuses a KNN ranking with a BM25 keyword ranking. Both legs run
// with the same filter; fusion defaults to alpha-weighted RRF.
func (s *Store) Hybrid(ctx context.Context, q *collection.HybridQuery) ([]collection.Record, error) {
	vector, err := s.embedText(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	knn, err := s.searchKNN(ctx, q.Collection, vector, q.Limit, q.Where, q.IncludeVector)
	if err != nil {
		return nil, err
	}
	bm25, err := s.searchBM25(ctx, q.Collection, q.Text, q.Limit, q.Where, q.IncludeVector)
	if err != nil {
		return nil, err
	}

	alpha := 0.5
	if q.Alpha != nil {
		alpha = *q.Alpha
	}
	if q.FusionType == "relativeScoreFusion" {
		return fuseRelativeScore(knn, bm25, alpha, q.Limit), nil
	}
	return fuseRRF(knn, bm25, alpha, q.Limit), nil
}

// CountAll returns the exact object count via FT.SEARCH with LIMIT 0 0.
func (s *Store) CountAll(ctx context.Context, collectionName string) (int, error) {
	return s.searchCount(ctx, collectionName, "*")
}

// CountWhere returns the exact filtered count. FT.SEARCH counts are cheap
// server-side, so this backend always reports supported.
func (s *Store) CountWhere(ctx context.Context, collectionName string, where *collection.Predicate) (int, bool, error) {
	queryStr, err := compilePredicate(where)
	if err != nil {
		return 0, false, fmt.Errorf("compile filter: %w", err)
	}
	if queryStr == "" {
		queryStr = "*"
	}
	count, err := s.searchCount(ctx, collectionName, queryStr)
	if err != nil {
		return 0, true, err
	}
	return count, true, nil
}

// --- Search legs ---

func (s *Store) searchKNN(
	ctx context.Context, collectionName string, vector []float32,
	k int, where *collection.Predicate, includeVector bool,
) ([]collection.Record, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	filterStr, err := compilePredicate(where)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	knnPart := fmt.Sprintf("[KNN %d @%s $BLOB AS %s]", k, fieldVector, fieldScore)
	queryStr := "*=>" + knnPart
	if filterStr != "" {
		queryStr = fmt.Sprintf("(%s)=>%s", filterStr, knnPart)
	}

	args := []string{s.indexName(collectionName), queryStr}
	args = appendReturnFields(args, includeVector, fieldScore)
	args = append(args,
		"SORTBY", fieldScore, "ASC",
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", collectionName, err)
	}

	return s.parseSearchResult(collectionName, raw, includeVector, knnScorer)
}

func (s *Store) searchBM25(
	ctx context.Context, collectionName, text string,
	topK int, where *collection.Predicate, includeVector bool,
) ([]collection.Record, error) {
	filterStr, err := compilePredicate(where)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	textPart := fmt.Sprintf("@%s:(%s)", fieldText, escapeQuery(text))
	queryStr := textPart
	if filterStr != "" {
		queryStr = filterStr + " " + textPart
	}

	args := []string{s.indexName(collectionName), queryStr}
	args = appendReturnFields(args, includeVector)
	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("bm25 search %s: %w", collectionName, err)
	}

	return s.parseScoredResult(collectionName, raw, includeVector)
}

func (s *Store) searchCount(ctx context.Context, collectionName, queryStr string) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(s.indexName(collectionName), queryStr, "LIMIT", "0", "0", "DIALECT", "2").
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collectionName, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("text search requires an embedding provider, none is configured")
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}
	return vector, nil
}

func (s *Store) objectVector(ctx context.Context, collectionName, id string) ([]float32, error) {
	cmd := s.b().Hget().Key(s.docKey(collectionName, id)).Field(fieldVector).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, fmt.Errorf("object %s: %w", id, domain.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("load vector for %s: %w", id, err)
	}
	vector := bytesToVector(data)
	if len(vector) == 0 {
		return nil, fmt.Errorf("object %s has no vector: %w", id, domain.ErrObjectNotFound)
	}
	return vector, nil
}

// --- Result parsing ---

// knnScorer maps the KNN distance field onto a record: distance is the raw
// cosine distance, certainty its [0,1] rescale, score the similarity.
func knnScorer(rec *collection.Record, fields map[string]string) {
	raw, ok := fields[fieldScore]
	if !ok {
		return
	}
	dist, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return
	}
	certainty := 1.0 - dist/2.0
	score := math.Max(0, 1.0-dist)
	rec.Distance = &dist
	rec.Certainty = &certainty
	rec.Score = &score
}

// parseSearchResult walks the RESP2 2-stride reply
// [total, key1, fields1, key2, fields2, ...].
func (s *Store) parseSearchResult(
	collectionName string, raw []rueidis.RedisMessage,
	includeVector bool, scorer func(*collection.Record, map[string]string),
) ([]collection.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	records := make([]collection.Record, 0, len(raw)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		fields := parseFieldPairs(fieldArr)
		rec := s.recordFromFields(collectionName, key, fields, includeVector)
		if scorer != nil {
			scorer(&rec, fields)
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseScoredResult walks the WITHSCORES 3-stride reply
// [total, key1, score1, fields1, ...].
func (s *Store) parseScoredResult(
	collectionName string, raw []rueidis.RedisMessage, includeVector bool,
) ([]collection.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	records := make([]collection.Record, 0, len(raw)/3)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fieldArr, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		rec := s.recordFromFields(collectionName, key, parseFieldPairs(fieldArr), includeVector)
		rec.Score = &score
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) parseNoContent(collectionName string, raw []rueidis.RedisMessage) []collection.Record {
	if len(raw) < 2 {
		return nil
	}
	// 1-stride after the total: [total, key1, key2, ...]
	records := make([]collection.Record, 0, len(raw)-1)
	for _, msg := range raw[1:] {
		key, err := msg.ToString()
		if err != nil {
			continue
		}
		records = append(records, collection.Record{
			UUID: s.uuidFromKey(collectionName, key),
		})
	}
	return records
}

func (s *Store) recordFromFields(
	collectionName, key string, fields map[string]string, includeVector bool,
) collection.Record {
	rec := collection.Record{UUID: s.uuidFromKey(collectionName, key)}

	if props, ok := fields[fieldProps]; ok && props != "" {
		if err := json.Unmarshal([]byte(props), &rec.Properties); err != nil {
			rec.Properties = map[string]any{}
		}
	}
	if v, ok := fields[fieldCreatedAt]; ok {
		rec.CreatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields[fieldUpdatedAt]; ok {
		rec.UpdatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if includeVector {
		if v, ok := fields[fieldVector]; ok {
			rec.Vector = bytesToVector([]byte(v))
		}
	}
	return rec
}

func (s *Store) uuidFromKey(collectionName, key string) string {
	return strings.TrimPrefix(key, s.keyPrefix(collectionName))
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func appendReturnFields(args []string, includeVector bool, extra ...string) []string {
	fields := []string{fieldProps, fieldCreatedAt, fieldUpdatedAt}
	if includeVector {
		fields = append(fields, fieldVector)
	}
	fields = append(fields, extra...)
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

// --- Threshold filtering and fusion ---

// applyThresholds drops hits outside the requested certainty or distance
// bound. FT.SEARCH KNN has no server-side threshold, so this runs client
// side on the already-capped result.
func applyThresholds(records []collection.Record, certainty, distance *float64) []collection.Record {
	if certainty == nil && distance == nil {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if distance != nil && rec.Distance != nil && *rec.Distance > *distance {
			continue
		}
		if certainty != nil && rec.Certainty != nil && *rec.Certainty < *certainty {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// fusedSet accumulates fusion scores per document. The first record seen
// for a uuid wins (the KNN leg runs first, so its record, which carries the
// distance and vector, is kept on overlap).
type fusedSet struct {
	records []collection.Record
	scores  []float64
	index   map[string]int
}

func newFusedSet(capacity int) *fusedSet {
	return &fusedSet{
		records: make([]collection.Record, 0, capacity),
		scores:  make([]float64, 0, capacity),
		index:   make(map[string]int, capacity),
	}
}

func (f *fusedSet) add(rec collection.Record, score float64) {
	if i, ok := f.index[rec.UUID]; ok {
		f.scores[i] += score
		return
	}
	f.index[rec.UUID] = len(f.records)
	f.records = append(f.records, rec)
	f.scores = append(f.scores, score)
}

// ranked rewrites the fused score onto each record and sorts descending.
// The stable sort makes insertion order break ties deterministically.
func (f *fusedSet) ranked(topK int) []collection.Record {
	for i := range f.records {
		score := f.scores[i]
		f.records[i].Score = &score
	}
	sort.SliceStable(f.records, func(i, j int) bool {
		return *f.records[i].Score > *f.records[j].Score
	})
	if topK > 0 && len(f.records) > topK {
		return f.records[:topK]
	}
	return f.records
}

// fuseRRF merges the two rankings via alpha-weighted Reciprocal Rank
// Fusion: score(d) = alpha/(k+rank_knn) + (1-alpha)/(k+rank_bm25).
func fuseRRF(knn, bm25 []collection.Record, alpha float64, topK int) []collection.Record {
	fused := newFusedSet(len(knn) + len(bm25))
	for rank, rec := range knn {
		fused.add(rec, alpha/float64(rrfK+rank+1))
	}
	for rank, rec := range bm25 {
		fused.add(rec, (1-alpha)/float64(rrfK+rank+1))
	}
	return fused.ranked(topK)
}

// fuseRelativeScore normalizes each leg's scores to [0,1] by its own
// maximum, then blends them with alpha.
func fuseRelativeScore(knn, bm25 []collection.Record, alpha float64, topK int) []collection.Record {
	fused := newFusedSet(len(knn) + len(bm25))

	maxKNN := maxScore(knn)
	for _, rec := range knn {
		s := 0.0
		if rec.Score != nil && maxKNN > 0 {
			s = alpha * (*rec.Score / maxKNN)
		}
		fused.add(rec, s)
	}

	maxBM25 := maxScore(bm25)
	for _, rec := range bm25 {
		s := 0.0
		if rec.Score != nil && maxBM25 > 0 {
			s = (1 - alpha) * (*rec.Score / maxBM25)
		}
		fused.add(rec, s)
	}
	return fused.ranked(topK)
}

func maxScore(records []collection.Record) float64 {
	m := 0.0
	for _, rec := range records {
		if rec.Score != nil && *rec.Score > m {
			m = *rec.Score
		}
	}
	return m
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(data []byte) []float32 {
	if len(data) < 4 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
