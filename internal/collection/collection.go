// Package collection defines the contract this service consumes from the
// underlying collection database: paginated fetch, the four similarity query
// modes, aggregate counts, and full-collection streaming. Backends implement
// Store; everything above it compiles against these interfaces only.
package collection

import (
	"context"
	"time"
)

// Record is a raw hit as returned by a backend, before normalization.
type Record struct {
	UUID       string
	Properties map[string]any
	Vector     []float32
	CreatedAt  int64 // unix milliseconds, 0 = unknown
	UpdatedAt  int64
	Distance   *float64
	Certainty  *float64
	Score      *float64
}

// SortOrder is the direction of a sort clause.
type SortOrder string

// Sort orders.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sort is a single sort clause on a property path.
type Sort struct {
	Path  string
	Order SortOrder
}

// FetchQuery is a plain paginated fetch.
type FetchQuery struct {
	Collection       string
	Limit            int
	Offset           int
	Where            *Predicate
	Sort             *Sort
	ReturnProperties []string
	IncludeVector    bool
}

// NearTextQuery is a text similarity query. The backend vectorizes the text.
type NearTextQuery struct {
	Collection    string
	Text          string
	Limit         int
	Where         *Predicate
	Certainty     *float64
	Distance      *float64
	TargetVector  string
	IncludeVector bool
}

// NearVectorQuery is a raw vector similarity query.
type NearVectorQuery struct {
	Collection    string
	Vector        []float32
	Limit         int
	Where         *Predicate
	Certainty     *float64
	Distance      *float64
	TargetVector  string
	IncludeVector bool
}

// NearObjectQuery ranks by similarity to a stored object's vector.
type NearObjectQuery struct {
	Collection    string
	ObjectID      string
	Limit         int
	Where         *Predicate
	Certainty     *float64
	Distance      *float64
	IncludeVector bool
}

// HybridQuery fuses vector and keyword rankings.
type HybridQuery struct {
	Collection    string
	Text          string
	Limit         int
	Where         *Predicate
	Alpha         *float64 // vector weight, default 0.5
	FusionType    string
	Properties    []string // keyword search properties, backend-dependent
	IncludeVector bool
}

// Querier issues the five query modes against a collection.
type Querier interface {
	FetchObjects(ctx context.Context, q *FetchQuery) ([]Record, error)
	NearText(ctx context.Context, q *NearTextQuery) ([]Record, error)
	NearVector(ctx context.Context, q *NearVectorQuery) ([]Record, error)
	NearObject(ctx context.Context, q *NearObjectQuery) ([]Record, error)
	Hybrid(ctx context.Context, q *HybridQuery) ([]Record, error)
}

// Aggregator provides total counts. CountWhere reports supported=false when
// the backend has no cheap server-side filtered count; callers then fall
// back to the capped fetch estimate.
type Aggregator interface {
	CountAll(ctx context.Context, collection string) (int, error)
	CountWhere(ctx context.Context, collection string, where *Predicate) (count int, supported bool, err error)
}

// IterateOptions configure a streaming iteration.
type IterateOptions struct {
	IncludeVector bool
	BatchSize     int // backend page size hint, 0 = default
}

// Iterator yields one record at a time. Next returns domain.ErrIteratorDone
// when the collection is exhausted. Close releases backend resources and is
// safe to call more than once.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
	Close()
}

// Streamer opens a full-collection iteration, preferred over repeated
// offset-based fetches for huge collections.
type Streamer interface {
	Iterate(ctx context.Context, collection string, opts IterateOptions) (Iterator, error)
}

// Info describes one known collection.
type Info struct {
	Name        string    `json:"name"`
	ObjectCount int       `json:"objectCount"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

// Lister enumerates the known collections.
type Lister interface {
	ListCollections(ctx context.Context) ([]Info, error)
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the full backend facade. Consumers depend on the narrow
// sub-interfaces above; Store exists for composition roots.
type Store interface {
	Querier
	Aggregator
	Streamer
	Lister
	Pinger
	Close()
}
