// Package export holds the export request/response value types.
package export

import (
	"fmt"

	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/filter"
)

// TruncationLimit is the hard cap applied to full and filtered exports to
// bound memory and latency.
const TruncationLimit = 10000

// Format is the serialization format of an export.
type Format string

// Export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Extension returns the file extension for the format.
func (f Format) Extension() string { return string(f) }

// IsValid checks if the format is supported.
func (f Format) IsValid() bool { return f == FormatJSON || f == FormatCSV }

// Scope selects which objects an export covers.
type Scope string

// Export scopes.
const (
	// ScopeCurrentPage serializes caller-supplied in-memory objects; no fetch.
	ScopeCurrentPage Scope = "currentPage"
	// ScopeFiltered paginates through the filtered result set.
	ScopeFiltered Scope = "filtered"
	// ScopeAll streams the whole collection.
	ScopeAll Scope = "all"
)

// Suffix returns the filename scope suffix.
func (s Scope) Suffix() string {
	switch s {
	case ScopeCurrentPage:
		return "page"
	case ScopeFiltered:
		return "filtered"
	default:
		return "all"
	}
}

// IsValid checks if the scope is supported.
func (s Scope) IsValid() bool {
	return s == ScopeCurrentPage || s == ScopeFiltered || s == ScopeAll
}

// Options control which parts of each object are serialized.
type Options struct {
	IncludeMetadata   bool `json:"includeMetadata"`
	IncludeProperties bool `json:"includeProperties"`
	IncludeVectors    bool `json:"includeVectors"`
	FlattenNested     bool `json:"flattenNested"`
}

// Params is an export request. A filtered export carries either a group
// tree (Filters, whose operators govern combination) or a flat condition
// list (Conditions, combined per MatchMode); Filters wins when both are set.
type Params struct {
	CollectionName string
	Format         Format
	Scope          Scope
	CurrentObjects []domain.Object
	Filters        *filter.Group
	Conditions     []filter.Condition
	MatchMode      filter.MatchMode
	Options        Options
}

// Validate checks the scope/payload invariants before any work starts.
func (p *Params) Validate() error {
	if p.CollectionName == "" {
		return fmt.Errorf("%w: collection name is required", domain.ErrValidation)
	}
	if !p.Format.IsValid() {
		return fmt.Errorf("%w: invalid export format %q", domain.ErrValidation, p.Format)
	}
	if !p.Scope.IsValid() {
		return fmt.Errorf("%w: invalid export scope %q", domain.ErrValidation, p.Scope)
	}
	switch p.Scope {
	case ScopeCurrentPage:
		if p.CurrentObjects == nil {
			return fmt.Errorf("%w: currentPage export requires currentObjects", domain.ErrValidation)
		}
	case ScopeFiltered:
		if (p.Filters == nil || p.Filters.IsEmpty()) && len(p.Conditions) == 0 {
			return fmt.Errorf("%w: filtered export requires a filter", domain.ErrValidation)
		}
		if p.Filters != nil && !p.Filters.IsEmpty() {
			if err := p.Filters.Validate(); err != nil {
				return err
			}
		}
	case ScopeAll:
		// where is ignored by contract
	}
	return nil
}

// Result is a completed export. IsTruncated is set only when the true result
// size exceeds the truncation ceiling.
type Result struct {
	Filename        string `json:"filename"`
	Data            string `json:"data"`
	ObjectCount     int    `json:"objectCount"`
	Format          Format `json:"format"`
	IsTruncated     bool   `json:"isTruncated"`
	TruncationLimit int    `json:"truncationLimit,omitempty"`
	TotalCount      int    `json:"totalCount,omitempty"`
}
