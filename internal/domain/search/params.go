// Package search holds the vector search parameter variants.
package search

import (
	"fmt"
	"math"

	"github.com/colex-db/colex/internal/domain"
)

// Type selects the search strategy. The vector modes are similarity-ranked
// and mutually exclusive with plain offset pagination.
type Type string

// Search types.
const (
	TypeNone       Type = "none"
	TypeNearText   Type = "nearText"
	TypeNearVector Type = "nearVector"
	TypeNearObject Type = "nearObject"
	TypeHybrid     Type = "hybrid"
)

// IsValid checks if the type is one of the supported variants.
func (t Type) IsValid() bool {
	switch t {
	case TypeNone, TypeNearText, TypeNearVector, TypeNearObject, TypeHybrid:
		return true
	}
	return false
}

// Params is the tagged vector-search variant. Only the fields of the active
// Type are consulted.
type Params struct {
	Type Type `json:"type"`

	// nearText / hybrid
	Text string `json:"text,omitempty"`

	// nearVector
	Vector []float32 `json:"vector,omitempty"`

	// nearObject
	ObjectID string `json:"objectId,omitempty"`

	// shared similarity thresholds
	Certainty *float64 `json:"certainty,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`

	TargetVector   string `json:"targetVector,omitempty"`
	DistanceMetric string `json:"distanceMetric,omitempty"`

	// hybrid
	Alpha      *float64 `json:"alpha,omitempty"`
	FusionType string   `json:"fusionType,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

// Validate fails fast on the payload required by the active variant,
// before any request is issued.
func (p *Params) Validate() error {
	t := p.Type
	if t == "" {
		t = TypeNone
	}
	if !t.IsValid() {
		return fmt.Errorf("%w: invalid vector search type %q", domain.ErrValidation, p.Type)
	}
	switch t {
	case TypeNearText:
		if p.Text == "" {
			return fmt.Errorf("%w: nearText requires non-empty text", domain.ErrValidation)
		}
	case TypeHybrid:
		if p.Text == "" {
			return fmt.Errorf("%w: hybrid requires non-empty text", domain.ErrValidation)
		}
		if p.Alpha != nil && (*p.Alpha < 0 || *p.Alpha > 1) {
			return fmt.Errorf("%w: hybrid alpha must be between 0 and 1", domain.ErrValidation)
		}
	case TypeNearVector:
		if len(p.Vector) == 0 {
			return fmt.Errorf("%w: nearVector requires a non-empty vector", domain.ErrValidation)
		}
		for i, v := range p.Vector {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: vector element %d is not finite", domain.ErrValidation, i)
			}
		}
	case TypeNearObject:
		if p.ObjectID == "" {
			return fmt.Errorf("%w: nearObject requires a non-empty objectId", domain.ErrValidation)
		}
	case TypeNone:
	}
	return nil
}

// IsVector reports whether the params select a similarity-ranked mode.
func (p *Params) IsVector() bool {
	return p.Type != "" && p.Type != TypeNone
}
