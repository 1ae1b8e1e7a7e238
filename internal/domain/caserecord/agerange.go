package caserecord

import (
	"fmt"

	"github.com/epiwatch/casestore/internal/domain"
)

// AgeRange is an inclusive age interval, bucketed to 5-year boundaries
// except for the reserved infant bucket [0, 1].
type AgeRange struct {
	Lower int `json:"lower" bson:"lower"`
	Upper int `json:"upper" bson:"upper"`
}

// NewAgeRange creates a snapped age range from raw bounds.
func NewAgeRange(lower, upper int) AgeRange {
	return AgeRange{Lower: lower, Upper: upper}.Snapped()
}

// Snapped returns the range aligned to bucket boundaries: the lower
// bound drops to the start of its 5-year bucket (5k+1) unless it is 0,
// the upper bound rises to the next multiple of 5 unless it is 1.
// Snapping an already-snapped range is a no-op. The 0/1 special cases
// are asymmetric on purpose: they carve out the infant bucket without
// disturbing the [5k+1, 5k+5] grid downstream consumers rely on.
func (a AgeRange) Snapped() AgeRange {
	if a.Lower != 0 {
		a.Lower = floorDiv(a.Lower-1, 5)*5 + 1
	}
	if a.Upper != 1 {
		a.Upper = floorDiv(a.Upper+4, 5) * 5
	}
	return a
}

// Validate checks the snapped bounds: lower >= 0, upper <= 120 and a
// span of at least one full bucket, or exactly the infant bucket.
func (a AgeRange) Validate() error {
	s := a.Snapped()
	if s.Lower == 0 && s.Upper == 1 {
		return nil
	}
	if s.Lower < 0 {
		return fmt.Errorf("age range lower bound %d is negative: %w", s.Lower, domain.ErrValidation)
	}
	if s.Upper > 120 {
		return fmt.Errorf("age range upper bound %d exceeds 120: %w", s.Upper, domain.ErrValidation)
	}
	if s.Upper-s.Lower < 4 {
		return fmt.Errorf("age range [%d, %d] narrower than a bucket: %w", s.Lower, s.Upper, domain.ErrValidation)
	}
	return nil
}

// floorDiv divides rounding toward negative infinity, so negative raw
// bounds stay negative through snapping and fail validation.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
