package caserecord

import (
	"errors"
	"testing"

	"github.com/epiwatch/casestore/internal/domain"
)

func TestNewAgeRange_Snapping(t *testing.T) {
	tests := []struct {
		lower, upper         int
		wantLower, wantUpper int
	}{
		{2, 6, 1, 10},
		{6, 10, 6, 10},
		{0, 1, 0, 1},
		{0, 5, 0, 5},
		{1, 5, 1, 5},
		{13, 13, 11, 15},
		{20, 24, 16, 25},
		{116, 120, 116, 120},
	}
	for _, tt := range tests {
		got := NewAgeRange(tt.lower, tt.upper)
		if got.Lower != tt.wantLower || got.Upper != tt.wantUpper {
			t.Errorf("NewAgeRange(%d, %d) = [%d, %d], want [%d, %d]",
				tt.lower, tt.upper, got.Lower, got.Upper, tt.wantLower, tt.wantUpper)
		}
	}
}

func TestSnapped_Idempotent(t *testing.T) {
	for lower := 0; lower <= 120; lower++ {
		for _, upper := range []int{1, lower, lower + 4, lower + 9, 120} {
			once := AgeRange{Lower: lower, Upper: upper}.Snapped()
			twice := once.Snapped()
			if once != twice {
				t.Fatalf("snap not idempotent for [%d, %d]: %+v != %+v", lower, upper, once, twice)
			}
		}
	}
}

func TestAgeRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       AgeRange
		wantErr bool
	}{
		{"infant bucket", AgeRange{0, 1}, false},
		{"single bucket", AgeRange{6, 10}, false},
		{"full span", AgeRange{0, 120}, false},
		// [10,10] snaps to the legal [6,10] bucket before the checks run.
		{"degenerate snaps to bucket", AgeRange{10, 10}, false},
		{"negative lower", AgeRange{-5, 10}, true},
		{"upper above 120", AgeRange{100, 125}, true},
		// Snaps to [1,1]: no span and not the infant bucket.
		{"too narrow", AgeRange{5, 1}, true},
		{"inverted", AgeRange{20, 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
