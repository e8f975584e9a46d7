package models

import (
	"errors"
	"fmt"
)

// Gender is the self-declared gender of an actor, as supplied by the profile collaborator.
type Gender string

const (
	GenderUnknown   Gender = ""
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "nonbinary"
)

// AgeBand groups ages into the coarse ranges users can filter on.
type AgeBand string

const (
	AgeBandUnknown AgeBand = ""
	AgeBand18to24  AgeBand = "18-24"
	AgeBand25to34  AgeBand = "25-34"
	AgeBand35to44  AgeBand = "35-44"
	AgeBand45plus  AgeBand = "45+"
)

// AgeBandFor maps an age in years onto its band. Ages below 18 have no band.
func AgeBandFor(age int) AgeBand {
	switch {
	case age >= 45:
		return AgeBand45plus
	case age >= 35:
		return AgeBand35to44
	case age >= 25:
		return AgeBand25to34
	case age >= 18:
		return AgeBand18to24
	default:
		return AgeBandUnknown
	}
}

func (g Gender) valid() bool {
	switch g {
	case GenderUnknown, GenderMale, GenderFemale, GenderNonBinary:
		return true
	}
	return false
}

func (b AgeBand) valid() bool {
	switch b {
	case AgeBandUnknown, AgeBand18to24, AgeBand25to34, AgeBand35to44, AgeBand45plus:
		return true
	}
	return false
}

// Traits are the attributes of an actor that other actors' filters are evaluated against.
// Anonymous visitors may leave both fields empty.
type Traits struct {
	Gender  Gender  `json:"gender,omitempty"`
	AgeBand AgeBand `json:"age_band,omitempty"`
}

// Validate rejects values outside the known enumerations.
func (t Traits) Validate() error {
	if !t.Gender.valid() {
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidFilter, t.Gender)
	}
	if !t.AgeBand.valid() {
		return fmt.Errorf("%w: unknown age band %q", ErrInvalidFilter, t.AgeBand)
	}
	return nil
}

// FilterKind discriminates the two shapes a Filter can take.
type FilterKind string

const (
	FilterAny      FilterKind = "any"
	FilterSpecific FilterKind = "specific"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Filter describes which partners an actor accepts.
// It is either Any, or Specific with a gender and/or an age band; an empty
// field inside a Specific filter does not constrain that attribute.
// Build values with AnyFilter and SpecificFilter.
type Filter struct {
	Kind    FilterKind `json:"kind"`
	Gender  Gender     `json:"gender,omitempty"`
	AgeBand AgeBand    `json:"age_band,omitempty"`
}

// AnyFilter accepts every partner.
func AnyFilter() Filter {
	return Filter{Kind: FilterAny}
}

// SpecificFilter accepts only partners whose traits match the given values.
func SpecificFilter(gender Gender, band AgeBand) Filter {
	return Filter{Kind: FilterSpecific, Gender: gender, AgeBand: band}
}

// Normalize treats the zero Filter as Any, so clients that omit the filter are not rejected.
func (f Filter) Normalize() Filter {
	if f.Kind == "" && f.Gender == "" && f.AgeBand == "" {
		return AnyFilter()
	}
	return f
}

// Validate checks that the filter is one of the two allowed shapes.
func (f Filter) Validate() error {
	switch f.Kind {
	case FilterAny:
		if f.Gender != GenderUnknown || f.AgeBand != AgeBandUnknown {
			return fmt.Errorf("%w: an any filter carries no criteria", ErrInvalidFilter)
		}
		return nil
	case FilterSpecific:
		if f.Gender == GenderUnknown && f.AgeBand == AgeBandUnknown {
			return fmt.Errorf("%w: a specific filter needs a gender or an age band", ErrInvalidFilter)
		}
		if !f.Gender.valid() {
			return fmt.Errorf("%w: unknown gender %q", ErrInvalidFilter, f.Gender)
		}
		if !f.AgeBand.valid() {
			return fmt.Errorf("%w: unknown age band %q", ErrInvalidFilter, f.AgeBand)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
	}
}

// Accepts reports whether a partner with the given traits satisfies the filter.
// A Specific filter never accepts an unknown value for a constrained attribute.
func (f Filter) Accepts(t Traits) bool {
	if f.Kind != FilterSpecific {
		return true
	}
	if f.Gender != GenderUnknown && f.Gender != t.Gender {
		return false
	}
	if f.AgeBand != AgeBandUnknown && f.AgeBand != t.AgeBand {
		return false
	}
	return true
}

// Compatible is the mutual acceptance predicate used by the pairing engine.
func Compatible(a, b WaitingPoolEntry) bool {
	return a.Filter.Accepts(b.Traits) && b.Filter.Accepts(a.Traits)
}
