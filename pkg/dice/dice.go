// Package dice parses die notation and rolls seeded dice.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidNotation indicates a string that does not read as die notation.
var ErrInvalidNotation = errors.New("invalid die notation")

// ErrInvalidSpec indicates a spec with non-positive sides or count.
var ErrInvalidSpec = errors.New("dice must have positive sides and count")

// Spec describes one roll: Count dice of Sides sides plus Modifier,
// e.g. {2, 6, 1} for "2d6+1".
type Spec struct {
	Count    int `json:"count"`
	Sides    int `json:"sides"`
	Modifier int `json:"modifier,omitempty"`
}

// String renders the spec back to notation.
func (s Spec) String() string {
	out := fmt.Sprintf("%dd%d", s.Count, s.Sides)
	switch {
	case s.Modifier > 0:
		out += "+" + strconv.Itoa(s.Modifier)
	case s.Modifier < 0:
		out += strconv.Itoa(s.Modifier)
	}
	return out
}

// Parse reads die notation: "d20", "2d6", "4d8-2", "1d10+3". A missing count
// means one die. Case and spaces are ignored.
func Parse(notation string) (Spec, error) {
	s := strings.ToLower(strings.ReplaceAll(notation, " ", ""))

	modifier := 0
	if i := strings.IndexAny(s, "+-"); i > 0 {
		m, err := strconv.Atoi(s[i:])
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
		}
		modifier = m
		s = s[:i]
	}

	countStr, sidesStr, found := strings.Cut(s, "d")
	if !found || sidesStr == "" {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
	}

	count := 1
	if countStr != "" {
		c, err := strconv.Atoi(countStr)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
		}
		count = c
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
	}
	if count <= 0 || sides <= 0 {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, notation)
	}

	return Spec{Count: count, Sides: sides, Modifier: modifier}, nil
}

// Result captures one resolved roll. Total is the sum of Results plus the
// spec's modifier.
type Result struct {
	Notation string `json:"notation"`
	Results  []int  `json:"results"`
	Modifier int    `json:"modifier,omitempty"`
	Total    int    `json:"total"`
}

// Roll resolves the spec. Results are deterministic with respect to seed;
// a zero seed draws one from the clock.
func Roll(spec Spec, seed int64) (Result, error) {
	if spec.Count <= 0 || spec.Sides <= 0 {
		return Result{}, ErrInvalidSpec
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))
	results := make([]int, spec.Count)
	total := spec.Modifier
	for i := range results {
		v := rng.Intn(spec.Sides) + 1
		results[i] = v
		total += v
	}

	return Result{
		Notation: spec.String(),
		Results:  results,
		Modifier: spec.Modifier,
		Total:    total,
	}, nil
}

// RollNotation parses and rolls in one step.
func RollNotation(notation string, seed int64) (Result, error) {
	spec, err := Parse(notation)
	if err != nil {
		return Result{}, err
	}
	return Roll(spec, seed)
}
