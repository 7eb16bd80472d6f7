// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package resources

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Resource amounts by resource class, as requested or allocated.
type Resources map[string]int

// Deep copy. A nil map yields an empty one.
func (r Resources) Clone() Resources {
	out := make(Resources, len(r))
	maps.Copy(out, r)
	return out
}

// Sum of both amounts per resource class. Classes summing up to zero are dropped.
func (r Resources) Add(other Resources) Resources {
	out := r.Clone()
	for class, amount := range other {
		out[class] += amount
		if out[class] == 0 {
			delete(out, class)
		}
	}
	return out
}

// Difference per resource class, clamped at zero. Classes reaching zero are dropped.
func (r Resources) Subtract(other Resources) Resources {
	out := r.Clone()
	for class, amount := range other {
		remaining := out[class] - amount
		if remaining <= 0 {
			delete(out, class)
			continue
		}
		out[class] = remaining
	}
	return out
}

// Copy without zero amounts.
func (r Resources) WithoutZeros() Resources {
	out := make(Resources, len(r))
	for class, amount := range r {
		if amount != 0 {
			out[class] = amount
		}
	}
	return out
}

// Whether both hold the same amounts. Nil and empty are equal.
func (r Resources) Equal(other Resources) bool {
	return maps.Equal(r, other)
}

// Query string form "CLASS:amount,..." sorted by class, as used by
// placement's resources query parameter.
func (r Resources) String() string {
	parts := make([]string, 0, len(r))
	for _, class := range slices.Sorted(maps.Keys(r)) {
		parts = append(parts, fmt.Sprintf("%s:%d", class, r[class]))
	}
	return strings.Join(parts, ",")
}
