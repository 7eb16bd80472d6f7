// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package resources

import (
	"maps"
	"math"
	"slices"
)

// Default max_unit applied by placement when none is given.
const DefaultMaxUnit = math.MaxInt32

// Inventory of one resource class on a resource provider.
type Inventory struct {
	Total           int     `json:"total"`
	Reserved        int     `json:"reserved"`
	MinUnit         int     `json:"min_unit"`
	MaxUnit         int     `json:"max_unit"`
	StepSize        int     `json:"step_size"`
	AllocationRatio float64 `json:"allocation_ratio"`
}

// Copy of the inventory where unset fields carry placement's defaults.
func (i Inventory) Normalized() Inventory {
	if i.MinUnit == 0 {
		i.MinUnit = 1
	}
	if i.MaxUnit == 0 {
		i.MaxUnit = DefaultMaxUnit
	}
	if i.StepSize == 0 {
		i.StepSize = 1
	}
	if i.AllocationRatio == 0 {
		i.AllocationRatio = 1.0
	}
	return i
}

// Inventories of a resource provider, by resource class.
type Inventories map[string]Inventory

// Deep copy with all records normalized. A nil map stays nil.
func (inv Inventories) Normalized() Inventories {
	if inv == nil {
		return nil
	}
	out := make(Inventories, len(inv))
	for class, record := range inv {
		out[class] = record.Normalized()
	}
	return out
}

// Resource classes of the inventory, sorted.
func (inv Inventories) Classes() []string {
	return slices.Sorted(maps.Keys(inv))
}

// Resource classes of the inventory that are not built into placement, sorted.
func (inv Inventories) NonStandardClasses() []string {
	var classes []string
	for _, class := range inv.Classes() {
		if !IsStandard(class) {
			classes = append(classes, class)
		}
	}
	return classes
}
