// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package conflicts tells apart the kinds of conflicts reported by placement.
// Placement does not return error codes for them, so the error text of the
// response body is matched.
package conflicts

import (
	"regexp"
	"strings"
)

var inventoryInUse = regexp.MustCompile("Inventory for (.+) on resource provider (.+) in use")

const (
	concurrentUpdate     = "concurrently updated"
	providerNameConflict = "Conflicting resource provider name:"
)

// Resource classes named by an "inventory in use" error, and whether the
// body contains such an error at all.
func InventoryInUse(body string) (string, bool) {
	match := inventoryInUse.FindStringSubmatch(body)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Whether another writer changed the providers of an allocation at the same time.
func IsConcurrentUpdate(body string) bool {
	return strings.Contains(body, concurrentUpdate)
}

// Whether a provider could not be created because its name is taken.
func IsProviderNameConflict(body string) bool {
	return strings.Contains(body, providerNameConflict)
}
