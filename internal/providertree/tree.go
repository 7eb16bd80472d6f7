// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package providertree holds the local mirror of the resource provider
// hierarchy known to placement.
package providertree

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/majewsky/gg/option"
)

var (
	// The provider is not in the tree. Callers need to ensure a provider
	// exists before updating it, so this indicates a programming error.
	ErrNotFound = errors.New("resource provider not found in provider tree")
	// A provider with the same uuid is already in the tree.
	ErrExists = errors.New("resource provider already exists in provider tree")
)

// Snapshot of a resource provider in the tree.
type Provider struct {
	UUID       string
	Name       string
	ParentUUID string
	Generation int
	Inventory  resources.Inventories
	Traits     []string
	Aggregates []string
}

type node struct {
	uuid       string
	name       string
	generation int
	parent     *node
	children   []*node
	inventory  resources.Inventories
	traits     map[string]struct{}
	aggregates map[string]struct{}
}

// In-memory forest of resource providers, keyed by uuid. It is safe for
// concurrent use, but sequences of calls are not atomic.
type ProviderTree struct {
	mu     sync.RWMutex
	roots  []*node
	byUUID map[string]*node
}

func New() *ProviderTree {
	return &ProviderTree{byUUID: make(map[string]*node)}
}

// Drop all providers.
func (t *ProviderTree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = nil
	t.byUUID = make(map[string]*node)
}

// Look up a node by uuid, then by name. Callers must hold the lock.
func (t *ProviderTree) find(nameOrUUID string) (*node, error) {
	if n, ok := t.byUUID[nameOrUUID]; ok {
		return n, nil
	}
	for _, n := range t.byUUID {
		if n.name == nameOrUUID {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrUUID)
}

// Whether a provider with the given uuid or name is in the tree.
func (t *ProviderTree) Exists(nameOrUUID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, err := t.find(nameOrUUID)
	return err == nil
}

// Add a provider without parent.
func (t *ProviderTree) NewRoot(name, uuid string, generation int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byUUID[uuid]; ok {
		return fmt.Errorf("%w: %s", ErrExists, uuid)
	}
	n := newNode(name, uuid, generation)
	t.roots = append(t.roots, n)
	t.byUUID[uuid] = n
	return nil
}

// Add a provider below a parent that is already in the tree.
func (t *ProviderTree) NewChild(name, parentNameOrUUID, uuid string, generation int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byUUID[uuid]; ok {
		return fmt.Errorf("%w: %s", ErrExists, uuid)
	}
	parent, err := t.find(parentNameOrUUID)
	if err != nil {
		return fmt.Errorf("parent of %s: %w", uuid, err)
	}
	n := newNode(name, uuid, generation)
	n.parent = parent
	parent.children = append(parent.children, n)
	t.byUUID[uuid] = n
	return nil
}

func newNode(name, uuid string, generation int) *node {
	return &node{
		uuid:       uuid,
		name:       name,
		generation: generation,
		traits:     make(map[string]struct{}),
		aggregates: make(map[string]struct{}),
	}
}

// Remove a provider together with all of its descendants.
func (t *ProviderTree) Remove(nameOrUUID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	if n.parent == nil {
		t.roots = slices.DeleteFunc(t.roots, func(r *node) bool { return r == n })
	} else {
		n.parent.children = slices.DeleteFunc(n.parent.children, func(c *node) bool { return c == n })
	}
	for _, uuid := range subtree(n) {
		delete(t.byUUID, uuid)
	}
	return nil
}

// Uuids of the node and its descendants, parents before children.
func subtree(n *node) []string {
	uuids := []string{n.uuid}
	for _, child := range n.children {
		uuids = append(uuids, subtree(child)...)
	}
	return uuids
}

// Uuids of the provider and all of its descendants, parents first.
func (t *ProviderTree) ProviderUUIDs(nameOrUUID string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return nil, err
	}
	return subtree(n), nil
}

// Uuids of all roots, in insertion order.
func (t *ProviderTree) RootUUIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	uuids := make([]string, 0, len(t.roots))
	for _, r := range t.roots {
		uuids = append(uuids, r.uuid)
	}
	return uuids
}

// Snapshot of the provider. Changes to the snapshot don't affect the tree.
func (t *ProviderTree) Data(nameOrUUID string) (Provider, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return Provider{}, err
	}
	p := Provider{
		UUID:       n.uuid,
		Name:       n.name,
		Generation: n.generation,
		Inventory:  maps.Clone(n.inventory),
		Traits:     slices.Sorted(maps.Keys(n.traits)),
		Aggregates: slices.Sorted(maps.Keys(n.aggregates)),
	}
	if n.parent != nil {
		p.ParentUUID = n.parent.uuid
	}
	return p, nil
}

// Last generation seen for the provider.
func (t *ProviderTree) Generation(nameOrUUID string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return 0, err
	}
	return n.generation, nil
}

// Replace the inventory of the provider and set its generation.
func (t *ProviderTree) UpdateInventory(nameOrUUID string, inventory resources.Inventories, generation int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	n.inventory = inventory.Normalized()
	n.generation = generation
	return nil
}

// Whether the provider is known and has inventory for at least one class.
func (t *ProviderTree) HasInventory(nameOrUUID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	return err == nil && len(n.inventory) > 0
}

// Whether the given inventory differs from the cached one. Fields left at
// zero are compared with placement's defaults.
func (t *ProviderTree) HasInventoryChanged(nameOrUUID string, inventory resources.Inventories) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return false, err
	}
	return !cmp.Equal(n.inventory, inventory.Normalized(), cmpopts.EquateEmpty()), nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// Replace the traits of the provider, and set its generation if given.
func (t *ProviderTree) UpdateTraits(nameOrUUID string, traits []string, generation option.Option[int]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	n.traits = toSet(traits)
	if gen, ok := generation.Unpack(); ok {
		n.generation = gen
	}
	return nil
}

// Whether the provider has all of the given traits.
func (t *ProviderTree) HasTraits(nameOrUUID string, traits []string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return false
	}
	for _, trait := range traits {
		if _, ok := n.traits[trait]; !ok {
			return false
		}
	}
	return true
}

// Whether the given traits differ from the cached set.
func (t *ProviderTree) HaveTraitsChanged(nameOrUUID string, traits []string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return false, err
	}
	return !maps.Equal(n.traits, toSet(traits)), nil
}

// Add traits to the cached set of the provider.
func (t *ProviderTree) AddTraits(nameOrUUID string, traits ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	for _, trait := range traits {
		n.traits[trait] = struct{}{}
	}
	return nil
}

// Remove traits from the cached set of the provider.
func (t *ProviderTree) RemoveTraits(nameOrUUID string, traits ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	for _, trait := range traits {
		delete(n.traits, trait)
	}
	return nil
}

// Replace the aggregates of the provider, and set its generation if given.
func (t *ProviderTree) UpdateAggregates(nameOrUUID string, aggregates []string, generation option.Option[int]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	n.aggregates = toSet(aggregates)
	if gen, ok := generation.Unpack(); ok {
		n.generation = gen
	}
	return nil
}

// Whether the provider is a member of all of the given aggregates.
func (t *ProviderTree) InAggregates(nameOrUUID string, aggregates []string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return false
	}
	for _, agg := range aggregates {
		if _, ok := n.aggregates[agg]; !ok {
			return false
		}
	}
	return true
}

// Whether the given aggregates differ from the cached set.
func (t *ProviderTree) HaveAggregatesChanged(nameOrUUID string, aggregates []string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return false, err
	}
	return !maps.Equal(n.aggregates, toSet(aggregates)), nil
}

// Add aggregates to the cached set of the provider.
func (t *ProviderTree) AddAggregates(nameOrUUID string, aggregates ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	for _, agg := range aggregates {
		n.aggregates[agg] = struct{}{}
	}
	return nil
}

// Remove aggregates from the cached set of the provider.
func (t *ProviderTree) RemoveAggregates(nameOrUUID string, aggregates ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.find(nameOrUUID)
	if err != nil {
		return err
	}
	for _, agg := range aggregates {
		delete(n.aggregates, agg)
	}
	return nil
}
