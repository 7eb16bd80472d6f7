// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reportclient

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/cobaltcore-dev/placement-reporter/internal/resources"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
	"github.com/sapcc/go-bits/must"
)

// Request as seen by the fake placement service.
type call struct {
	Method  string
	Path    string
	Version string
	Body    []byte
}

func (c call) decode(t *testing.T, into any) {
	t.Helper()
	if err := json.Unmarshal(c.Body, into); err != nil {
		t.Fatalf("failed to decode body of %s %s: %v", c.Method, c.Path, err)
	}
}

func jsonResponse(status int, v any) openstack.Response {
	return openstack.Response{StatusCode: status, Body: must.Return(json.Marshal(v)), RequestID: "req-test"}
}

func textResponse(status int, text string) openstack.Response {
	return openstack.Response{StatusCode: status, Body: []byte(text), RequestID: "req-test"}
}

type fakeProvider struct {
	name        string
	parent      string
	generation  int
	inventories resources.Inventories
	traits      []string
	aggregates  []string
}

// In-memory placement service, implementing the Transport interface.
// Responses can be replaced per request with the override function.
type fakePlacement struct {
	t  *testing.T
	mu sync.Mutex
	// Return a response to replace the default behavior.
	override    func(c call) (openstack.Response, bool)
	calls       []call
	providers   map[string]*fakeProvider
	classes     map[string]bool
	traits      map[string]bool
	allocations map[string]ConsumerAllocations
	// Error returned instead of a response, if set.
	err error
}

func newFakePlacement(t *testing.T) *fakePlacement {
	return &fakePlacement{
		t:           t,
		providers:   make(map[string]*fakeProvider),
		classes:     make(map[string]bool),
		traits:      make(map[string]bool),
		allocations: make(map[string]ConsumerAllocations),
	}
}

func (p *fakePlacement) Get(ctx context.Context, path, microversion string) (openstack.Response, error) {
	return p.do(http.MethodGet, path, nil, microversion)
}

func (p *fakePlacement) Post(ctx context.Context, path string, body any, microversion string) (openstack.Response, error) {
	return p.do(http.MethodPost, path, body, microversion)
}

func (p *fakePlacement) Put(ctx context.Context, path string, body any, microversion string) (openstack.Response, error) {
	return p.do(http.MethodPut, path, body, microversion)
}

func (p *fakePlacement) Delete(ctx context.Context, path, microversion string) (openstack.Response, error) {
	return p.do(http.MethodDelete, path, nil, microversion)
}

func (p *fakePlacement) do(method, path string, body any, microversion string) (openstack.Response, error) {
	c := call{Method: method, Path: path, Version: microversion}
	if body != nil {
		c.Body = must.Return(json.Marshal(body))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
	if p.err != nil {
		return openstack.Response{}, p.err
	}
	if p.override != nil {
		if resp, ok := p.override(c); ok {
			return resp, nil
		}
	}
	return p.serve(c), nil
}

// Recorded calls matching the method and path prefix.
func (p *fakePlacement) callsTo(method, pathPrefix string) []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matching []call
	for _, c := range p.calls {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			matching = append(matching, c)
		}
	}
	return matching
}

func (p *fakePlacement) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePlacement) addProvider(uuid, name, parent string, generation int) *fakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	rp := &fakeProvider{name: name, parent: parent, generation: generation}
	p.providers[uuid] = rp
	return rp
}

func (p *fakePlacement) serve(c call) openstack.Response {
	path, rawQuery, _ := strings.Cut(c.Path, "?")
	query := must.Return(url.ParseQuery(rawQuery))
	seg := strings.Split(strings.Trim(path, "/"), "/")
	switch seg[0] {
	case "resource_providers":
		switch len(seg) {
		case 1:
			return p.serveProviderList(c, query)
		case 2:
			return p.serveProvider(c, seg[1])
		case 3:
			rp, ok := p.providers[seg[1]]
			if !ok {
				return textResponse(http.StatusNotFound, "No resource provider with uuid "+seg[1]+" found")
			}
			switch seg[2] {
			case "inventories":
				return p.serveInventories(c, rp)
			case "traits":
				return p.serveTraits(c, rp)
			case "aggregates":
				return jsonResponse(http.StatusOK, map[string]any{"aggregates": nonNil(rp.aggregates)})
			case "allocations":
				return p.serveProviderAllocations(seg[1], rp)
			}
		}
	case "resource_classes":
		return p.serveResourceClasses(c, seg)
	case "traits":
		return p.serveTraitCatalog(c, seg, query)
	case "allocations":
		return p.serveAllocations(c, seg)
	}
	p.t.Errorf("unexpected request %s %s", c.Method, c.Path)
	return textResponse(http.StatusNotFound, "not found")
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func (p *fakePlacement) providerJSON(uuid string) ResourceProvider {
	rp := p.providers[uuid]
	root := uuid
	for parent := rp.parent; parent != ""; parent = p.providers[parent].parent {
		root = parent
	}
	return ResourceProvider{UUID: uuid, Name: rp.name, Generation: rp.generation, ParentProviderUUID: rp.parent, RootProviderUUID: root}
}

func (p *fakePlacement) serveProviderList(c call, query url.Values) openstack.Response {
	if c.Method == http.MethodPost {
		var req createProviderRequest
		c.decode(p.t, &req)
		if _, ok := p.providers[req.UUID]; ok {
			return textResponse(http.StatusConflict, "Conflicting resource provider uuid: "+req.UUID+" already exists")
		}
		for _, rp := range p.providers {
			if rp.name == req.Name {
				return textResponse(http.StatusConflict, "Conflicting resource provider name: "+req.Name+" already exists")
			}
		}
		p.providers[req.UUID] = &fakeProvider{name: req.Name, parent: req.ParentProviderUUID}
		return textResponse(http.StatusCreated, "")
	}
	if tree := query.Get("in_tree"); tree != "" && p.providers[tree] == nil {
		return jsonResponse(http.StatusOK, resourceProviderList{ResourceProviders: []ResourceProvider{}})
	}
	var list []ResourceProvider
	for _, uuid := range slices.Sorted(maps.Keys(p.providers)) {
		rp := p.providers[uuid]
		switch {
		case query.Has("member_of"):
			wanted := strings.Split(strings.TrimPrefix(query.Get("member_of"), "in:"), ",")
			if !slices.ContainsFunc(rp.aggregates, func(agg string) bool { return slices.Contains(wanted, agg) }) {
				continue
			}
		case query.Has("in_tree"):
			if p.providerJSON(uuid).RootProviderUUID != p.providerJSON(query.Get("in_tree")).RootProviderUUID {
				continue
			}
		}
		list = append(list, p.providerJSON(uuid))
	}
	if list == nil {
		list = []ResourceProvider{}
	}
	return jsonResponse(http.StatusOK, resourceProviderList{ResourceProviders: list})
}

func (p *fakePlacement) serveProvider(c call, uuid string) openstack.Response {
	if _, ok := p.providers[uuid]; !ok {
		return textResponse(http.StatusNotFound, "No resource provider with uuid "+uuid+" found")
	}
	switch c.Method {
	case http.MethodGet:
		return jsonResponse(http.StatusOK, p.providerJSON(uuid))
	case http.MethodDelete:
		delete(p.providers, uuid)
		return textResponse(http.StatusNoContent, "")
	}
	return textResponse(http.StatusMethodNotAllowed, "")
}

func (p *fakePlacement) serveInventories(c call, rp *fakeProvider) openstack.Response {
	switch c.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req inventoryList
		c.decode(p.t, &req)
		if req.ResourceProviderGeneration != rp.generation {
			return textResponse(http.StatusConflict, "resource provider generation conflict")
		}
		rp.inventories = req.Inventories
		rp.generation++
	case http.MethodDelete:
		rp.inventories = nil
		rp.generation++
		return textResponse(http.StatusNoContent, "")
	}
	inventories := rp.inventories
	if inventories == nil {
		inventories = resources.Inventories{}
	}
	return jsonResponse(http.StatusOK, inventoryList{ResourceProviderGeneration: rp.generation, Inventories: inventories})
}

func (p *fakePlacement) serveTraits(c call, rp *fakeProvider) openstack.Response {
	if c.Method == http.MethodPut {
		var req traitList
		c.decode(p.t, &req)
		if req.ResourceProviderGeneration == nil || *req.ResourceProviderGeneration != rp.generation {
			return textResponse(http.StatusConflict, "resource provider generation conflict")
		}
		for _, trait := range req.Traits {
			if !p.traits[trait] {
				return textResponse(http.StatusBadRequest, "No such trait(s): "+trait)
			}
		}
		rp.traits = req.Traits
		rp.generation++
	}
	gen := rp.generation
	return jsonResponse(http.StatusOK, traitList{Traits: nonNil(rp.traits), ResourceProviderGeneration: &gen})
}

func (p *fakePlacement) serveResourceClasses(c call, seg []string) openstack.Response {
	switch {
	case c.Method == http.MethodPut && len(seg) == 2:
		if p.classes[seg[1]] {
			return textResponse(http.StatusNoContent, "")
		}
		p.classes[seg[1]] = true
		return textResponse(http.StatusCreated, "")
	case c.Method == http.MethodGet && len(seg) == 2:
		if p.classes[seg[1]] {
			return jsonResponse(http.StatusOK, map[string]string{"name": seg[1]})
		}
		return textResponse(http.StatusNotFound, "No such resource class "+seg[1])
	case c.Method == http.MethodPost && len(seg) == 1:
		var req map[string]string
		c.decode(p.t, &req)
		if p.classes[req["name"]] {
			return textResponse(http.StatusConflict, "Conflicting resource class already exists")
		}
		p.classes[req["name"]] = true
		return textResponse(http.StatusCreated, "")
	}
	return textResponse(http.StatusMethodNotAllowed, "")
}

func (p *fakePlacement) serveTraitCatalog(c call, seg []string, query url.Values) openstack.Response {
	if c.Method == http.MethodPut && len(seg) == 2 {
		if p.traits[seg[1]] {
			return textResponse(http.StatusNoContent, "")
		}
		p.traits[seg[1]] = true
		return textResponse(http.StatusCreated, "")
	}
	wanted := strings.Split(strings.TrimPrefix(query.Get("name"), "in:"), ",")
	existing := []string{}
	for _, trait := range wanted {
		if p.traits[trait] {
			existing = append(existing, trait)
		}
	}
	return jsonResponse(http.StatusOK, traitList{Traits: existing})
}

func (p *fakePlacement) serveAllocations(c call, seg []string) openstack.Response {
	if len(seg) == 1 && c.Method == http.MethodPost {
		var docs map[string]consumerAllocationsDocument
		c.decode(p.t, &docs)
		for consumer, doc := range docs {
			if len(doc.Allocations) == 0 {
				delete(p.allocations, consumer)
				continue
			}
			p.allocations[consumer] = ConsumerAllocations(doc.Allocations)
		}
		return textResponse(http.StatusNoContent, "")
	}
	consumer := seg[1]
	switch c.Method {
	case http.MethodGet:
		allocations := p.allocations[consumer]
		if allocations == nil {
			allocations = ConsumerAllocations{}
		}
		return jsonResponse(http.StatusOK, consumerAllocationsResponse{Allocations: allocations})
	case http.MethodPut:
		var req AllocationRequest
		c.decode(p.t, &req)
		allocations := ConsumerAllocations{}
		for _, item := range req.Allocations {
			allocations[item.ResourceProvider.UUID] = ProviderAllocation{Resources: item.Resources}
		}
		if len(allocations) == 0 {
			delete(p.allocations, consumer)
		} else {
			p.allocations[consumer] = allocations
		}
		return textResponse(http.StatusNoContent, "")
	case http.MethodDelete:
		if _, ok := p.allocations[consumer]; !ok {
			return textResponse(http.StatusNotFound, "No allocations for consumer '"+consumer+"'")
		}
		delete(p.allocations, consumer)
		return textResponse(http.StatusNoContent, "")
	}
	return textResponse(http.StatusMethodNotAllowed, "")
}

func (p *fakePlacement) serveProviderAllocations(uuid string, rp *fakeProvider) openstack.Response {
	allocations := ProviderAllocations{}
	for consumer, byProvider := range p.allocations {
		if alloc, ok := byProvider[uuid]; ok {
			allocations[consumer] = ProviderAllocation{Resources: alloc.Resources}
		}
	}
	return jsonResponse(http.StatusOK, providerAllocationsResponse{Allocations: allocations, ResourceProviderGeneration: rp.generation})
}

// Client talking to the fake, with a mock clock and no retry delay.
func newTestClient(t *testing.T, placement *fakePlacement) (*Client, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	client := NewClient(func(ctx context.Context) (Transport, error) {
		return placement, nil
	}, Options{Clock: mock, RetryDelay: -1})
	return client, mock
}
