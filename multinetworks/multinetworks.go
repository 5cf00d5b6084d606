// Package multinetworks keys per-network components by their CAIP-2
// identifier and fans work out across all configured networks at once.
package multinetworks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// MultiNetworks holds one element per configured protocol network. The
// element type is typically a fully wired network handle, but the registry
// is generic so that intermediate per-network results can be carried too.
type MultiNetworks[T any] struct {
	inner map[string]T
	order []string
}

// New builds a registry from the given elements. Identity extracts the
// CAIP-2 id of an element; duplicate or empty ids are configuration errors.
func New[T any](elements []T, identity func(T) string) (*MultiNetworks[T], error) {
	if len(elements) == 0 {
		return nil, errors.New("at least one network is required")
	}
	m := &MultiNetworks[T]{inner: make(map[string]T, len(elements))}
	for _, element := range elements {
		id := identity(element)
		if id == "" {
			return nil, errors.New("network identifier must not be empty")
		}
		if _, dup := m.inner[id]; dup {
			return nil, errors.Errorf("duplicate network identifier: %s", id)
		}
		m.inner[id] = element
		m.order = append(m.order, id)
	}
	return m, nil
}

// Size returns the number of configured networks.
func (m *MultiNetworks[T]) Size() int {
	return len(m.inner)
}

// IDs returns the network ids in configuration order.
func (m *MultiNetworks[T]) IDs() []string {
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// Get returns the element for the given network id.
func (m *MultiNetworks[T]) Get(id string) (T, error) {
	element, ok := m.inner[id]
	if !ok {
		var zero T
		return zero, errors.Errorf("unknown network: %s", id)
	}
	return element, nil
}

// NetworkErrors collects per-network failures from a fan-out.
type NetworkErrors map[string]error

// Error renders the failures sorted by network id.
func (e NetworkErrors) Error() string {
	ids := make([]string, 0, len(e))
	for id := range e {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e[id]))
	}
	return strings.Join(parts, "; ")
}

// Map applies fn to every network in parallel and returns the results keyed
// by network id. Failures are isolated: one network's error never discards
// another network's result. When any network fails the returned error is a
// NetworkErrors naming each failure.
func Map[T, U any](ctx context.Context, m *MultiNetworks[T], fn func(ctx context.Context, networkID string, element T) (U, error)) (map[string]U, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]U, m.Size())
		failed  = make(NetworkErrors)
	)
	for _, id := range m.order {
		wg.Add(1)
		go func(id string, element T) {
			defer wg.Done()
			value, err := fn(ctx, id, element)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
				return
			}
			results[id] = value
		}(id, m.inner[id])
	}
	wg.Wait()
	if len(failed) > 0 {
		return results, failed
	}
	return results, nil
}

// Pair groups the per-network values of two zipped maps.
type Pair[A, B any] struct {
	Left  A
	Right B
}

// Zip inner-joins two network-keyed maps. Networks present in only one of
// the maps are dropped.
func Zip[A, B any](left map[string]A, right map[string]B) map[string]Pair[A, B] {
	joined := make(map[string]Pair[A, B])
	for id, a := range left {
		b, ok := right[id]
		if !ok {
			continue
		}
		joined[id] = Pair[A, B]{Left: a, Right: b}
	}
	return joined
}
