// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"sort"
	"sync"

	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/messaging"
)

type nodeKey struct {
	network string
	id      node.ID
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	observers map[nodeKey]map[messaging.ObserverID]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{observers: make(map[nodeKey]map[messaging.ObserverID]struct{})}
}

func (m *MemoryStore) SubscribedNodes(_ context.Context, network string) ([]node.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []node.ID
	for key := range m.observers {
		if key.network == network {
			ids = append(ids, key.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) Observers(_ context.Context, network string, id node.ID) ([]messaging.ObserverID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.observers[nodeKey{network, id}]
	observers := make([]messaging.ObserverID, 0, len(set))
	for observer := range set {
		observers = append(observers, observer)
	}
	sort.Slice(observers, func(i, j int) bool { return observers[i] < observers[j] })
	return observers, nil
}

func (m *MemoryStore) Subscribe(_ context.Context, sub Subscription) (bool, error) {
	if err := sub.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nodeKey{sub.Network, sub.NodeID}
	set, ok := m.observers[key]
	if !ok {
		set = make(map[messaging.ObserverID]struct{})
		m.observers[key] = set
	}
	if _, exists := set[sub.Observer]; exists {
		return false, nil
	}
	set[sub.Observer] = struct{}{}
	return true, nil
}

func (m *MemoryStore) Unsubscribe(_ context.Context, sub Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(nodeKey{sub.Network, sub.NodeID}, sub.Observer), nil
}

func (m *MemoryStore) UnsubscribeAll(_ context.Context, network string, observer messaging.ObserverID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.observers {
		if key.network == network && m.removeLocked(key, observer) {
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Subscriptions(_ context.Context, observer messaging.ObserverID) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []Subscription
	for key, set := range m.observers {
		if _, ok := set[observer]; ok {
			subs = append(subs, Subscription{Network: key.network, NodeID: key.id, Observer: observer})
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Network != subs[j].Network {
			return subs[i].Network < subs[j].Network
		}
		return subs[i].NodeID < subs[j].NodeID
	})
	return subs, nil
}

// removeLocked drops observer from key and deletes the key once its
// last observer leaves, so SubscribedNodes never lists orphans.
func (m *MemoryStore) removeLocked(key nodeKey, observer messaging.ObserverID) bool {
	set, ok := m.observers[key]
	if !ok {
		return false
	}
	if _, exists := set[observer]; !exists {
		return false
	}
	delete(set, observer)
	if len(set) == 0 {
		delete(m.observers, key)
	}
	return true
}
