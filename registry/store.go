// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry stores per-id transfer records for both ends of a bridge.
package registry

import (
	"sync"

	"github.com/luxfi/geth/common"
)

// Store persists inbound and outbound records. Getters return copies;
// changes only take effect through the Put methods.
type Store interface {
	Inbound(id common.Hash) (*Inbound, bool, error)
	PutInbound(r *Inbound) error

	Outbound(id common.Hash) (*Outbound, bool, error)
	PutOutbound(r *Outbound) error
	// RangeOutbound calls fn for each outbound record until fn returns false.
	RangeOutbound(fn func(*Outbound) bool) error

	Nonce() (uint64, error)
	SetNonce(n uint64) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu       sync.RWMutex
	inbound  map[common.Hash]*Inbound
	outbound map[common.Hash]*Outbound
	order    []common.Hash
	nonce    uint64
}

// NewMemory creates a new memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		inbound:  make(map[common.Hash]*Inbound),
		outbound: make(map[common.Hash]*Outbound),
	}
}

func (s *MemoryStore) Inbound(id common.Hash) (*Inbound, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.inbound[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemoryStore) PutInbound(r *Inbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inbound[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Outbound(id common.Hash) (*Outbound, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.outbound[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemoryStore) PutOutbound(r *Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbound[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.outbound[r.ID] = r.Clone()
	return nil
}

// RangeOutbound visits records in creation order.
func (s *MemoryStore) RangeOutbound(fn func(*Outbound) bool) error {
	s.mu.RLock()
	records := make([]*Outbound, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, s.outbound[id].Clone())
	}
	s.mu.RUnlock()

	for _, r := range records {
		if !fn(r) {
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Nonce() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonce, nil
}

func (s *MemoryStore) SetNonce(n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = n
	return nil
}
