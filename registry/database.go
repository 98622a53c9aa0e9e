// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/multibridge"
)

var (
	inboundPrefix       = []byte("in/")
	outboundPrefix      = []byte("out/")
	outboundIndexPrefix = []byte("outidx/")
	sequencePrefix      = []byte("seq/")
	nonceKey            = []byte("nonce")
)

var _ Store = (*DatabaseStore)(nil)

// DatabaseStore persists records in a key-value database. Outbound keys
// carry the creation sequence so iteration follows creation order.
type DatabaseStore struct {
	db database.Database
}

// NewDatabase wraps db as a Store
func NewDatabase(db database.Database) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func inboundKey(id common.Hash) []byte {
	return append(append([]byte{}, inboundPrefix...), id[:]...)
}

func outboundIndexKey(id common.Hash) []byte {
	return append(append([]byte{}, outboundIndexPrefix...), id[:]...)
}

func outboundKey(seq uint64, id common.Hash) []byte {
	key := make([]byte, 0, len(outboundPrefix)+8+common.HashLength)
	key = append(key, outboundPrefix...)
	key = binary.BigEndian.AppendUint64(key, seq)
	return append(key, id[:]...)
}

func (s *DatabaseStore) Inbound(id common.Hash) (*Inbound, bool, error) {
	r := &Inbound{}
	ok, err := s.get(inboundKey(id), r)
	if !ok || err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *DatabaseStore) PutInbound(r *Inbound) error {
	return s.put(inboundKey(r.ID), r)
}

func (s *DatabaseStore) Outbound(id common.Hash) (*Outbound, bool, error) {
	key, err := s.db.Get(outboundIndexKey(id))
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	r := &Outbound{}
	ok, err := s.get(key, r)
	if !ok || err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (s *DatabaseStore) PutOutbound(r *Outbound) error {
	key, err := s.db.Get(outboundIndexKey(r.ID))
	switch {
	case errors.Is(err, database.ErrNotFound):
		seq, err := s.counter(outboundPrefix)
		if err != nil {
			return err
		}
		key = outboundKey(seq, r.ID)
	case err != nil:
		return err
	}

	value, err := multibridge.Codec.Marshal(multibridge.CodecVersion, r)
	if err != nil {
		return fmt.Errorf("failed to encode outbound record: %w", err)
	}
	batch := s.db.NewBatch()
	if err := batch.Put(outboundIndexKey(r.ID), key); err != nil {
		return err
	}
	if err := batch.Put(key, value); err != nil {
		return err
	}
	return batch.Write()
}

func (s *DatabaseStore) RangeOutbound(fn func(*Outbound) bool) error {
	it := s.db.NewIteratorWithPrefix(outboundPrefix)
	defer it.Release()

	for it.Next() {
		r := &Outbound{}
		if _, err := multibridge.Codec.Unmarshal(it.Value(), r); err != nil {
			return fmt.Errorf("failed to decode outbound record: %w", err)
		}
		if !fn(r) {
			return nil
		}
	}
	return it.Error()
}

func (s *DatabaseStore) Nonce() (uint64, error) {
	b, err := s.db.Get(nonceKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *DatabaseStore) SetNonce(n uint64) error {
	return s.db.Put(nonceKey, binary.BigEndian.AppendUint64(nil, n))
}

// counter returns the next value of a sequence stored under name.
func (s *DatabaseStore) counter(name []byte) (uint64, error) {
	key := append(append([]byte{}, sequencePrefix...), name...)
	var next uint64
	b, err := s.db.Get(key)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		next = binary.BigEndian.Uint64(b)
	}
	if err := s.db.Put(key, binary.BigEndian.AppendUint64(nil, next+1)); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *DatabaseStore) get(key []byte, v interface{}) (bool, error) {
	b, err := s.db.Get(key)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := multibridge.Codec.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("failed to decode record: %w", err)
	}
	return true, nil
}

func (s *DatabaseStore) put(key []byte, v interface{}) error {
	b, err := multibridge.Codec.Marshal(multibridge.CodecVersion, v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return s.db.Put(key, b)
}
