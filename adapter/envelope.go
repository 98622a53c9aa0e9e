// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"

	"github.com/luxfi/multibridge"
)

// Envelope is the transport-level message exchanged between peer adapters.
type Envelope struct {
	Kind         Kind
	SourceDomain uint32
	DestDomain   uint32
	// Sender and Recipient are the peer adapters.
	Sender    common.Address
	Recipient common.Address
	Target    common.Address
	Nonce     uint64
	Options   []byte
	// Body is an rlp payload.AddressedCall.
	Body      []byte
	Signature []byte
}

// UnsignedBytes is what attestations sign and ids commit to.
func (e *Envelope) UnsignedBytes() []byte {
	unsigned := *e
	unsigned.Signature = nil
	b, err := multibridge.Codec.Marshal(multibridge.CodecVersion, &unsigned)
	if err != nil {
		// all fields are fixed size or byte slices
		panic(err)
	}
	return b
}

// ID is the transport-local message id.
func (e *Envelope) ID() ids.ID {
	return ids.ID(blake3.Sum256(e.UnsignedBytes()))
}

// Bytes serializes the envelope including its signature.
func (e *Envelope) Bytes() ([]byte, error) {
	return multibridge.Codec.Marshal(multibridge.CodecVersion, e)
}

// ParseEnvelope is the inverse of Bytes.
func ParseEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{}
	if _, err := multibridge.Codec.Unmarshal(b, e); err != nil {
		return nil, err
	}
	return e, nil
}
