// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package multibridge

import (
	"fmt"

	"github.com/luxfi/geth/rlp"
)

// CodecVersion is prefixed to every persisted or relayed rlp structure.
const CodecVersion uint16 = 0

// CodecImpl serializes records, envelopes and message payloads
type CodecImpl struct{}

// Codec is the default codec instance
var Codec = &CodecImpl{}

// Marshal serializes v behind a two byte version prefix.
func (c *CodecImpl) Marshal(version uint16, v interface{}) ([]byte, error) {
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2+len(body))
	out[0] = byte(version >> 8)
	out[1] = byte(version)
	copy(out[2:], body)
	return out, nil
}

// Unmarshal deserializes b into v and returns the version it was written with.
func (c *CodecImpl) Unmarshal(b []byte, v interface{}) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: missing codec version", ErrInvalidPayload)
	}
	version := uint16(b[0])<<8 | uint16(b[1])
	if version != CodecVersion {
		return version, fmt.Errorf("%w: unknown codec version %d", ErrInvalidPayload, version)
	}
	if err := rlp.DecodeBytes(b[2:], v); err != nil {
		return version, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return version, nil
}
