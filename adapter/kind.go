// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"fmt"
	"strings"

	"github.com/luxfi/multibridge"
)

// Kind identifies the transport an adapter speaks.
type Kind uint8

const (
	Warp Kind = iota
	Connext
	Axelar
	Hyperlane
	LayerZero
	Wormhole
	CCIP
	OptimismL2
	Polymer
)

// Kinds lists every supported transport.
var Kinds = []Kind{Warp, Connext, Axelar, Hyperlane, LayerZero, Wormhole, CCIP, OptimismL2, Polymer}

func (k Kind) String() string {
	switch k {
	case Warp:
		return "warp"
	case Connext:
		return "connext"
	case Axelar:
		return "axelar"
	case Hyperlane:
		return "hyperlane"
	case LayerZero:
		return "layerzero"
	case Wormhole:
		return "wormhole"
	case CCIP:
		return "ccip"
	case OptimismL2:
		return "optimism"
	case Polymer:
		return "polymer"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", multibridge.ErrUnknownKind, s)
}

// RequiresAttestation reports whether envelopes of this transport carry a
// signature that the receiving side verifies against the origin's key.
func (k Kind) RequiresAttestation() bool {
	return k == Warp || k == Wormhole
}

// DefaultDomain maps an EVM chain id into the transport's own chain
// namespace (Hyperlane domain, LayerZero endpoint id, Wormhole chain id...).
func (k Kind) DefaultDomain(chainID uint64) uint32 {
	switch k {
	case LayerZero:
		return 30_000 + uint32(chainID%10_000)
	case Wormhole:
		return 10_000 + uint32(chainID%10_000)
	case Connext:
		// Connext domains are ascii tags in practice
		return 0x6c78_0000 | uint32(chainID&0xffff)
	case Polymer:
		return 0x0100_0000 | uint32(chainID&0xffffff)
	default:
		return uint32(chainID)
	}
}
