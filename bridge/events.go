// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// EventType identifies a lifecycle event.
type EventType uint8

const (
	TransferCreated EventType = iota
	TransferRelayed
	TransferResent
	TransferReceived
	TransferExecuted
	UnwrapFallback
	MessageCreated
	MessageReceived
	MessageExecutableAt
	MessageExecuted
	MessageCancelled
)

func (e EventType) String() string {
	switch e {
	case TransferCreated:
		return "TransferCreated"
	case TransferRelayed:
		return "TransferRelayed"
	case TransferResent:
		return "TransferResent"
	case TransferReceived:
		return "TransferReceived"
	case TransferExecuted:
		return "TransferExecuted"
	case UnwrapFallback:
		return "UnwrapFallback"
	case MessageCreated:
		return "MessageCreated"
	case MessageReceived:
		return "MessageReceived"
	case MessageExecutableAt:
		return "MessageExecutableAt"
	case MessageExecuted:
		return "MessageExecuted"
	case MessageCancelled:
		return "MessageCancelled"
	default:
		return "Unknown"
	}
}

// Event is emitted after an operation commits. Fields that do not apply to
// a type are left zero.
type Event struct {
	Type EventType
	ID   common.Hash
	// ChainID is the remote chain: destination for source-side events,
	// origin for destination-side ones.
	ChainID     uint64
	Adapter     common.Address
	TransportID ids.ID
	Recipient   common.Address
	Amount      *uint256.Int
	// At is the event time, or the unlock time for MessageExecutableAt.
	At uint64
}
