// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package multibridge

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react to a whole family of
// errors without matching every sentinel.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// KindConfig covers invalid parameters and misconfiguration.
	KindConfig
	// KindAuthorization covers missing roles and untrusted callers.
	KindAuthorization
	// KindCapacity covers exhausted rate limits.
	KindCapacity
	// KindReplay covers repeated or already finalized deliveries.
	KindReplay
	// KindState covers operations attempted in the wrong lifecycle state.
	KindState
	// KindLiquidity covers pools that cannot cover a release.
	KindLiquidity
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuthorization:
		return "authorization"
	case KindCapacity:
		return "capacity"
	case KindReplay:
		return "replay"
	case KindState:
		return "state"
	case KindLiquidity:
		return "liquidity"
	default:
		return "unknown"
	}
}

// Error is a classified bridge error. Sentinels are compared with errors.Is
// and wrapped with fmt.Errorf("%w: ...") to add context.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s error %s: %s", e.Kind, e.Code, e.Message)
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Config errors
var (
	ErrZeroAddress                 = newError(KindConfig, "ZeroAddress", "address must be set")
	ErrZeroAmount                  = newError(KindConfig, "ZeroAmount", "amount must be positive")
	ErrZeroDuration                = newError(KindConfig, "ZeroDuration", "replenish duration must be positive")
	ErrInvalidParams               = newError(KindConfig, "InvalidParams", "invalid parameters")
	ErrArrayLengthMismatch         = newError(KindConfig, "ArrayLengthMismatch", "parallel arrays differ in length")
	ErrLimitTooHigh                = newError(KindConfig, "LimitTooHigh", "limit exceeds half of the uint256 range")
	ErrDuplicateAdapter            = newError(KindConfig, "DuplicateAdapter", "adapter listed more than once")
	ErrFeesSumMismatch             = newError(KindConfig, "FeesSumMismatch", "fees do not sum to the attached value")
	ErrInvalidThreshold            = newError(KindConfig, "InvalidThreshold", "threshold out of range")
	ErrMinBridgesNotMet            = newError(KindConfig, "MinBridgesNotMet", "not enough adapters for a multi-bridge send")
	ErrControllerChainNotSupported = newError(KindConfig, "ControllerChainNotSupported", "no controller registered for chain")
	ErrChainNotSupported           = newError(KindConfig, "ChainNotSupported", "adapter has no route to chain")
	ErrAssetMismatch               = newError(KindConfig, "AssetMismatch", "strategy asset does not match token")
	ErrInvalidPayload              = newError(KindConfig, "InvalidPayload", "malformed payload")
	ErrStrategyAttached            = newError(KindConfig, "StrategyAttached", "strategy still holds principal")
	ErrInsufficientFee             = newError(KindConfig, "InsufficientFee", "fee below the transport minimum")
	ErrNoReceiver                  = newError(KindConfig, "NoReceiver", "no receiver bound for target")
	ErrUnknownKind                 = newError(KindConfig, "UnknownKind", "unknown transport kind")
)

// Authorization errors
var (
	ErrUnauthorized          = newError(KindAuthorization, "Unauthorized", "caller lacks the required role")
	ErrInvalidOriginSender   = newError(KindAuthorization, "InvalidOriginSender", "origin sender is not the registered controller")
	ErrAdapterNotAllowed     = newError(KindAuthorization, "AdapterNotAllowed", "adapter is not registered or whitelisted")
	ErrUntrustedPeer         = newError(KindAuthorization, "UntrustedPeer", "envelope sender is not the trusted peer")
	ErrInvalidAttestation    = newError(KindAuthorization, "InvalidAttestation", "attestation signature does not verify")
	ErrNotVetoer             = newError(KindAuthorization, "NotVetoer", "caller is not the vetoer")
	ErrTransportKindMismatch = newError(KindAuthorization, "TransportKindMismatch", "envelope was produced by another transport")
	ErrAlreadyBound          = newError(KindAuthorization, "AlreadyBound", "controller is already bound to the adapter")
	ErrGatewayNotBound       = newError(KindAuthorization, "GatewayNotBound", "gateway relays for another controller")
)

// Capacity errors
var (
	ErrNotHighEnoughLimits = newError(KindCapacity, "NotHighEnoughLimits", "rate limit cannot cover the amount")
	ErrLimitExceeded       = newError(KindCapacity, "LimitExceeded", "amount exceeds current limit")
)

// Replay errors
var (
	ErrTransferResentByAdapter = newError(KindReplay, "TransferResentByAdapter", "adapter already delivered this id")
	ErrAlreadyProcessed        = newError(KindReplay, "AlreadyProcessed", "transport message already processed")
	ErrTransferNotExecutable   = newError(KindReplay, "TransferNotExecutable", "transfer already executed")
	ErrMsgNotExecutable        = newError(KindReplay, "MsgNotExecutable", "message already executed or cancelled")
)

// State errors
var (
	ErrPaused                       = newError(KindState, "Paused", "controller is paused")
	ErrTransfersPausedToDestination = newError(KindState, "TransfersPausedToDestination", "transfers to destination are paused")
	ErrThresholdNotMet              = newError(KindState, "ThresholdNotMet", "not enough adapters delivered")
	ErrMsgNotExecutableYet          = newError(KindState, "MsgNotExecutableYet", "timelock has not elapsed")
	ErrMsgExpired                   = newError(KindState, "MsgExpired", "execution window has passed")
	ErrMsgCancelled                 = newError(KindState, "MsgCancelled", "message was cancelled")
	ErrUnknownTransfer              = newError(KindState, "UnknownTransfer", "no record for id")
	ErrExecutionFailed              = newError(KindState, "ExecutionFailed", "target call failed")
	ErrStrategyNotAttached          = newError(KindState, "StrategyNotAttached", "no yield strategy attached")
	ErrPartialRelay                 = newError(KindState, "PartialRelay", "some adapters failed to relay")
)

// Liquidity errors
var (
	ErrNotEnoughTokensInPool = newError(KindLiquidity, "NotEnoughTokensInPool", "pool and strategy cannot cover the release")
	ErrInsufficientLiquidity = newError(KindLiquidity, "InsufficientLiquidity", "not enough idle balance")
	ErrInsufficientBalance   = newError(KindLiquidity, "InsufficientBalance", "account balance too low")
)
