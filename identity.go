// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package multibridge

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
)

const wordLen = 32

// TransferID derives the identifier shared by every adapter leg of one
// logical asset transfer. The adapter that carries a leg never enters the
// hash, so redundant deliveries of the same transfer collapse onto one id.
func TransferID(
	sender, recipient common.Address,
	amount *uint256.Int,
	nonce uint64,
	originChainID, destChainID uint64,
) common.Hash {
	buf := make([]byte, 0, 6*wordLen)
	buf = appendAddress(buf, sender)
	buf = appendAddress(buf, recipient)
	buf = appendU256(buf, OrZero(amount))
	buf = appendUint64(buf, nonce)
	buf = appendUint64(buf, originChainID)
	buf = appendUint64(buf, destChainID)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// MessageID derives the identifier of a generic cross-chain message.
func MessageID(
	sender common.Address,
	payloadHash common.Hash,
	nonce uint64,
	originChainID, destChainID uint64,
) common.Hash {
	buf := make([]byte, 0, 5*wordLen)
	buf = appendAddress(buf, sender)
	buf = append(buf, payloadHash.Bytes()...)
	buf = appendUint64(buf, nonce)
	buf = appendUint64(buf, originChainID)
	buf = appendUint64(buf, destChainID)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// PayloadHash commits to the ordered list of calls a message will execute.
func PayloadHash(targets []common.Address, calldatas [][]byte) common.Hash {
	encoded, err := rlp.EncodeToBytes([]interface{}{targets, calldatas})
	if err != nil {
		// addresses and byte slices always encode
		panic(err)
	}
	return common.BytesToHash(crypto.Keccak256(encoded))
}

func appendAddress(buf []byte, a common.Address) []byte {
	return append(buf, common.LeftPadBytes(a.Bytes(), wordLen)...)
}

func appendU256(buf []byte, v *uint256.Int) []byte {
	word := v.Bytes32()
	return append(buf, word[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	return appendU256(buf, uint256.NewInt(v))
}
