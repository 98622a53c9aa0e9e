// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package adapter

import (
	"fmt"

	"github.com/luxfi/crypto/bls"

	"github.com/luxfi/multibridge"
)

// Attester signs outbound envelopes for transports whose receivers check
// an origin signature.
type Attester struct {
	sk *bls.SecretKey
	pk *bls.PublicKey
}

// NewAttester derives a signing key from seed.
func NewAttester(seed []byte) (*Attester, error) {
	sk, err := bls.SecretKeyFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive attestation key: %w", err)
	}
	return &Attester{sk: sk, pk: sk.PublicKey()}, nil
}

// Sign signs msg
func (a *Attester) Sign(msg []byte) ([]byte, error) {
	sig, err := a.sk.Sign(msg)
	if err != nil {
		return nil, err
	}
	return bls.SignatureToBytes(sig), nil
}

// PublicKey returns the compressed public key peers verify against.
func (a *Attester) PublicKey() []byte {
	return bls.PublicKeyToCompressedBytes(a.pk)
}

// verifyAttestation checks sig over msg against a compressed public key.
func verifyAttestation(pk *bls.PublicKey, msg, sig []byte) error {
	s, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", multibridge.ErrInvalidAttestation, err)
	}
	if !bls.Verify(pk, s, msg) {
		return multibridge.ErrInvalidAttestation
	}
	return nil
}
